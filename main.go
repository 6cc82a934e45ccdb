package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"x402-gateway/breaker"
	"x402-gateway/clock"
	"x402-gateway/database"
	"x402-gateway/gate"
	"x402-gateway/ledger"
	"x402-gateway/metrics"
	"x402-gateway/middlewares"
	"x402-gateway/ratelimit"
	"x402-gateway/routes"
)

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// envInt64 reads an int64 env var with a default fallback.
func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	// ---- Database
	database.Connect()
	database.AutoMigrate()
	database.SeedOperator()

	clk := clock.System()

	// ---- Used-intent ledger (LEDGER_BACKEND: memory | redis | postgres)
	sweepInterval := time.Duration(envInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second
	var (
		usedIntents ledger.Ledger
		shared      bool
		stopLedger  func()
	)
	switch os.Getenv("LEDGER_BACKEND") {
	case "redis":
		client, err := ledger.DialRedis(
			getenv("REDIS_ADDR", "localhost:6379"),
			os.Getenv("REDIS_PASSWORD"),
			envInt("REDIS_DB", 0),
		)
		if err != nil {
			log.WithError(err).Fatal("could not connect to redis")
		}
		usedIntents = ledger.NewRedis(client, clk, "", 0)
		shared = true
		stopLedger = func() { _ = client.Close() }
	case "postgres":
		pg := ledger.NewPostgres(database.DB, clk)
		pg.Start(sweepInterval)
		usedIntents = pg
		shared = true
		stopLedger = pg.Stop
	default:
		mem := ledger.NewMemory(clk)
		mem.Start(sweepInterval)
		usedIntents = mem
		stopLedger = mem.Stop
	}

	// ---- Per-payer rate/volume limiter
	payerLimiter := ratelimit.New(ratelimit.Config{
		MaxRequests:  envInt("PAYER_MAX_REQUESTS", 10),
		Window:       time.Duration(envInt("PAYER_WINDOW_SECONDS", 60)) * time.Second,
		MaxVolume:    envInt64("PAYER_MAX_VOLUME", 100_000_000),
		VolumeWindow: time.Duration(envInt("PAYER_VOLUME_WINDOW_SECONDS", 3600)) * time.Second,
	}, clk)
	payerLimiter.Start(sweepInterval)

	// ---- Breaker around the shared-store ledger
	ledgerBreaker := breaker.New(
		envInt("BREAKER_THRESHOLD", 5),
		time.Duration(envInt("BREAKER_TIMEOUT_SECONDS", 30))*time.Second,
		clk,
	)

	// ---- Admission gate
	paymentGate := gate.New(gate.Config{
		Ledger:       usedIntents,
		Limiter:      payerLimiter,
		Breaker:      ledgerBreaker,
		SharedLedger: shared,
		Policy: gate.Policy{
			MinAmount:      envInt64("GATE_MIN_AMOUNT", 1),
			MaxAmount:      envInt64("GATE_MAX_AMOUNT", 1_000_000_000),
			StrictIntentID: os.Getenv("GATE_STRICT_INTENT_ID") == "true",
		},
		Clock:   clk,
		Metrics: metrics.PrometheusSink{},
	})

	// ---- Fiber app with global error handler
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    envInt("BODY_LIMIT_BYTES", 1*1024*1024),
	})

	// ---- CORS
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Payment-Intent-ID, X-Payer, X-Payment-Signature, X-Payment-Amount, X-Job-ID, X-Timestamp, X-Expires-In",
	}))

	// ---- Global per-IP limiter (coarse; the per-payer limiter inside
	// the gate is the one with admission semantics)
	app.Use(limiter.New(limiter.Config{
		Max:        envInt("RATE_LIMIT_MAX", 120),
		Expiration: time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}))

	// ---- Observability
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ---- Routes
	routes.Register(app, routes.Deps{Gate: paymentGate, DB: database.DB})

	// ---- Shutdown: stop sweeps, drain the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		payerLimiter.Stop()
		stopLedger()
		_ = app.Shutdown()
	}()

	// ---- Start
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithField("port", port).Info("x402 gateway listening")
	if err := app.Listen(":" + port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

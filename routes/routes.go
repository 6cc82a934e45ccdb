package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"x402-gateway/controllers"
	"x402-gateway/gate"
	"x402-gateway/middlewares"
)

// Deps carries the explicitly constructed collaborators the HTTP layer
// dispatches into. No package-level stores.
type Deps struct {
	Gate *gate.Gate
	DB   *gorm.DB
}

// Register wires all HTTP routes.
func Register(app *fiber.App, d Deps) {
	api := app.Group("/api")

	// x402 payment-gated surface
	api.Post("/x402", controllers.SubmitJob(d.Gate, d.DB))
	api.Get("/x402/pricing", controllers.GetPricing)
	api.Get("/x402/jobs/:id", controllers.GetJob(d.DB))

	// Public operator login (outside the /admin prefix so the auth
	// middleware below cannot shadow it)
	api.Post("/login", controllers.Login)

	// Operator endpoints (JWT auth)
	admin := api.Group("/admin")
	admin.Use(middlewares.RequireOperator())
	admin.Get("/breaker", controllers.GetBreaker(d.Gate))
	admin.Post("/breaker/reset", controllers.ResetBreaker(d.Gate))
	admin.Get("/limits/:payer", controllers.GetPayerLimits(d.Gate))
}

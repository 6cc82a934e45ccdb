package controllers

import (
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"x402-gateway/gate"
)

// GetBreaker reports the ledger breaker's current state.
func GetBreaker(g *gate.Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b := g.Breaker()
		if b == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "no breaker configured"})
		}
		return c.JSON(fiber.Map{
			"state":         b.State().String(),
			"failures":      b.Failures(),
			"lastFailureAt": b.LastFailureAt(),
		})
	}
}

// ResetBreaker forces the breaker closed. Operator intervention for when
// the shared store has recovered but the cool-down has not elapsed.
func ResetBreaker(g *gate.Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b := g.Breaker()
		if b == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "no breaker configured"})
		}
		b.Reset()
		log.WithField("operator", c.Locals("userID")).Info("breaker reset")
		return c.JSON(fiber.Map{"state": b.State().String()})
	}
}

// GetPayerLimits shows the limiter's window state for one payer.
func GetPayerLimits(g *gate.Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		l := g.Limiter()
		if l == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "no limiter configured"})
		}
		d := l.Snapshot(c.Params("payer"))
		return c.JSON(fiber.Map{
			"payer":         c.Params("payer"),
			"allowed":       d.Allowed,
			"requestCount":  d.RequestCount,
			"currentVolume": d.CurrentVolume,
		})
	}
}

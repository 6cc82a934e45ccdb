package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"x402-gateway/models"
)

// GetJob returns the status of a submitted job.
func GetJob(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var job models.Job
		if err := db.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "job not found"})
			}
			return fiber.NewError(fiber.StatusInternalServerError, "could not load job")
		}

		return c.JSON(job)
	}
}

package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// JobResources describes the hardware a job type runs on.
type JobResources struct {
	GPU                string `json:"gpu"`
	VRAMGb             int    `json:"vramGb"`
	MaxDurationSeconds int    `json:"maxDurationSeconds"`
}

// JobPricing is one catalog entry. MinimumPayment is in lamports.
type JobPricing struct {
	JobType        string       `json:"jobType"`
	MinimumPayment int64        `json:"minimumPayment"`
	Resources      JobResources `json:"resources"`
}

// pricingCatalog is static for now; a market-priced catalog would come
// from the scheduler, which is out of tree.
var pricingCatalog = map[string]JobPricing{
	"inference_small": {
		JobType:        "inference_small",
		MinimumPayment: 100_000,
		Resources:      JobResources{GPU: "T4", VRAMGb: 16, MaxDurationSeconds: 300},
	},
	"inference_medium": {
		JobType:        "inference_medium",
		MinimumPayment: 1_000_000,
		Resources:      JobResources{GPU: "A10G", VRAMGb: 24, MaxDurationSeconds: 600},
	},
	"inference_large": {
		JobType:        "inference_large",
		MinimumPayment: 5_000_000,
		Resources:      JobResources{GPU: "A100", VRAMGb: 80, MaxDurationSeconds: 1800},
	},
	"training_small": {
		JobType:        "training_small",
		MinimumPayment: 10_000_000,
		Resources:      JobResources{GPU: "A100", VRAMGb: 80, MaxDurationSeconds: 7200},
	},
}

// PricingFor looks up the catalog entry for a job type.
func PricingFor(jobType string) (JobPricing, bool) {
	p, ok := pricingCatalog[jobType]
	return p, ok
}

// GetPricing serves the catalog, optionally filtered by ?jobType=.
func GetPricing(c *fiber.Ctx) error {
	if jobType := c.Query("jobType"); jobType != "" {
		p, ok := PricingFor(jobType)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "unknown job type"})
		}
		return c.JSON(p)
	}

	out := make([]JobPricing, 0, len(pricingCatalog))
	for _, p := range pricingCatalog {
		out = append(out, p)
	}
	return c.JSON(fiber.Map{"pricing": out})
}

package controllers

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"x402-gateway/gate"
	"x402-gateway/metrics"
	"x402-gateway/middlewares"
	"x402-gateway/models"
	"x402-gateway/paygate"
)

// Transport headers carrying the payment intent (body payment object is
// the fallback for clients that cannot set custom headers).
const (
	headerIntentID  = "X-Payment-Intent-ID"
	headerPayer     = "X-Payer"
	headerSignature = "X-Payment-Signature"
	headerAmount    = "X-Payment-Amount"
	headerJobID     = "X-Job-ID"
	headerTimestamp = "X-Timestamp"
	headerExpiresIn = "X-Expires-In"
)

type paymentDTO struct {
	ID        string `json:"id"`
	Payer     string `json:"payer"`
	Amount    int64  `json:"amount"`
	JobID     string `json:"jobId"`
	Timestamp string `json:"timestamp"`
	ExpiresIn int64  `json:"expiresIn"`
	Signature string `json:"signature"`
}

type jobSubmission struct {
	Payment *paymentDTO    `json:"payment"`
	JobType string         `json:"jobType" validate:"required"`
	Config  map[string]any `json:"config"`
}

// statusForCode maps gate rejection codes onto HTTP statuses. 402 for
// anything a corrected payment could fix, 409 for permanent replay
// rejections, 429/503 for pressure and dependency failure.
var statusForCode = map[paygate.Code]int{
	paygate.CodeMissingFields:               fiber.StatusBadRequest,
	paygate.CodeNonPositiveAmount:           fiber.StatusBadRequest,
	paygate.CodeInvalidTimestamp:            fiber.StatusBadRequest,
	paygate.CodeInvalidPayerFormat:          fiber.StatusBadRequest,
	paygate.CodeInvalidSignatureLength:      fiber.StatusBadRequest,
	paygate.CodeExpirationTooLong:           fiber.StatusBadRequest,
	paygate.CodeIntentExpired:               fiber.StatusPaymentRequired,
	paygate.CodeSignatureVerificationFailed: fiber.StatusPaymentRequired,
	paygate.CodeAmountBelowMinimum:          fiber.StatusPaymentRequired,
	paygate.CodeAmountAboveMaximum:          fiber.StatusPaymentRequired,
	paygate.CodeIntentAlreadyUsed:           fiber.StatusConflict,
	paygate.CodeInvalidIntentID:             fiber.StatusConflict,
	paygate.CodeRateLimitExceeded:           fiber.StatusTooManyRequests,
	paygate.CodeVolumeLimitExceeded:         fiber.StatusTooManyRequests,
	paygate.CodeBreakerOpen:                 fiber.StatusServiceUnavailable,
	paygate.CodeStoreUnavailable:            fiber.StatusServiceUnavailable,
}

func rejectionResponse(c *fiber.Ctx, r *gate.Rejection) error {
	status, ok := statusForCode[r.Code]
	if !ok {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(r)
}

// SubmitJob is the paid submission endpoint: assemble the intent from the
// transport, run the admission gate, then queue the job.
func SubmitJob(g *gate.Gate, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body jobSubmission
		if err := middlewares.BindAndValidate(c, &body); err != nil {
			return err
		}

		intent := paygate.FromTransport(transportFields(c, body.Payment))

		// Job-type floor first: a mispriced submission should not burn
		// the intent id. The signed amount binds the id anyway, so a
		// corrected intent is a different id.
		pricing, ok := PricingFor(body.JobType)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "unknown job type"})
		}
		if intent.Amount < pricing.MinimumPayment {
			metrics.RejectionsTotal.WithLabelValues(string(paygate.CodeAmountBelowMinimum)).Inc()
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"code":    paygate.CodeAmountBelowMinimum,
				"message": paygate.CodeAmountBelowMinimum.Message(),
				"details": fiber.Map{"provided": intent.Amount, "required": pricing.MinimumPayment},
			})
		}

		admission, rejection := g.Admit(c.Context(), intent)
		if rejection != nil {
			log.WithFields(log.Fields{
				"code":      rejection.Code,
				"requestId": rejection.RequestID,
				"payer":     intent.Payer,
			}).Warn("payment rejected")
			return rejectionResponse(c, rejection)
		}

		cfg, err := json.Marshal(body.Config)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid job config")
		}

		job := models.Job{
			ID:           intent.JobID,
			JobType:      body.JobType,
			Status:       models.JobStatusQueued,
			PayerAddress: admission.Outcome.Payer,
			IntentID:     intent.ID,
			AmountPaid:   intent.Amount,
			Config:       cfg,
		}
		if err := db.Create(&job).Error; err != nil {
			// The reservation stands either way; a duplicate job id is a
			// caller error, anything else is ours.
			log.WithError(err).WithField("jobId", job.ID).Error("could not queue job")
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message":   "could not queue job",
				"requestId": admission.RequestID,
			})
		}

		metrics.JobsSubmitted.WithLabelValues(job.JobType).Inc()
		log.WithFields(log.Fields{
			"jobId":     job.ID,
			"payer":     job.PayerAddress,
			"amount":    job.AmountPaid,
			"requestId": admission.RequestID,
		}).Info("job queued")

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"jobId":            job.ID,
			"status":           job.Status,
			"requestId":        admission.RequestID,
			"remainingSeconds": admission.Outcome.RemainingSeconds,
		})
	}
}

// transportFields merges headers with the body payment object; headers
// win field by field.
func transportFields(c *fiber.Ctx, p *paymentDTO) paygate.TransportFields {
	f := paygate.TransportFields{
		IntentID:  c.Get(headerIntentID),
		Payer:     c.Get(headerPayer),
		Signature: c.Get(headerSignature),
		Amount:    c.Get(headerAmount),
		JobID:     c.Get(headerJobID),
		Timestamp: c.Get(headerTimestamp),
		ExpiresIn: c.Get(headerExpiresIn),
	}
	if p == nil {
		return f
	}
	if f.IntentID == "" {
		f.IntentID = p.ID
	}
	if f.Payer == "" {
		f.Payer = p.Payer
	}
	if f.Signature == "" {
		f.Signature = p.Signature
	}
	if f.Amount == "" && p.Amount != 0 {
		f.Amount = strconv.FormatInt(p.Amount, 10)
	}
	if f.JobID == "" {
		f.JobID = p.JobID
	}
	if f.Timestamp == "" {
		f.Timestamp = p.Timestamp
	}
	if f.ExpiresIn == "" && p.ExpiresIn != 0 {
		f.ExpiresIn = strconv.FormatInt(p.ExpiresIn, 10)
	}
	return f
}

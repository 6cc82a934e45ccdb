// Package metrics exposes Prometheus counters and gauges for the payment
// gate. Recording is fire-and-forget: nothing here may influence an
// admission decision.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"x402-gateway/breaker"
	"x402-gateway/paygate"
)

var (
	// AdmissionsTotal counts admitted payment intents.
	AdmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "x402_admissions_total",
		Help: "Total admitted payment intents",
	})

	// RejectionsTotal counts rejected intents by stable reason code.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "x402_rejections_total",
		Help: "Rejected payment intents by reason code",
	}, []string{"code"})

	// AmountAdmitted sums admitted amounts in base units.
	AmountAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "x402_amount_admitted_total",
		Help: "Total admitted payment amount (smallest currency unit)",
	})

	// BreakerState exports the ledger breaker state (0 closed, 1 open,
	// 2 half-open).
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "x402_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	// JobsSubmitted counts persisted job submissions by type.
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "x402_jobs_submitted_total",
		Help: "Jobs accepted past the payment gate, by job type",
	}, []string{"job_type"})
)

// PrometheusSink adapts the promauto collectors to the gate's sink
// interface.
type PrometheusSink struct{}

func (PrometheusSink) RecordAdmission(_ string, amount int64) {
	AdmissionsTotal.Inc()
	AmountAdmitted.Add(float64(amount))
}

func (PrometheusSink) RecordRejection(code paygate.Code) {
	RejectionsTotal.WithLabelValues(string(code)).Inc()
}

func (PrometheusSink) RecordBreakerState(s breaker.State) {
	BreakerState.Set(float64(s))
}

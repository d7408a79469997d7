/*
Package metrics declares the service's Prometheus collectors.

All collectors register on the default registry at init and are served by
promhttp on /metrics.

  restitution_calculations_total{outcome}   ok, insufficient_credits, invalid_input, data_unavailable, error
  restitution_calculation_duration_seconds  Wall time of a successful calculation
  restitution_credits_granted_total{kind}   bonus, purchase, referral_bonus
  restitution_credits_debited_total         Credits spent on calculations
  restitution_payments_total{outcome}       processed, already_processed, ignored, rejected
  restitution_credit_sync_runs_total{result}
*/
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/restitution-engine/core"
)

const namespace = "restitution"

var Calculations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "calculations_total",
	Help:      "Calculation requests by outcome.",
}, []string{"outcome"})

var CalculationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "calculation_duration_seconds",
	Help:      "Duration of successful calculations, debit included.",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
})

var CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "credits_granted_total",
	Help:      "Credits granted by entry kind.",
}, []string{"kind"})

var CreditsDebited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "credits_debited_total",
	Help:      "Credits spent on calculations.",
})

var Payments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "payments_total",
	Help:      "Payment confirmations by outcome.",
}, []string{"outcome"})

var CreditSyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "credit_sync",
	Name:      "runs_total",
	Help:      "Cached credit sync runs by result.",
}, []string{"result"})

// Outcome labels a calculation error for the Calculations counter.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, core.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, core.ErrDataUnavailable):
		return "data_unavailable"
	}
	return "error"
}

// Granted records a successful grant.
func Granted(kind core.EntryKind, amount int64) {
	CreditsGranted.WithLabelValues(string(kind)).Add(float64(amount))
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// InterventionsTotal counts interventions by channel and the status they
	// transitioned into.
	InterventionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_interventions_total",
			Help: "Interventions by channel and status transition",
		},
		[]string{"channel", "status"},
	)

	GuardrailDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_guardrail_decisions_total",
			Help: "Guardrail evaluations by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retention_dispatch_duration_seconds",
			Help:    "Provider send latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_runs_total",
			Help: "Daily tenant runs by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(InterventionsTotal, GuardrailDecisionsTotal, DispatchDuration, RunsTotal)
	})
}

func ObserveIntervention(channel, status string) {
	InterventionsTotal.WithLabelValues(channel, status).Inc()
}

func ObserveGuardrail(outcome, reason string) {
	GuardrailDecisionsTotal.WithLabelValues(outcome, reason).Inc()
}

func ObserveDispatch(channel string, start time.Time) {
	DispatchDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())
}

func ObserveRun(result string) {
	RunsTotal.WithLabelValues(result).Inc()
}

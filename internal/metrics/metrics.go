// Package metrics exposes the gateway's prometheus instrumentation,
// registered once at service construction and read over the /metrics
// endpoint wired in internal/httpapi.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the gateway's counters and histograms.
type Metrics struct {
	UpdatesEnqueued   *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec
	ReconcileOutcomes *prometheus.CounterVec
}

// New registers the gateway's metrics against registry and returns
// the handle components use to record observations.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpdatesEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_updates_enqueued_total",
			Help: "Updates enqueued into the per-bot update queue, by kind.",
		}, []string{"kind"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bot_dispatch_duration_seconds",
			Help:    "Method dispatch latency, by method and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
		ReconcileOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_reconcile_outcomes_total",
			Help: "Callback reconciliation outcomes, by path and result.",
		}, []string{"path", "result"}),
	}
	registry.MustRegister(m.UpdatesEnqueued, m.DispatchDuration, m.ReconcileOutcomes)
	return m
}

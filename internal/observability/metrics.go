package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the counters the reconciliation pipeline increments. One
// instance is shared across webhook handling and the sweep loop.
type Metrics struct {
	Registry *prometheus.Registry

	WebhookDeliveries  *prometheus.CounterVec
	NotificationsDedup prometheus.Counter
	PendingEnqueued    prometheus.Counter
	PendingDrained     *prometheus.CounterVec
	SweepRuns          *prometheus.CounterVec
	TransitionsApplied *prometheus.CounterVec
	UpstreamFetches    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		Registry: reg,
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "famly_webhook_deliveries_total",
			Help: "Inbound billing webhook deliveries by outcome.",
		}, []string{"outcome"}),
		NotificationsDedup: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "famly_notifications_deduplicated_total",
			Help: "Notifications short-circuited by the idempotency ledger.",
		}),
		PendingEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "famly_pending_notifications_enqueued_total",
			Help: "Notifications queued because no user owned the token yet.",
		}),
		PendingDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "famly_pending_notifications_drained_total",
			Help: "Pending queue entries consumed, by trigger (sweep or verify).",
		}, []string{"trigger"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "famly_sweep_runs_total",
			Help: "Reconciliation sweep ticks by outcome.",
		}, []string{"outcome"}),
		TransitionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "famly_subscription_transitions_total",
			Help: "Subscription state transitions applied, by platform state.",
		}, []string{"state"}),
		UpstreamFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "famly_upstream_fetches_total",
			Help: "Authoritative purchase detail fetches by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.WebhookDeliveries,
		m.NotificationsDedup,
		m.PendingEnqueued,
		m.PendingDrained,
		m.SweepRuns,
		m.TransitionsApplied,
		m.UpstreamFetches,
	)
	return m
}

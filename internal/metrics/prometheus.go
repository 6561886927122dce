package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Subscription metrics
	SnapshotsReceived  *prometheus.CounterVec
	SubscriptionErrors *prometheus.CounterVec
	SubscriptionsOpen  prometheus.Gauge
	TenantSwitches     prometheus.Counter

	// Reconciler metrics
	CanonicalDocuments *prometheus.GaugeVec

	// Conversion metrics
	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration prometheus.Histogram
	LeadDeletionsTotal *prometheus.CounterVec
	PreconditionAborts *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SnapshotsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_snapshots_received_total",
				Help: "Total number of collection snapshots received",
			},
			[]string{"collection"},
		),

		SubscriptionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_subscription_errors_total",
				Help: "Total number of subscription errors",
			},
			[]string{"collection"},
		),

		SubscriptionsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crmsync_subscriptions_open",
				Help: "Number of currently open collection subscriptions",
			},
		),

		TenantSwitches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crmsync_tenant_switches_total",
				Help: "Total number of tenant teardown/rebuild cycles",
			},
		),

		CanonicalDocuments: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crmsync_canonical_documents",
				Help: "Number of documents in each canonical container",
			},
			[]string{"collection"},
		),

		ConversionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_lead_conversions_total",
				Help: "Total number of lead conversion attempts by outcome",
			},
			[]string{"outcome"},
		),

		ConversionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crmsync_lead_conversion_duration_seconds",
				Help:    "Duration of the two-phase lead conversion",
				Buckets: prometheus.DefBuckets,
			},
		),

		LeadDeletionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_lead_deletions_total",
				Help: "Total number of direct lead deletions by outcome",
			},
			[]string{"outcome"},
		),

		PreconditionAborts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_precondition_aborts_total",
				Help: "Total number of operations aborted on a missing precondition",
			},
			[]string{"operation"},
		),
	}
}

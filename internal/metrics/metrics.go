package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks full reconciliation passes by outcome.
	ReconcilePassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_reconcile_passes_total",
			Help: "Total number of full reconciliation passes (by result).",
		},
		[]string{"result"}, // ok | skipped | error
	)

	// Measures end-to-end duration of a reconciliation pass.
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirror_reconcile_duration_seconds",
			Help:    "Duration of full reconciliation passes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms → ~40s
		},
	)

	// Counts orders synthesized by path.
	OrdersSynthesizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_orders_synthesized_total",
			Help: "Total number of order requests synthesized.",
		},
		[]string{"path"}, // diff | replicate
	)

	// Tracks inbound trade events by outcome.
	TradeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_trade_events_total",
			Help: "Total number of inbound leader trade events processed.",
		},
		[]string{"result"}, // replicated | filtered | rejected | error
	)

	// Tracks mark price feed lookups.
	FeedLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_feed_lookups_total",
			Help: "Total number of mark price feed lookups.",
		},
		[]string{"result"}, // ok | unavailable | error
	)

	// Tracks venue batch submissions.
	VenueSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_venue_submissions_total",
			Help: "Total number of venue batch submissions.",
		},
		[]string{"result"}, // ok | rate_limited | error
	)

	VenueSubmitLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirror_venue_submit_latency_seconds",
			Help:    "Latency of venue batch submission.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_errors_total",
			Help: "Count of adapter-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the current positioning ratio (float approximation, for dashboards only).
	PositioningRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_positioning_ratio",
			Help: "Current leader/follower positioning ratio.",
		},
	)

	// Gauges the last successful reconciliation time (seconds since epoch).
	LastReconcileTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_last_reconcile_timestamp",
			Help: "Timestamp (unix seconds) of the last successful reconciliation.",
		},
	)
)

// ObserveDuration records the time since start on a histogram.
func ObserveDuration(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func IncReconcilePass(result string) {
	ReconcilePassesTotal.WithLabelValues(result).Inc()
}

func IncOrdersSynthesized(path string, n int) {
	OrdersSynthesizedTotal.WithLabelValues(path).Add(float64(n))
}

func IncTradeEvent(result string) {
	TradeEventsTotal.WithLabelValues(result).Inc()
}

func IncFeedLookup(result string) {
	FeedLookupsTotal.WithLabelValues(result).Inc()
}

func IncVenueSubmission(result string) {
	VenueSubmissionsTotal.WithLabelValues(result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastReconcile(t time.Time) {
	LastReconcileTimestamp.Set(float64(t.Unix()))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookDeliveriesTotal,
		webhookProcessingDuration,
		webhookSignatureFailuresTotal,
		webhookRateLimitedTotal,
		webhookEventsStale,
	)
}

var (
	// outcome: processed|idempotent|ignored|invalid_signature|invalid_payload|in_flight|error
	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook deliveries by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	webhookProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_seconds",
			Help:    "Duration of webhook handling in seconds, by outcome.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"outcome"},
	)

	webhookSignatureFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Total number of webhook deliveries rejected for a bad signature.",
		},
	)

	webhookRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_rate_limited_total",
			Help: "Total number of webhook deliveries rejected by the rate limiter.",
		},
	)

	webhookEventsStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_events_stale",
			Help: "Unprocessed webhook events older than the configured threshold.",
		},
	)
)

func ObserveWebhook(eventType, outcome string, d time.Duration) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookDeliveriesTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
	webhookProcessingDuration.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}

func IncSignatureFailure() {
	webhookSignatureFailuresTotal.Inc()
}

func IncWebhookRateLimited() {
	webhookRateLimitedTotal.Inc()
}

func SetStaleWebhookEvents(n int) {
	webhookEventsStale.Set(float64(n))
}

package metrics

import (
	"aitools-pro-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(subscriberTransitionsTotal)
}

var subscriberTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "subscriber_transitions_total",
		Help: "Subscriber status transitions applied by the projector.",
	},
	[]string{"from", "to"}, // none|active|past_due|expired|lifetime
)

func IncSubscriberTransition(from, to model.SubscriptionStatus) {
	subscriberTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookDeliveriesTotal, webhookAttempts) }

var webhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdraft_webhook_deliveries_total",
		Help: "Webhook delivery outcomes.",
	},
	[]string{"outcome"}, // 'delivered', 'rejected', 'exhausted'
)

var webhookAttempts = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "mdraft_webhook_attempts",
		Help:    "HTTP attempts spent per webhook delivery.",
		Buckets: []float64{1, 2, 3, 4, 5},
	},
)

func ObserveWebhook(outcome string, attempts int) {
	webhookDeliveriesTotal.WithLabelValues(norm(outcome)).Inc()
	webhookAttempts.Observe(float64(attempts))
}

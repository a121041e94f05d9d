package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(conversionsProcessedTotal, conversionDuration, extractorFallbacksTotal) }

var conversionsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdraft_conversions_processed_total",
		Help: "Total number of conversion jobs processed, labeled by final status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var conversionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mdraft_conversion_duration_seconds",
		Help:    "Wall-clock duration of conversion job processing.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	},
	[]string{"status"},
)

var extractorFallbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdraft_extractor_fallbacks_total",
		Help: "Times the primary extractor failed and a fallback backend was tried.",
	},
	[]string{"backend"},
)

func ObserveConversion(status string, d time.Duration) {
	conversionsProcessedTotal.WithLabelValues(norm(status)).Inc()
	conversionDuration.WithLabelValues(norm(status)).Observe(d.Seconds())
}

func IncExtractorFallback(backend string) {
	extractorFallbacksTotal.WithLabelValues(norm(backend)).Inc()
}

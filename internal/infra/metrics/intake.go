package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(uploadsTotal, dedupHitsTotal) }

var uploadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdraft_uploads_total",
		Help: "Upload intake results, labeled by outcome code.",
	},
	[]string{"result"}, // 'queued', 'duplicate', 'payload_too_large', ...
)

var dedupHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdraft_dedup_hits_total",
		Help: "Dedup short-circuits, labeled by the matched job's status class.",
	},
	[]string{"kind"}, // 'completed', 'in_flight'
)

func IncUpload(result string) {
	uploadsTotal.WithLabelValues(norm(result)).Inc()
}

func IncDedupHit(kind string) {
	dedupHitsTotal.WithLabelValues(norm(kind)).Inc()
}

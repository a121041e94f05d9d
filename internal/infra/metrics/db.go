package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsSweptTotal, queueDepth) }

var jobsSweptTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "mdraft_jobs_swept_total",
		Help: "Expired job rows removed by the retention sweeper.",
	},
)

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "mdraft_queue_depth",
		Help: "Pending task count per conversion queue.",
	},
	[]string{"queue"},
)

func AddJobsSwept(n int) {
	jobsSweptTotal.Add(float64(n))
}

func SetQueueDepth(queue string, n int64) {
	queueDepth.WithLabelValues(norm(queue)).Set(float64(n))
}

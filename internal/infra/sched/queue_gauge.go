package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
	"github.com/jmobrien1/mdraft/internal/infra/metrics"
)

// DepthReporter is the broker fragment that can count pending tasks.
type DepthReporter interface {
	Depth(ctx context.Context, queue string) (int64, error)
}

// QueueGauge periodically samples the task queues into the depth gauge so
// dashboards can see backlog building up before workers fall behind.
type QueueGauge struct {
	interval time.Duration
	queues   []string
	depth    DepthReporter
	log      *zerolog.Logger
}

func NewQueueGauge(interval time.Duration, depth DepthReporter, logger *zerolog.Logger) *QueueGauge {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	gaugeLog := logger.With().Str("component", "QueueGauge").Logger()
	return &QueueGauge{
		interval: interval,
		queues:   []string{adapter.QueueHigh, adapter.QueueDefault},
		depth:    depth,
		log:      &gaugeLog,
	}
}

func (g *QueueGauge) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, queue := range g.queues {
				n, err := g.depth.Depth(ctx, queue)
				if err != nil {
					g.log.Warn().Err(err).Str("queue", queue).Msg("depth sample failed")
					continue
				}
				metrics.SetQueueDepth(queue, n)
			}
		}
	}
}

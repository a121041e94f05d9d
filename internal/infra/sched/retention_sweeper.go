package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
	"github.com/jmobrien1/mdraft/internal/infra/metrics"
)

// RetentionSweeper periodically deletes jobs whose retention deadline has
// passed, then reclaims the stored source blobs the deleted rows pointed at.
type RetentionSweeper struct {
	interval time.Duration
	jobs     repository.ConversionJobRepository
	blobs    adapter.BlobStore
	log      *zerolog.Logger
}

func NewRetentionSweeper(interval time.Duration, jobs repository.ConversionJobRepository, blobs adapter.BlobStore, logger *zerolog.Logger) *RetentionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	sweepLog := logger.With().Str("component", "RetentionSweeper").Logger()
	return &RetentionSweeper{
		interval: interval,
		jobs:     jobs,
		blobs:    blobs,
		log:      &sweepLog,
	}
}

func (w *RetentionSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting retention sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping retention sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetentionSweeper) sweep(ctx context.Context) {
	deleted, refs, err := w.jobs.DeleteExpired(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if deleted == 0 {
		return
	}
	metrics.AddJobsSwept(deleted)

	// The repo only returns refs no surviving row points at, so every
	// delete here is safe. Misses just mean the blob was already gone.
	reclaimed := 0
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		ok, err := w.blobs.Delete(ctx, ref)
		if err != nil {
			w.log.Warn().Err(err).Str("ref", ref).Msg("blob reclaim failed")
			continue
		}
		if ok {
			reclaimed++
		}
	}

	w.log.Info().Int("jobs", deleted).Int("blobs", reclaimed).Msg("retention sweep finished")
}

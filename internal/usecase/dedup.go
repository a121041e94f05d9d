package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
)

// DedupResult is the typed outcome of FindOrReserve: Existing carries a prior
// job (completed or in flight) instead of surfacing the constraint violation
// as an error the caller could forget to handle.
type DedupResult struct {
	Job      *model.ConversionJob
	Existing bool
}

// Deduplicator converges concurrent identical uploads onto one job row.
// The store's unique constraint is the only synchronization mechanism;
// no in-process lock would help with multiple instances racing.
type Deduplicator struct {
	jobs repository.ConversionJobRepository
}

func NewDeduplicator(jobs repository.ConversionJobRepository) *Deduplicator {
	return &Deduplicator{jobs: jobs}
}

// FindOrReserve either returns an existing job for the fingerprint+owner or
// inserts the candidate row in state queued. force skips the completed-job
// lookup, but the insert still collides with any live row.
func (d *Deduplicator) FindOrReserve(ctx context.Context, candidate *model.ConversionJob, force bool) (DedupResult, error) {
	if !force {
		prior, err := d.jobs.FindCompleted(ctx, nil, candidate.Fingerprint, candidate.Owner)
		if err == nil {
			return DedupResult{Job: prior, Existing: true}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return DedupResult{}, fmt.Errorf("dedup lookup: %w", err)
		}
	}

	err := d.jobs.Create(ctx, nil, candidate)
	if err == nil {
		return DedupResult{Job: candidate}, nil
	}
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return DedupResult{}, fmt.Errorf("reserve job: %w", err)
	}

	// Lost the insert race: another request holds the slot. Surface that row
	// whatever its status; the caller reports "already in flight".
	existing, err := d.jobs.FindLive(ctx, nil, candidate.Fingerprint, candidate.Owner)
	if err != nil {
		return DedupResult{}, fmt.Errorf("re-read after conflict: %w", err)
	}
	return DedupResult{Job: existing, Existing: true}, nil
}

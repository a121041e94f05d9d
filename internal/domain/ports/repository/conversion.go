package repository

import (
	"context"
	"time"

	"github.com/jmobrien1/mdraft/internal/domain/model"
)

// ConversionJobRepository is the single source of truth for conversion jobs.
// All idempotency and worker-safety properties derive from its unique
// constraint over (fingerprint, owner) and its compare-and-set updates.
type ConversionJobRepository interface {
	// Create inserts a new row. Returns domain.ErrAlreadyExists when the live
	// (fingerprint, owner) uniqueness constraint is violated.
	Create(ctx context.Context, tx Tx, job *model.ConversionJob) error

	// Save upserts the full row by id.
	Save(ctx context.Context, tx Tx, job *model.ConversionJob) error

	FindByID(ctx context.Context, tx Tx, id string) (*model.ConversionJob, error)

	// FindCompleted looks up a completed job for (fingerprint, owner).
	FindCompleted(ctx context.Context, tx Tx, fingerprint string, owner model.Owner) (*model.ConversionJob, error)

	// FindLive looks up any non-cancelled, non-expired job for
	// (fingerprint, owner), whatever its status.
	FindLive(ctx context.Context, tx Tx, fingerprint string, owner model.Owner) (*model.ConversionJob, error)

	ListByOwner(ctx context.Context, tx Tx, owner model.Owner, offset, limit int) ([]*model.ConversionJob, error)

	// CancelIfQueued atomically moves a queued job to cancelled. Returns
	// domain.ErrInvalidTransition when the job is no longer queued.
	CancelIfQueued(ctx context.Context, tx Tx, id string) error

	// ClaimQueued is the worker's claim: a compare-and-set that moves a
	// queued (or failed, when a resubmission raced the broker) row into
	// processing, writing the claim fields from job. Returns
	// domain.ErrInvalidTransition when another writer got there first.
	ClaimQueued(ctx context.Context, tx Tx, job *model.ConversionJob) error

	// UpdateProcessing writes checkpoint and terminal fields for a row the
	// caller has claimed. The write only lands while the row is still in
	// processing; domain.ErrInvalidTransition means the row changed hands
	// or was deleted and the caller must drop its result.
	UpdateProcessing(ctx context.Context, tx Tx, job *model.ConversionJob) error

	Delete(ctx context.Context, tx Tx, id string) error

	// RefInUse reports whether any row still points at the stored ref.
	// Content-addressed blobs are shared, so callers must check before
	// reclaiming storage.
	RefInUse(ctx context.Context, tx Tx, ref string) (bool, error)

	// DeleteExpired removes rows whose retention deadline has passed. It
	// returns the number of rows deleted and the stored refs that no
	// surviving row references, so the caller can reclaim the blobs.
	DeleteExpired(ctx context.Context, now time.Time) (int, []string, error)
}

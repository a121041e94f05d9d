package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
	"github.com/jmobrien1/mdraft/internal/infra/logging"
)

// JobUseCase covers the read/cancel/resubmit/delete surface of conversion
// jobs. A job is only ever visible to its owner. Lifecycle writes run in a
// transaction so the ownership check and the mutation see the same row.
type JobUseCase struct {
	jobs  repository.ConversionJobRepository
	blobs adapter.BlobStore
	queue adapter.TaskQueue
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewJobUseCase(
	jobs repository.ConversionJobRepository,
	blobs adapter.BlobStore,
	queue adapter.TaskQueue,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *JobUseCase {
	ucLog := logger.With().Str("component", "Jobs").Logger()
	return &JobUseCase{jobs: jobs, blobs: blobs, queue: queue, tm: tm, log: &ucLog}
}

// Get returns the job if it belongs to owner; a foreign job reads as not found.
func (uc *JobUseCase) Get(ctx context.Context, id string, owner model.Owner) (*model.ConversionJob, error) {
	return uc.get(ctx, nil, id, owner)
}

func (uc *JobUseCase) get(ctx context.Context, tx repository.Tx, id string, owner model.Owner) (*model.ConversionJob, error) {
	job, err := uc.jobs.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if job.Owner.Key() != owner.Key() {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (uc *JobUseCase) List(ctx context.Context, owner model.Owner, offset, limit int) ([]*model.ConversionJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uc.jobs.ListByOwner(ctx, nil, owner, offset, limit)
}

// Cancel stops a job that no worker has claimed yet. Once processing has
// begun there is no mid-flight cancellation.
func (uc *JobUseCase) Cancel(ctx context.Context, id string, owner model.Owner) (*model.ConversionJob, error) {
	defer logging.TraceDuration(uc.log, "Jobs.Cancel")()
	var out *model.ConversionJob
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := uc.get(ctx, tx, id, owner); err != nil {
			return err
		}
		if err := uc.jobs.CancelIfQueued(ctx, tx, id); err != nil {
			return err
		}
		job, err := uc.jobs.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("job_id", id).Msg("job cancelled")
	return out, nil
}

// Resubmit moves a failed job back to queued and re-dispatches it.
func (uc *JobUseCase) Resubmit(ctx context.Context, id string, owner model.Owner) (*model.ConversionJob, error) {
	defer logging.TraceDuration(uc.log, "Jobs.Resubmit")()
	var out *model.ConversionJob
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := uc.get(ctx, tx, id, owner)
		if err != nil {
			return err
		}
		if err := job.Transition(model.ConversionStatusQueued); err != nil {
			return err
		}
		if err := uc.jobs.Save(ctx, tx, job); err != nil {
			return fmt.Errorf("save resubmitted job: %w", err)
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := uc.queue.Enqueue(ctx, adapter.QueueDefault, out.ID); err != nil {
		// A row must never sit queued with no task behind it; put the job
		// back to failed with the queue error so the owner can retry.
		uc.log.Error().Err(err).Str("job_id", id).Msg("resubmit enqueue failed, re-failing job")
		out.Status = model.ConversionStatusFailed
		out.Error = "task queue unavailable"
		completed := time.Now()
		out.CompletedAt = &completed
		if saveErr := uc.jobs.Save(ctx, nil, out); saveErr != nil {
			uc.log.Error().Err(saveErr).Str("job_id", id).Msg("could not persist queue failure")
		}
		return nil, domain.ErrQueueUnavailable
	}
	uc.log.Info().Str("job_id", id).Msg("job resubmitted")
	return out, nil
}

// Delete removes the row and, when no other job references the blob, the
// stored source bytes.
func (uc *JobUseCase) Delete(ctx context.Context, id string, owner model.Owner) error {
	defer logging.TraceDuration(uc.log, "Jobs.Delete")()
	var reclaim string
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := uc.get(ctx, tx, id, owner)
		if err != nil {
			return err
		}
		if err := uc.jobs.Delete(ctx, tx, id); err != nil {
			return err
		}
		if job.StoredRef == "" {
			return nil
		}
		shared, err := uc.jobs.RefInUse(ctx, tx, job.StoredRef)
		if err != nil {
			return err
		}
		if !shared {
			reclaim = job.StoredRef
		}
		return nil
	})
	if err != nil {
		return err
	}
	if reclaim != "" {
		if _, err := uc.blobs.Delete(ctx, reclaim); err != nil {
			uc.log.Warn().Err(err).Str("job_id", id).Str("ref", reclaim).Msg("blob cleanup failed")
		}
	}
	return nil
}

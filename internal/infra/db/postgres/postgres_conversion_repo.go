package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
)

var _ repository.ConversionJobRepository = (*ConversionJobRepo)(nil)

// ConversionJobRepo persists conversion jobs. The table carries a partial
// unique index on (fingerprint, owner_key) WHERE status <> 'cancelled';
// that index is the system's idempotency mechanism, so Create must never
// mask a 23505.
type ConversionJobRepo struct {
	pool *pgxpool.Pool
}

func NewConversionJobRepo(pool *pgxpool.Pool) *ConversionJobRepo {
	return &ConversionJobRepo{pool: pool}
}

const jobColumns = `
id, owner_key, user_id, visitor_id, filename, fingerprint, original_mime,
original_size, status, progress, result_text, result_pages, error, stored_ref,
callback_url, created_at, updated_at, started_at, completed_at, expires_at`

func (r *ConversionJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	const q = `
INSERT INTO conversion_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20);`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, q, r.args(job)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *ConversionJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO conversion_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  progress = EXCLUDED.progress,
  result_text = EXCLUDED.result_text,
  result_pages = EXCLUDED.result_pages,
  error = EXCLUDED.error,
  stored_ref = EXCLUDED.stored_ref,
  callback_url = EXCLUDED.callback_url,
  updated_at = EXCLUDED.updated_at,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  expires_at = EXCLUDED.expires_at;`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, q, r.args(job)...)
	return err
}

func (r *ConversionJobRepo) args(job *model.ConversionJob) []interface{} {
	return []interface{}{
		job.ID, job.Owner.Key(), nullable(job.Owner.UserID), nullable(job.Owner.VisitorID),
		job.Filename, job.Fingerprint, job.OriginalMime, job.OriginalSize,
		string(job.Status), job.Progress, job.ResultText, job.ResultPages,
		job.Error, job.StoredRef, job.CallbackURL,
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt, job.ExpiresAt,
	}
}

func (r *ConversionJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConversionJob, error) {
	const q = `SELECT ` + jobColumns + ` FROM conversion_jobs WHERE id = $1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *ConversionJobRepo) FindCompleted(ctx context.Context, tx repository.Tx, fingerprint string, owner model.Owner) (*model.ConversionJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM conversion_jobs
WHERE fingerprint = $1 AND owner_key = $2 AND status = 'completed'
ORDER BY created_at DESC
LIMIT 1;`
	return r.queryOne(ctx, tx, q, fingerprint, owner.Key())
}

func (r *ConversionJobRepo) FindLive(ctx context.Context, tx repository.Tx, fingerprint string, owner model.Owner) (*model.ConversionJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM conversion_jobs
WHERE fingerprint = $1 AND owner_key = $2 AND status <> 'cancelled'
ORDER BY created_at DESC
LIMIT 1;`
	return r.queryOne(ctx, tx, q, fingerprint, owner.Key())
}

func (r *ConversionJobRepo) ListByOwner(ctx context.Context, tx repository.Tx, owner model.Owner, offset, limit int) ([]*model.ConversionJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM conversion_jobs
WHERE owner_key = $1
ORDER BY created_at DESC
OFFSET $2 LIMIT $3;`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, owner.Key(), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.ConversionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CancelIfQueued is a compare-and-set: the WHERE clause loses the race to any
// worker that already claimed the job.
func (r *ConversionJobRepo) CancelIfQueued(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE conversion_jobs
SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status = 'queued';`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, tx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

// ClaimQueued is the worker-side compare-and-set: the WHERE clause arbitrates
// against a cancellation or a second worker holding a duplicate delivery.
// Failed rows are claimable too, covering a resubmission that raced a
// restart. The caller passes a job it has already moved to processing
// locally, so the row ends up matching the in-memory copy.
func (r *ConversionJobRepo) ClaimQueued(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	const q = `
UPDATE conversion_jobs
SET status = 'processing', progress = $2, error = '',
    started_at = $3, completed_at = NULL, updated_at = $4
WHERE id = $1 AND status IN ('queued', 'failed');`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, job.ID, job.Progress, job.StartedAt, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, tx, job.ID); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

// UpdateProcessing carries checkpoint progress and the terminal result of a
// claimed job. The status guard keeps a finishing worker from resurrecting a
// row that was deleted, or clobbering one that is no longer its claim.
func (r *ConversionJobRepo) UpdateProcessing(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	job.UpdatedAt = time.Now()

	const q = `
UPDATE conversion_jobs
SET status = $2, progress = $3, result_text = $4, result_pages = $5,
    error = $6, completed_at = $7, updated_at = $8
WHERE id = $1 AND status = 'processing';`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q,
		job.ID, string(job.Status), job.Progress, job.ResultText,
		job.ResultPages, job.Error, job.CompletedAt, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *ConversionJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `DELETE FROM conversion_jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversionJobRepo) RefInUse(ctx context.Context, tx repository.Tx, ref string) (bool, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	var inUse bool
	const q = `SELECT EXISTS (SELECT 1 FROM conversion_jobs WHERE stored_ref = $1);`
	if err := ex.QueryRow(ctx, q, ref).Scan(&inUse); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return inUse, nil
}

func (r *ConversionJobRepo) DeleteExpired(ctx context.Context, now time.Time) (int, []string, error) {
	// One row per deleted job, flagged reclaimable when the blob is
	// content addressed to no surviving row. The flag filtering happens
	// here rather than in SQL so the caller also learns the row count.
	const q = `
WITH removed AS (
    DELETE FROM conversion_jobs
    WHERE expires_at IS NOT NULL AND expires_at < $1
    RETURNING stored_ref
)
SELECT stored_ref,
       stored_ref <> '' AND stored_ref NOT IN (
           SELECT stored_ref FROM conversion_jobs
           WHERE expires_at IS NULL OR expires_at >= $1
       ) AS reclaimable
FROM removed;`

	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	deleted := 0
	seen := make(map[string]struct{})
	var refs []string
	for rows.Next() {
		var (
			ref         string
			reclaimable bool
		)
		if err := rows.Scan(&ref, &reclaimable); err != nil {
			return 0, nil, domain.ErrReadDatabaseRow
		}
		deleted++
		if !reclaimable {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return deleted, refs, rows.Err()
}

func (r *ConversionJobRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.ConversionJob, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(ex.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.ConversionJob, error) {
	var (
		job               model.ConversionJob
		statusStr         string
		userID, visitorID *string
		ownerKey          string
	)
	err := row.Scan(
		&job.ID, &ownerKey, &userID, &visitorID, &job.Filename, &job.Fingerprint,
		&job.OriginalMime, &job.OriginalSize, &statusStr, &job.Progress,
		&job.ResultText, &job.ResultPages, &job.Error, &job.StoredRef,
		&job.CallbackURL, &job.CreatedAt, &job.UpdatedAt,
		&job.StartedAt, &job.CompletedAt, &job.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.ConversionStatus(statusStr)
	if userID != nil {
		job.Owner.UserID = *userID
	}
	if visitorID != nil {
		job.Owner.VisitorID = *visitorID
	}
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package usecase

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/contenthash"
	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
	"github.com/jmobrien1/mdraft/internal/infra/logging"
	"github.com/jmobrien1/mdraft/internal/infra/metrics"
	"github.com/jmobrien1/mdraft/internal/infra/redis"
	"github.com/jmobrien1/mdraft/internal/media"
)

// RateLimiter is the shared TTL counter guarding the intake path.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// executable formats are rejected outright even when their bytes sniff as text
var blockedExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".bat": true, ".cmd": true, ".com": true, ".msi": true,
}

type SubmitRequest struct {
	Filename     string
	DeclaredMime string
	Data         []byte
	Owner        model.Owner
	CallbackURL  string
	// Force bypasses the completed-job dedup lookup (the unique constraint
	// still applies to live jobs).
	Force bool
}

type SubmitResult struct {
	Job *model.ConversionJob
	// DuplicateOf is set on a dedup hit against a completed job.
	DuplicateOf string
	// InFlight marks a hit against a job that is still queued/processing.
	InFlight bool
}

type IntakeOptions struct {
	Limits             media.SizeLimits
	RateLimitPerMinute int
	EnqueueRetries     int
	RetentionTTL       time.Duration
}

// IntakeUseCase runs the synchronous upload path: validate, hash, dedup,
// create, dispatch. Heavy work never happens here.
type IntakeUseCase struct {
	jobs     repository.ConversionJobRepository
	accounts repository.AccountRepository
	dedup    *Deduplicator
	blobs    adapter.BlobStore
	queue    adapter.TaskQueue
	limiter  RateLimiter
	opts     IntakeOptions
	log      *zerolog.Logger
}

func NewIntakeUseCase(
	jobs repository.ConversionJobRepository,
	accounts repository.AccountRepository,
	blobs adapter.BlobStore,
	queue adapter.TaskQueue,
	limiter RateLimiter,
	opts IntakeOptions,
	logger *zerolog.Logger,
) *IntakeUseCase {
	ucLog := logger.With().Str("component", "Intake").Logger()
	if opts.EnqueueRetries <= 0 {
		opts.EnqueueRetries = 3
	}
	return &IntakeUseCase{
		jobs:     jobs,
		accounts: accounts,
		dedup:    NewDeduplicator(jobs),
		blobs:    blobs,
		queue:    queue,
		limiter:  limiter,
		opts:     opts,
		log:      &ucLog,
	}
}

func (uc *IntakeUseCase) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	defer logging.TraceDuration(uc.log, "Intake.Submit")()
	if !req.Owner.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if err := uc.allowUpload(ctx, req.Owner); err != nil {
		return nil, err
	}
	if req.Filename == "" && len(req.Data) == 0 {
		return nil, domain.ErrFileRequired
	}
	if len(req.Data) == 0 {
		return nil, domain.ErrFileEmpty
	}
	if blockedExtensions[strings.ToLower(filepath.Ext(req.Filename))] {
		metrics.IncUpload("file_type_not_allowed")
		return nil, domain.ErrFileTypeBlocked
	}

	head := req.Data
	if len(head) > media.SniffLen {
		head = head[:media.SniffLen]
	}
	mime, category, ok := media.Classify(head, req.DeclaredMime)
	if !ok {
		metrics.IncUpload("unsupported_media_type")
		return nil, domain.ErrUnsupportedMedia
	}
	if !uc.opts.Limits.SizeOK(int64(len(req.Data)), category) {
		metrics.IncUpload("payload_too_large")
		return nil, domain.ErrPayloadTooLarge
	}

	fingerprint, err := contenthash.Sum(bytes.NewReader(req.Data))
	if err != nil {
		return nil, err
	}

	ref, err := uc.blobs.Put(ctx, req.Data)
	if err != nil {
		return nil, fmt.Errorf("store source: %w", err)
	}

	now := time.Now()
	candidate := &model.ConversionJob{
		Owner:        req.Owner,
		Filename:     req.Filename,
		Fingerprint:  fingerprint,
		OriginalMime: mime,
		OriginalSize: int64(len(req.Data)),
		Status:       model.ConversionStatusQueued,
		StoredRef:    ref,
		CallbackURL:  req.CallbackURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if uc.opts.RetentionTTL > 0 {
		deadline := now.Add(uc.opts.RetentionTTL)
		candidate.ExpiresAt = &deadline
	}

	res, err := uc.dedup.FindOrReserve(ctx, candidate, req.Force)
	if err != nil {
		return nil, err
	}
	if res.Existing {
		if res.Job.Status == model.ConversionStatusCompleted {
			metrics.IncDedupHit("completed")
			uc.log.Info().Str("job_id", res.Job.ID).Str("fingerprint", fingerprint).Msg("dedup hit on completed job")
			return &SubmitResult{Job: res.Job, DuplicateOf: res.Job.ID}, nil
		}
		metrics.IncDedupHit("in_flight")
		return &SubmitResult{Job: res.Job, InFlight: true}, nil
	}

	if err := uc.dispatch(ctx, res.Job); err != nil {
		return nil, err
	}
	metrics.IncUpload("queued")
	uc.log.Info().Str("job_id", res.Job.ID).Str("mime", mime).Int64("size", candidate.OriginalSize).Msg("conversion queued")
	return &SubmitResult{Job: res.Job}, nil
}

// dispatch routes the job to its priority queue and enqueues it, retrying a
// bounded number of times. A row must never be left queued with no task
// behind it, so exhaustion marks the job failed before returning.
func (uc *IntakeUseCase) dispatch(ctx context.Context, job *model.ConversionJob) error {
	queue := uc.route(ctx, job.Owner)

	var err error
	for attempt := 0; attempt < uc.opts.EnqueueRetries; attempt++ {
		if err = uc.queue.Enqueue(ctx, queue, job.ID); err == nil {
			return nil
		}
	}

	uc.log.Error().Err(err).Str("job_id", job.ID).Str("queue", queue).Msg("enqueue exhausted, failing job")
	job.Status = model.ConversionStatusFailed
	job.Error = "task queue unavailable"
	completed := time.Now()
	job.CompletedAt = &completed
	if saveErr := uc.jobs.Save(ctx, nil, job); saveErr != nil {
		uc.log.Error().Err(saveErr).Str("job_id", job.ID).Msg("could not persist queue failure")
	}
	return domain.ErrQueueUnavailable
}

// route maps a privileged owner tier to the high-priority queue; everyone
// else, visitors included, goes to the default queue.
func (uc *IntakeUseCase) route(ctx context.Context, owner model.Owner) string {
	if owner.UserID == "" {
		return adapter.QueueDefault
	}
	privileged, err := uc.accounts.IsPrivileged(ctx, nil, owner.UserID)
	if err != nil {
		uc.log.Warn().Err(err).Str("owner", owner.Key()).Msg("tier lookup failed, using default queue")
		return adapter.QueueDefault
	}
	if privileged {
		return adapter.QueueHigh
	}
	return adapter.QueueDefault
}

func (uc *IntakeUseCase) allowUpload(ctx context.Context, owner model.Owner) error {
	if uc.limiter == nil || uc.opts.RateLimitPerMinute <= 0 {
		return nil
	}
	ok, err := uc.limiter.Allow(ctx, redis.UploadKey(owner.Key()), uc.opts.RateLimitPerMinute, time.Minute)
	if err != nil {
		// A broken limiter must not take intake down with it.
		uc.log.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		metrics.IncUpload("rate_limited")
		return domain.ErrRateLimited
	}
	return nil
}

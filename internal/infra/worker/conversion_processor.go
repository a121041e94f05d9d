package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
	"github.com/jmobrien1/mdraft/internal/infra/extract"
	"github.com/jmobrien1/mdraft/internal/infra/logging"
	"github.com/jmobrien1/mdraft/internal/infra/metrics"
	"github.com/jmobrien1/mdraft/internal/usecase"
)

// Progress checkpoints surfaced to pollers while a job runs.
const (
	progressClaimed    = 5
	progressLoaded     = 15
	progressExtracted  = 80
	progressNormalized = 90
	progressDone       = 100
)

const notifyTimeout = time.Minute

// ConversionProcessor claims job ids from the task queues and runs the
// conversion pipeline on the worker pool. Queues are drained strictly in
// priority order.
type ConversionProcessor struct {
	jobs     repository.ConversionJobRepository
	blobs    adapter.BlobStore
	extract  adapter.Extractor
	queue    adapter.TaskQueue
	notifier adapter.Notifier
	retry    usecase.RetryPolicy
	pollWait time.Duration
	log      *zerolog.Logger
}

func NewConversionProcessor(
	jobs repository.ConversionJobRepository,
	blobs adapter.BlobStore,
	extractor adapter.Extractor,
	queue adapter.TaskQueue,
	notifier adapter.Notifier,
	retry usecase.RetryPolicy,
	pollWait time.Duration,
	logger *zerolog.Logger,
) *ConversionProcessor {
	if pollWait <= 0 {
		pollWait = 2 * time.Second
	}
	procLog := logger.With().Str("component", "ConversionProcessor").Logger()
	return &ConversionProcessor{
		jobs:     jobs,
		blobs:    blobs,
		extract:  extractor,
		queue:    queue,
		notifier: notifier,
		retry:    retry,
		pollWait: pollWait,
		log:      &procLog,
	}
}

// Start runs the claim loop until ctx is cancelled. Run it in a goroutine.
func (p *ConversionProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("conversion processor started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("conversion processor stopping")
			return
		default:
		}

		queue, jobID, err := p.queue.Dequeue(ctx, p.pollWait, adapter.QueueHigh, adapter.QueueDefault)
		if err != nil {
			if err == domain.ErrNotFound || ctx.Err() != nil {
				continue
			}
			p.log.Error().Err(err).Msg("dequeue failed")
			continue
		}

		id := jobID
		if err := pool.Submit(func(ctx context.Context) error {
			p.processOne(ctx, id)
			return nil
		}); err != nil {
			// Pool saturated; put the id back on the queue it came from so
			// another poll can claim it without losing its priority.
			if qerr := p.queue.Enqueue(ctx, queue, id); qerr != nil {
				p.log.Error().Err(qerr).Str("job_id", id).Str("queue", queue).Msg("requeue after saturation failed")
			}
		}
	}
}

// processOne drives a single claimed job id through the pipeline. The queue
// delivers at-least-once, so every claim starts by re-reading the row and
// deciding whether there is still work to do.
func (p *ConversionProcessor) processOne(ctx context.Context, jobID string) {
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, p.log)

	job, err := p.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		if err == domain.ErrNotFound {
			log.Warn().Msg("claimed job no longer exists")
		} else {
			log.Error().Err(err).Msg("claimed job read failed")
		}
		return
	}

	switch job.Status {
	case model.ConversionStatusQueued:
		// normal claim
	case model.ConversionStatusCompleted:
		log.Info().Msg("duplicate delivery of a completed job, skipping")
		return
	case model.ConversionStatusFailed:
		// A resubmission raced the worker restart; requeue-in-place and run.
		if err := job.Transition(model.ConversionStatusQueued); err != nil {
			log.Error().Err(err).Msg("failed job could not be requeued")
			return
		}
	default:
		// cancelled or already processing: nothing to do here, and mutating
		// the row would fight whoever owns it.
		log.Warn().Str("status", string(job.Status)).Err(domain.ErrInvalidState).Msg("claimed job not runnable")
		return
	}

	if err := job.Transition(model.ConversionStatusProcessing); err != nil {
		log.Error().Err(err).Msg("claim transition rejected")
		return
	}
	_ = job.SetProgress(progressClaimed)
	// The compare-and-set is the claim. Losing it means a cancel or another
	// worker's duplicate delivery got to the row after our read; the row is
	// theirs and we walk away.
	if err := p.jobs.ClaimQueued(ctx, nil, job); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info().Msg("lost the claim race, skipping")
		} else {
			log.Error().Err(err).Msg("claim failed")
		}
		return
	}

	start := time.Now()
	runErr := p.retry.Do(ctx, func(ctx context.Context) error {
		return p.convert(ctx, job)
	})
	elapsed := time.Since(start)

	if runErr != nil {
		job.Error = runErr.Error()
		if err := job.Transition(model.ConversionStatusFailed); err != nil {
			log.Error().Err(err).Msg("failure transition rejected")
			return
		}
		log.Error().Err(runErr).Dur("duration_ms", elapsed).Msg("conversion failed")
	} else {
		_ = job.SetProgress(progressDone)
		if err := job.Transition(model.ConversionStatusCompleted); err != nil {
			log.Error().Err(err).Msg("completion transition rejected")
			return
		}
		log.Info().Int("pages", job.ResultPages).Dur("duration_ms", elapsed).Msg("conversion completed")
	}

	metrics.ObserveConversion(string(job.Status), elapsed)

	// Terminal write uses a background context so a shutdown mid-save does
	// not strand the row in processing. It only lands while the row is still
	// ours; a row deleted mid-run must stay gone.
	if err := p.jobs.UpdateProcessing(context.Background(), nil, job); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn().Msg("row changed hands mid-run, dropping result")
		} else {
			log.Error().Err(err).Msg("final save failed")
		}
		return
	}

	p.notify(job)
}

// convert runs the pipeline steps on a job already marked processing.
// Checkpoint saves are best-effort; only the step itself can fail the run.
func (p *ConversionProcessor) convert(ctx context.Context, job *model.ConversionJob) error {
	data, err := p.blobs.Get(ctx, job.StoredRef)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}
	p.checkpoint(ctx, job, progressLoaded)

	text, err := p.extract.Extract(ctx, data, job.OriginalMime)
	if err != nil {
		return err
	}
	p.checkpoint(ctx, job, progressExtracted)

	text = extract.Normalize(text)
	p.checkpoint(ctx, job, progressNormalized)

	job.ResultText = text
	job.ResultPages = extract.EstimatePages(text)
	return nil
}

func (p *ConversionProcessor) checkpoint(ctx context.Context, job *model.ConversionJob, progress int) {
	if err := job.SetProgress(progress); err != nil {
		return
	}
	if err := p.jobs.UpdateProcessing(ctx, nil, job); err != nil {
		p.log.Warn().Err(err).Str("job_id", job.ID).Int("progress", progress).Msg("checkpoint save failed")
	}
}

type webhookPayload struct {
	JobID       string            `json:"job_id"`
	Status      string            `json:"status"`
	Filename    string            `json:"filename"`
	Progress    int               `json:"progress"`
	ResultPages int               `json:"result_pages,omitempty"`
	Error       string            `json:"error,omitempty"`
	CompletedAt string            `json:"completed_at,omitempty"`
	Links       map[string]string `json:"links"`
}

// payloadLinks mirrors the link set the read API returns for the same
// job state, as paths relative to the service base.
func payloadLinks(job *model.ConversionJob) map[string]string {
	base := "/api/v1/conversions/" + job.ID
	links := map[string]string{"self": base}
	switch job.Status {
	case model.ConversionStatusCompleted:
		links["result"] = base + "/result"
	case model.ConversionStatusFailed:
		links["resubmit"] = base + "/resubmit"
	}
	return links
}

// notify fires the owner's callback in the background. Delivery outcome
// never touches the job row.
func (p *ConversionProcessor) notify(job *model.ConversionJob) {
	if job.CallbackURL == "" || p.notifier == nil {
		return
	}
	event := "conversion.completed"
	if job.Status == model.ConversionStatusFailed {
		event = "conversion.failed"
	}
	payload := webhookPayload{
		JobID:       job.ID,
		Status:      string(job.Status),
		Filename:    job.Filename,
		Progress:    job.Progress,
		ResultPages: job.ResultPages,
		Error:       job.Error,
		Links:       payloadLinks(job),
	}
	if job.CompletedAt != nil {
		payload.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	url := job.CallbackURL
	jobID := job.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		status, _, err := p.notifier.Deliver(ctx, url, event, payload)
		if err != nil {
			p.log.Warn().Err(err).Str("job_id", jobID).Str("event", event).Msg("webhook delivery failed")
			return
		}
		p.log.Info().Str("job_id", jobID).Str("event", event).Int("status", status).Msg("webhook delivered")
	}()
}

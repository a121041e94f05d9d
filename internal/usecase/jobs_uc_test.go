//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
)

func seedJob(repo *memJobRepo, id string, owner model.Owner, status model.ConversionStatus) *model.ConversionJob {
	now := time.Now()
	job := &model.ConversionJob{
		ID:          id,
		Owner:       owner,
		Filename:    "doc.txt",
		Fingerprint: "fp-" + id,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = repo.Save(context.Background(), nil, job)
	return job
}

func TestJobUseCase(t *testing.T) {
	ctx := context.Background()
	owner := model.Owner{VisitorID: "vis-1"}
	stranger := model.Owner{VisitorID: "vis-2"}

	t.Run("Get hides foreign jobs", func(t *testing.T) {
		repo := newMemJobRepo()
		seedJob(repo, "j1", owner, model.ConversionStatusQueued)
		uc := NewJobUseCase(repo, newMemBlobStore(), &mockQueue{}, passTxManager{}, newTestLogger())

		if _, err := uc.Get(ctx, "j1", owner); err != nil {
			t.Fatalf("owner read: %v", err)
		}
		if _, err := uc.Get(ctx, "j1", stranger); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for a stranger, got %v", err)
		}
	})

	t.Run("Cancel only while queued", func(t *testing.T) {
		repo := newMemJobRepo()
		seedJob(repo, "j1", owner, model.ConversionStatusQueued)
		seedJob(repo, "j2", owner, model.ConversionStatusProcessing)
		uc := NewJobUseCase(repo, newMemBlobStore(), &mockQueue{}, passTxManager{}, newTestLogger())

		job, err := uc.Cancel(ctx, "j1", owner)
		if err != nil {
			t.Fatalf("cancel queued: %v", err)
		}
		if job.Status != model.ConversionStatusCancelled {
			t.Errorf("expected cancelled, got %s", job.Status)
		}
		if _, err := uc.Cancel(ctx, "j2", owner); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition for a claimed job, got %v", err)
		}
	})

	t.Run("Resubmit requeues a failed job and clears the error", func(t *testing.T) {
		repo := newMemJobRepo()
		job := seedJob(repo, "j1", owner, model.ConversionStatusFailed)
		job.Error = "extractor failed"
		job.Progress = 15
		_ = repo.Save(ctx, nil, job)
		queue := &mockQueue{}
		uc := NewJobUseCase(repo, newMemBlobStore(), queue, passTxManager{}, newTestLogger())

		out, err := uc.Resubmit(ctx, "j1", owner)
		if err != nil {
			t.Fatalf("resubmit: %v", err)
		}
		if out.Status != model.ConversionStatusQueued {
			t.Errorf("expected queued, got %s", out.Status)
		}
		if out.Error != "" || out.Progress != 0 {
			t.Errorf("expected cleared failure state, got error=%q progress=%d", out.Error, out.Progress)
		}
		if len(queue.calls()) != 1 {
			t.Errorf("expected a re-enqueue, got %v", queue.calls())
		}
	})

	t.Run("Resubmit re-fails the job when enqueue is unavailable", func(t *testing.T) {
		repo := newMemJobRepo()
		seedJob(repo, "j1", owner, model.ConversionStatusFailed)
		queue := &mockQueue{EnqueueErr: domain.ErrQueueUnavailable}
		uc := NewJobUseCase(repo, newMemBlobStore(), queue, passTxManager{}, newTestLogger())

		if _, err := uc.Resubmit(ctx, "j1", owner); !errors.Is(err, domain.ErrQueueUnavailable) {
			t.Fatalf("expected ErrQueueUnavailable, got %v", err)
		}
		// The row must not be left queued with no task behind it.
		got, err := repo.FindByID(ctx, nil, "j1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Status != model.ConversionStatusFailed {
			t.Errorf("expected the job back in failed, got %s", got.Status)
		}
		if got.Error == "" {
			t.Error("expected a queue-error reason on the job")
		}
	})

	t.Run("Resubmit rejects non-failed jobs", func(t *testing.T) {
		repo := newMemJobRepo()
		seedJob(repo, "j1", owner, model.ConversionStatusCompleted)
		uc := NewJobUseCase(repo, newMemBlobStore(), &mockQueue{}, passTxManager{}, newTestLogger())

		if _, err := uc.Resubmit(ctx, "j1", owner); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Delete removes the row and the blob", func(t *testing.T) {
		repo := newMemJobRepo()
		blobs := newMemBlobStore()
		ref, _ := blobs.Put(ctx, []byte("source"))
		job := seedJob(repo, "j1", owner, model.ConversionStatusCompleted)
		job.StoredRef = ref
		_ = repo.Save(ctx, nil, job)
		uc := NewJobUseCase(repo, blobs, &mockQueue{}, passTxManager{}, newTestLogger())

		if err := uc.Delete(ctx, "j1", owner); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := repo.FindByID(ctx, nil, "j1"); !errors.Is(err, domain.ErrNotFound) {
			t.Error("expected the row to be gone")
		}
		if ok, _ := blobs.Exists(ctx, ref); ok {
			t.Error("expected the blob to be gone")
		}
	})
}

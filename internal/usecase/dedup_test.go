//go:build !integration

package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmobrien1/mdraft/internal/domain/model"
)

func queuedCandidate(fingerprint string, owner model.Owner) *model.ConversionJob {
	now := time.Now()
	return &model.ConversionJob{
		Owner:       owner,
		Filename:    "doc.txt",
		Fingerprint: fingerprint,
		Status:      model.ConversionStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestDeduplicator_FindOrReserve(t *testing.T) {
	ctx := context.Background()
	ownerA := model.Owner{VisitorID: "vis-a"}

	t.Run("should reserve a fresh fingerprint", func(t *testing.T) {
		repo := newMemJobRepo()
		d := NewDeduplicator(repo)

		res, err := d.FindOrReserve(ctx, queuedCandidate("fp-1", ownerA), false)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.Existing {
			t.Error("expected a reservation, but got an existing job")
		}
		if res.Job.ID == "" {
			t.Error("expected the reserved job to have an id")
		}
	})

	t.Run("should return the completed job on a dedup hit", func(t *testing.T) {
		repo := newMemJobRepo()
		prior := queuedCandidate("fp-1", ownerA)
		prior.Status = model.ConversionStatusCompleted
		prior.ID = "prior-id"
		_ = repo.Save(ctx, nil, prior)

		d := NewDeduplicator(repo)
		res, err := d.FindOrReserve(ctx, queuedCandidate("fp-1", ownerA), false)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !res.Existing {
			t.Fatal("expected an existing job")
		}
		if res.Job.ID != "prior-id" {
			t.Errorf("expected the prior job, but got %s", res.Job.ID)
		}

		if len(repo.store) != 1 {
			t.Errorf("expected no new row, but found %d rows", len(repo.store))
		}
	})

	t.Run("should surface an in-flight job after losing the insert race", func(t *testing.T) {
		repo := newMemJobRepo()
		inFlight := queuedCandidate("fp-1", ownerA)
		inFlight.ID = "in-flight"
		inFlight.Status = model.ConversionStatusProcessing
		_ = repo.Save(ctx, nil, inFlight)

		d := NewDeduplicator(repo)
		res, err := d.FindOrReserve(ctx, queuedCandidate("fp-1", ownerA), false)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !res.Existing {
			t.Fatal("expected an existing job")
		}
		if res.Job.ID != "in-flight" {
			t.Errorf("expected the in-flight job, but got %s", res.Job.ID)
		}
	})

	t.Run("force skips the completed lookup but still collides with live rows", func(t *testing.T) {
		repo := newMemJobRepo()
		live := queuedCandidate("fp-1", ownerA)
		live.ID = "live"
		_ = repo.Save(ctx, nil, live)

		d := NewDeduplicator(repo)
		res, err := d.FindOrReserve(ctx, queuedCandidate("fp-1", ownerA), true)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !res.Existing || res.Job.ID != "live" {
			t.Errorf("expected collision with the live job, got existing=%v id=%s", res.Existing, res.Job.ID)
		}
	})

	t.Run("force creates a duplicate once the prior job is cancelled", func(t *testing.T) {
		repo := newMemJobRepo()
		cancelled := queuedCandidate("fp-1", ownerA)
		cancelled.ID = "cancelled"
		cancelled.Status = model.ConversionStatusCancelled
		_ = repo.Save(ctx, nil, cancelled)

		d := NewDeduplicator(repo)
		res, err := d.FindOrReserve(ctx, queuedCandidate("fp-1", ownerA), true)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.Existing {
			t.Error("expected a fresh reservation")
		}
	})

	t.Run("different owners get independent jobs", func(t *testing.T) {
		repo := newMemJobRepo()
		d := NewDeduplicator(repo)

		resA, err := d.FindOrReserve(ctx, queuedCandidate("fp-1", ownerA), false)
		if err != nil {
			t.Fatalf("owner A: %v", err)
		}
		resB, err := d.FindOrReserve(ctx, queuedCandidate("fp-1", model.Owner{UserID: "acc-b"}), false)
		if err != nil {
			t.Fatalf("owner B: %v", err)
		}
		if resB.Existing {
			t.Error("expected owner B to get a fresh job")
		}
		if resA.Job.ID == resB.Job.ID {
			t.Error("owners must not share a job row")
		}
	})

	t.Run("concurrent identical submissions converge on one row", func(t *testing.T) {
		repo := newMemJobRepo()
		d := NewDeduplicator(repo)

		const n = 16
		var wg sync.WaitGroup
		reserved := make(chan string, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := d.FindOrReserve(ctx, queuedCandidate("fp-race", ownerA), false)
				if err != nil {
					t.Errorf("FindOrReserve: %v", err)
					return
				}
				if !res.Existing {
					reserved <- res.Job.ID
				}
			}()
		}
		wg.Wait()
		close(reserved)

		var winners []string
		for id := range reserved {
			winners = append(winners, id)
		}
		if len(winners) != 1 {
			t.Fatalf("expected exactly one reservation, but got %d", len(winners))
		}
		if len(repo.store) != 1 {
			t.Errorf("expected one job row, but found %d", len(repo.store))
		}
	})
}

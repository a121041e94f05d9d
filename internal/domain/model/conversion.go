package model

import (
	"time"

	"github.com/jmobrien1/mdraft/internal/domain"
)

type ConversionStatus string

const (
	ConversionStatusQueued     ConversionStatus = "queued"
	ConversionStatusProcessing ConversionStatus = "processing"
	ConversionStatusCompleted  ConversionStatus = "completed"
	ConversionStatusFailed     ConversionStatus = "failed"
	ConversionStatusCancelled  ConversionStatus = "cancelled"
)

// transitions is the full edge table of the job state machine. FAILED→QUEUED
// exists only for explicit resubmission, never automatic.
var transitions = map[ConversionStatus][]ConversionStatus{
	ConversionStatusQueued:     {ConversionStatusProcessing, ConversionStatusCancelled},
	ConversionStatusProcessing: {ConversionStatusCompleted, ConversionStatusFailed},
	ConversionStatusFailed:     {ConversionStatusQueued},
}

// Owner scopes a job to exactly one of an authenticated account or an
// anonymous visitor.
type Owner struct {
	UserID    string
	VisitorID string
}

func (o Owner) Valid() bool {
	return (o.UserID == "") != (o.VisitorID == "")
}

// Key is the value stored in the jobs table and used by the
// (fingerprint, owner) uniqueness constraint.
func (o Owner) Key() string {
	if o.UserID != "" {
		return "u:" + o.UserID
	}
	return "v:" + o.VisitorID
}

func (o Owner) ID() string {
	if o.UserID != "" {
		return o.UserID
	}
	return o.VisitorID
}

type ConversionJob struct {
	ID           string
	Owner        Owner
	Filename     string
	Fingerprint  string
	OriginalMime string
	OriginalSize int64
	Status       ConversionStatus
	Progress     int
	ResultText   string
	ResultPages  int
	Error        string
	StoredRef    string
	CallbackURL  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExpiresAt    *time.Time
}

// CanTransition reports whether target is a legal edge from the current status.
func (j *ConversionJob) CanTransition(target ConversionStatus) bool {
	for _, next := range transitions[j.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// Transition applies a status change. The edge is validated before any field
// is touched, so a rejected transition leaves the job unchanged.
func (j *ConversionJob) Transition(target ConversionStatus) error {
	if !j.CanTransition(target) {
		return domain.ErrInvalidTransition
	}
	now := time.Now()
	switch target {
	case ConversionStatusProcessing:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case ConversionStatusCompleted, ConversionStatusFailed:
		j.CompletedAt = &now
	case ConversionStatusQueued:
		// Resubmission: drop failure residue and start over.
		j.Error = ""
		j.Progress = 0
		j.CompletedAt = nil
	}
	j.Status = target
	j.UpdatedAt = now
	return nil
}

// SetProgress advances the progress checkpoint. Only legal while processing,
// and only forwards; a failed job keeps its last reached checkpoint.
func (j *ConversionJob) SetProgress(p int) error {
	if j.Status != ConversionStatusProcessing {
		return domain.ErrInvalidState
	}
	if p < 0 || p > 100 {
		return domain.ErrInvalidArgument
	}
	if p < j.Progress {
		return nil
	}
	j.Progress = p
	j.UpdatedAt = time.Now()
	return nil
}

// Terminal reports whether the job can never change status again on its own.
func (j *ConversionJob) Terminal() bool {
	return j.Status == ConversionStatusCompleted || j.Status == ConversionStatusCancelled
}

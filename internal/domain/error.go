package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow   = errors.New("failed to read database row")

	// Intake validation errors; each maps to a machine-readable code at
	// the HTTP boundary.
	ErrFileRequired     = errors.New("file is required")
	ErrFileEmpty        = errors.New("file is empty")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrFileTypeBlocked  = errors.New("file type not allowed")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrRateLimited      = errors.New("too many uploads")

	// Pipeline errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("job is in an impossible state")
	ErrQueueUnavailable  = errors.New("task queue unavailable")
	ErrExtractFailed     = errors.New("text extraction failed")
)

package adapter

import (
	"context"
	"time"
)

// Queue names, in drain order: workers empty High before touching Default.
const (
	QueueHigh    = "convert:high"
	QueueDefault = "convert:default"
)

// TaskQueue is the broker between the intake path and the worker pool.
// Delivery is at-least-once; workers must tolerate duplicate job ids.
type TaskQueue interface {
	Enqueue(ctx context.Context, queue, jobID string) error
	// Dequeue blocks up to timeout waiting for work across the given queues,
	// honoring their order as priority. It reports the queue the job came
	// from so the caller can put it back where it was on failure. Returns
	// domain.ErrNotFound on timeout.
	Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (queue, jobID string, err error)
}

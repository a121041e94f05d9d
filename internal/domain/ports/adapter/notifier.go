package adapter

import "context"

// Notifier delivers job completion callbacks. Delivery is at-least-once and
// best-effort: failures never affect the job's own outcome.
type Notifier interface {
	Deliver(ctx context.Context, url, event string, data any) (status int, body []byte, err error)
}

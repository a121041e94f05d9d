package adapter

import "context"

// Extractor converts raw document bytes into markdown text. Implementations
// are probed once at startup and arranged as an ordered fallback chain.
type Extractor interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Accepts reports whether this backend can handle the sniffed MIME type.
	Accepts(mime string) bool
	// Extract converts the bytes. A returned error makes the caller try the
	// next fallback-capable backend before giving up.
	Extract(ctx context.Context, data []byte, mime string) (string, error)
}

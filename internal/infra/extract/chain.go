package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
	"github.com/jmobrien1/mdraft/internal/infra/metrics"
)

var _ adapter.Extractor = (*Chain)(nil)

// Chain arranges extraction backends in fixed order, built once at startup.
// For a given MIME type the first accepting backend is primary; when it
// fails, later accepting backends are tried before giving up.
type Chain struct {
	backends []adapter.Extractor
	log      *zerolog.Logger
}

// NewChain builds the default backend order: text, html, then the raw
// salvage fallback.
func NewChain(logger *zerolog.Logger) *Chain {
	chainLog := logger.With().Str("component", "ExtractorChain").Logger()
	return &Chain{
		backends: []adapter.Extractor{
			NewHTMLExtractor(),
			NewTextExtractor(),
			NewRawExtractor(),
		},
		log: &chainLog,
	}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Accepts(mime string) bool {
	for _, b := range c.backends {
		if b.Accepts(mime) {
			return true
		}
	}
	return false
}

func (c *Chain) Extract(ctx context.Context, data []byte, mime string) (string, error) {
	var lastErr error
	tried := 0
	for _, b := range c.backends {
		if !b.Accepts(mime) {
			continue
		}
		if tried > 0 {
			metrics.IncExtractorFallback(b.Name())
		}
		tried++
		text, err := b.Extract(ctx, data, mime)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Str("backend", b.Name()).Str("mime", mime).Msg("extractor backend failed")
	}
	if lastErr == nil {
		return "", fmt.Errorf("%w: no backend accepts %s", domain.ErrExtractFailed, mime)
	}
	return "", fmt.Errorf("%w: %v", domain.ErrExtractFailed, lastErr)
}

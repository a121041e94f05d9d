// Package extract holds the markdown extraction backends and the ordered
// fallback chain that selects between them.
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
)

var _ adapter.Extractor = (*TextExtractor)(nil)

// TextExtractor handles any text/* payload: it validates the encoding and
// passes the content through. Markdown input is already markdown.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Name() string { return "text" }

func (e *TextExtractor) Accepts(mime string) bool {
	return strings.HasPrefix(mime, "text/")
}

func (e *TextExtractor) Extract(ctx context.Context, data []byte, mime string) (string, error) {
	if !utf8.Valid(data) {
		return "", domain.ErrExtractFailed
	}
	return string(data), nil
}

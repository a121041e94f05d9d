package extract

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
)

var _ adapter.Extractor = (*RawExtractor)(nil)

// RawExtractor is the last-resort backend: it salvages printable UTF-8 runs
// from arbitrary bytes. It accepts everything, which is what makes it the
// terminal fallback of the chain.
type RawExtractor struct {
	// MinRun is the shortest printable run worth keeping; shorter runs are
	// treated as binary noise.
	MinRun int
}

func NewRawExtractor() *RawExtractor { return &RawExtractor{MinRun: 4} }

func (e *RawExtractor) Name() string { return "raw" }

func (e *RawExtractor) Accepts(string) bool { return true }

func (e *RawExtractor) Extract(ctx context.Context, data []byte, mime string) (string, error) {
	minRun := e.MinRun
	if minRun <= 0 {
		minRun = 4
	}
	var out strings.Builder
	var run strings.Builder

	flush := func() {
		if run.Len() >= minRun {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(run.String())
		}
		run.Reset()
	}

	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			flush()
			continue
		}
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			run.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", domain.ErrExtractFailed
	}
	return text, nil
}

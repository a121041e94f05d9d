package extract

import (
	"context"
	"html"
	"strings"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
)

var _ adapter.Extractor = (*HTMLExtractor)(nil)

// HTMLExtractor converts HTML documents to markdown. It is a structural
// converter, not a renderer: headings, paragraphs, list items and line
// breaks survive, everything else is flattened to text.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

func (e *HTMLExtractor) Name() string { return "html" }

func (e *HTMLExtractor) Accepts(mime string) bool {
	return mime == "text/html" || mime == "application/xhtml+xml"
}

var blockPrefixes = map[string]string{
	"h1": "# ", "h2": "## ", "h3": "### ",
	"h4": "#### ", "h5": "##### ", "h6": "###### ",
	"li": "- ",
}

var skippedTags = map[string]bool{"script": true, "style": true, "head": true}

func (e *HTMLExtractor) Extract(ctx context.Context, data []byte, mime string) (string, error) {
	src := string(data)
	var out strings.Builder
	var text strings.Builder
	skipDepth := 0

	flush := func() {
		if s := strings.TrimSpace(text.String()); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		text.Reset()
	}

	for i := 0; i < len(src); {
		if src[i] != '<' {
			j := strings.IndexByte(src[i:], '<')
			if j < 0 {
				j = len(src) - i
			}
			if skipDepth == 0 {
				text.WriteString(collapseSpace(html.UnescapeString(src[i : i+j])))
			}
			i += j
			continue
		}
		end := strings.IndexByte(src[i:], '>')
		if end < 0 {
			break // truncated tag, drop the rest
		}
		tag := src[i+1 : i+end]
		i += end + 1

		name, closing := tagName(tag)
		if name == "" {
			continue
		}
		if skippedTags[name] {
			if closing {
				if skipDepth > 0 {
					skipDepth--
				}
			} else if !strings.HasSuffix(tag, "/") {
				skipDepth++
			}
			continue
		}
		if skipDepth > 0 {
			continue
		}
		switch {
		case name == "br":
			text.WriteByte('\n')
		case closing && isBlock(name):
			flush()
			out.WriteByte('\n')
		case !closing && isBlock(name):
			flush()
			if prefix, ok := blockPrefixes[name]; ok {
				text.WriteString(prefix)
			}
		}
	}
	flush()

	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", domain.ErrExtractFailed
	}
	return result, nil
}

func tagName(tag string) (name string, closing bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" || tag[0] == '!' || tag[0] == '?' {
		return "", false
	}
	if tag[0] == '/' {
		closing = true
		tag = tag[1:]
	}
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '/' {
			tag = tag[:i]
			break
		}
	}
	return strings.ToLower(tag), closing
}

func isBlock(name string) bool {
	if _, ok := blockPrefixes[name]; ok {
		return true
	}
	switch name {
	case "p", "div", "section", "article", "ul", "ol", "table", "tr", "blockquote", "pre":
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

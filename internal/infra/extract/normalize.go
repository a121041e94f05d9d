package extract

import "strings"

// Normalize cleans extracted markdown: CRLF to LF, trailing space stripped,
// runs of blank lines collapsed to one, exactly one trailing newline.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

// linesPerPage is a rough heuristic; the estimate is informational
// only, nothing depends on it.
const linesPerPage = 50

// EstimatePages guesses a page count for extracted text.
func EstimatePages(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return (lines + linesPerPage - 1) / linesPerPage
}

// Package media classifies uploaded bytes by sniffing file magic and
// enforces per-category size ceilings before anything is persisted.
package media

import (
	"bytes"
	"net/http"
	"strings"
	"unicode/utf8"
)

type Category string

const (
	CategoryText     Category = "text"
	CategoryDocument Category = "document"
	CategoryBinary   Category = "binary"
)

// SniffLen is how many leading bytes Classify needs to see.
const SniffLen = 512

var magicDocs = []struct {
	prefix []byte
	mime   string
}{
	{[]byte("%PDF-"), "application/pdf"},
	{[]byte("{\\rtf"), "application/rtf"},
	// OOXML containers (docx/xlsx/pptx) and ODF are zip archives; the
	// declared MIME disambiguates, the magic proves the container.
	{[]byte("PK\x03\x04"), "application/zip"},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "application/msword"},
}

var zipDocMimes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text": true,
}

// Classify sniffs the leading bytes of an upload and returns the detected
// MIME type and its size category. The caller-declared MIME is only trusted
// to disambiguate zip-based office containers, never to override the magic.
// ok is false when the content is not a convertible type.
func Classify(head []byte, declaredMime string) (mime string, cat Category, ok bool) {
	if len(head) == 0 {
		return "", "", false
	}
	for _, m := range magicDocs {
		if bytes.HasPrefix(head, m.prefix) {
			mime = m.mime
			if mime == "application/zip" {
				if d := normalizeMime(declaredMime); zipDocMimes[d] {
					mime = d
				}
			}
			return mime, CategoryDocument, true
		}
	}

	sniffed := normalizeMime(http.DetectContentType(head))
	switch {
	case strings.HasPrefix(sniffed, "text/"):
		return textMime(head, declaredMime, sniffed), CategoryText, true
	case sniffed == "application/octet-stream" && utf8.Valid(head):
		// DetectContentType gives up on e.g. markdown with leading symbols;
		// valid UTF-8 is still convertible text.
		return textMime(head, declaredMime, "text/plain"), CategoryText, true
	}
	return sniffed, CategoryBinary, false
}

// textMime keeps a more specific declared text subtype (markdown, html, csv)
// when the sniffed content agrees it is text.
func textMime(head []byte, declared, sniffed string) string {
	d := normalizeMime(declared)
	if strings.HasPrefix(d, "text/") && d != "text/plain" {
		return d
	}
	return sniffed
}

func normalizeMime(m string) string {
	m = strings.TrimSpace(strings.ToLower(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

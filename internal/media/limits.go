package media

// SizeLimits is the category→max-bytes configuration table. Zero values fall
// back to the defaults below.
type SizeLimits struct {
	TextMaxBytes     int64 `yaml:"text_max_bytes"`
	DocumentMaxBytes int64 `yaml:"document_max_bytes"`
	BinaryMaxBytes   int64 `yaml:"binary_max_bytes"`
}

const (
	defaultTextMax     = 5 << 20  // 5 MiB
	defaultDocumentMax = 50 << 20 // 50 MiB
	defaultBinaryMax   = 1 << 20  // 1 MiB
)

func (l SizeLimits) Normalize() SizeLimits {
	if l.TextMaxBytes <= 0 {
		l.TextMaxBytes = defaultTextMax
	}
	if l.DocumentMaxBytes <= 0 {
		l.DocumentMaxBytes = defaultDocumentMax
	}
	if l.BinaryMaxBytes <= 0 {
		l.BinaryMaxBytes = defaultBinaryMax
	}
	return l
}

// SizeOK enforces the ceiling for a sniffed category. Checked after
// classification and before any persistence.
func (l SizeLimits) SizeOK(size int64, cat Category) bool {
	l = l.Normalize()
	switch cat {
	case CategoryText:
		return size <= l.TextMaxBytes
	case CategoryDocument:
		return size <= l.DocumentMaxBytes
	default:
		return size <= l.BinaryMaxBytes
	}
}

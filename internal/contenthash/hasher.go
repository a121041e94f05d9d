// Package contenthash computes the content fingerprint used as the
// deduplication key for uploaded documents.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

const chunkSize = 64 * 1024

// Sum streams r through SHA-256 in fixed-size chunks and returns the hex
// digest. Arbitrarily large inputs never need to fit in memory.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash source: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumBytes fingerprints an in-memory payload.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

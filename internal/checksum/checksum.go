// Package checksum fingerprints account data. The digest is used as the
// HTTP ETag of an account and recorded in the journal after each write.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns Sum(data) quoted as an HTTP entity tag.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentKey returns a deterministic key for a file path and its content.
// Two reads of the same path with different content get different keys.
func ContentKey(path string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

package common

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID generates a 128-bit random opaque identifier (spec.md §3).
func NewID() string {
	return uuid.New().String()
}

// ContentHashPrefix returns a stable 12-hex-char prefix of the content
// address of s, used to build capture output directory names
// (output_root/host/<timestamp>_<12hex>, spec.md §4.2).
func ContentHashPrefix(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

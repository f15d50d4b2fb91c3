package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashKey returns a filesystem-safe hex digest of the parts joined by "|".
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Package fileid derives stable product IDs from catalog image paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "prod_"

// idBytes is the number of hash bytes kept in an ID.
const idBytes = 8

// ProductID returns a stable product ID for a catalog image path.
// Paths that clean to the same value yield the same ID across builds.
func ProductID(path string) string {
	if path == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:idBytes])
}

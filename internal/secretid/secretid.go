// Package secretid derives the plugin-facing identifier for a secret
// from its bookkeeping-facing name, so plaintext secret names never
// reach the bookkeeping database or a storage plugin's key space.
package secretid

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the deterministic, collision-resistant identifier a
// secret is stored under by its plugin: hex(sha256(collection + 0x00 +
// name)). It never appears in reverse — the bookkeeping row holds only
// this digest, never the plaintext secret name.
func Hash(collectionName, secretName string) string {
	h := sha256.New()
	h.Write([]byte(collectionName))
	h.Write([]byte{0})
	h.Write([]byte(secretName))
	return hex.EncodeToString(h.Sum(nil))
}

// Package sha256 computes content digests for HTTP entity tags and keyed
// digests for the cookies and preview links the public site hands out.
package sha256

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hasher hashes byte slices with SHA-256, or HMAC-SHA-256 when keyed.
type Hasher struct {
	key []byte
}

// New returns an unkeyed hasher.
func New() *Hasher {
	return &Hasher{}
}

// NewKeyed returns a hasher whose Hash output depends on key. An empty key
// behaves like New.
func NewKeyed(key []byte) *Hasher {
	if len(key) == 0 {
		return New()
	}
	return &Hasher{key: append([]byte(nil), key...)}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	if h.key == nil {
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// ETag returns a strong entity tag for body. It never uses the key, so tags
// survive a key change.
func (h *Hasher) ETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// Equal compares two digests in constant time.
func (h *Hasher) Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

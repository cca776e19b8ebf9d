package hasher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher computes keyed digests for refresh-token plaintexts. The pepper
// never leaves the server; Verify compares in constant time.
type Hasher struct {
	pepper []byte
}

func New(pepper string) *Hasher {
	return &Hasher{pepper: []byte(pepper)}
}

// Hash returns the hex HMAC-SHA256 digest of plaintext under the pepper.
func (h *Hasher) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest for plaintext and compares it to digest.
func (h *Hasher) Verify(plaintext, digest string) bool {
	want, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(plaintext))
	return hmac.Equal(mac.Sum(nil), want)
}

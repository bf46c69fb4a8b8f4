package authcore

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/carebridge/authcore/internal/opaque"
)

const digestSize = sha256.Size

// secretHasher computes the peppered HMAC-SHA256 digest of an opaque token
// secret. The pepper is server-wide key material loaded once at startup;
// it never varies per record.
type secretHasher struct {
	pepper []byte
}

func newSecretHasher(pepper []byte) secretHasher {
	return secretHasher{pepper: pepper}
}

func (h secretHasher) sum(secret opaque.Secret) [digestSize]byte {
	var out [digestSize]byte
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write(secret[:])
	copy(out[:], mac.Sum(nil))
	return out
}

// digestEqual compares a stored digest against a freshly computed one in
// constant time. The stored value is normalized to exactly digestSize bytes
// first: a corrupted length substitutes a zero buffer, which can never
// equal a real HMAC output. The computed side is always digestSize by
// construction.
func digestEqual(stored []byte, computed [digestSize]byte) bool {
	var normalized [digestSize]byte
	if len(stored) == digestSize {
		copy(normalized[:], stored)
	}
	return subtle.ConstantTimeCompare(normalized[:], computed[:]) == 1
}

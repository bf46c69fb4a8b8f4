// Package opaque implements the two-part opaque token wire format:
// base64url(16-byte lookup id) + "." + base64url(32-byte secret), unpadded.
// The lookup id is public and used for retrieval; the secret half is proven
// server-side against a peppered digest and never stored.
package opaque

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

const (
	// LookupIDSize is the raw lookup id length in bytes.
	LookupIDSize = 16
	// SecretSize is the raw secret length in bytes.
	SecretSize = 32
)

// ErrMalformed reports a token string that does not decode. Parse returns
// it for every malformed shape; it never panics on hostile input.
var ErrMalformed = errors.New("opaque token malformed")

// LookupID is the public half of a token.
type LookupID [LookupIDSize]byte

// Secret is the private half of a token.
type Secret [SecretSize]byte

// String renders the lookup id in its wire form.
func (id LookupID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseLookupID decodes a wire-form lookup id.
func ParseLookupID(raw string) (LookupID, error) {
	var id LookupID
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(decoded) != LookupIDSize {
		return id, ErrMalformed
	}
	copy(id[:], decoded)
	return id, nil
}

// Generate draws a fresh lookup id and secret from crypto/rand.
func Generate() (LookupID, Secret, error) {
	var id LookupID
	var secret Secret
	if _, err := rand.Read(id[:]); err != nil {
		return id, secret, err
	}
	if _, err := rand.Read(secret[:]); err != nil {
		return id, secret, err
	}
	return id, secret, nil
}

// Encode renders the distributable token string.
func Encode(id LookupID, secret Secret) string {
	return id.String() + "." + base64.RawURLEncoding.EncodeToString(secret[:])
}

// Parse splits a presented token on the first "." and decodes both halves.
// Padding characters are tolerated on the secret half. Any malformed input
// yields ErrMalformed so callers can distinguish "malformed" from "valid
// but wrong".
func Parse(raw string) (string, Secret, error) {
	var secret Secret

	idPart, secretPart, found := strings.Cut(raw, ".")
	if !found || idPart == "" || secretPart == "" {
		return "", secret, ErrMalformed
	}

	id, err := ParseLookupID(idPart)
	if err != nil {
		return "", secret, ErrMalformed
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(secretPart, "="))
	if err != nil || len(decoded) != SecretSize {
		return "", secret, ErrMalformed
	}
	copy(secret[:], decoded)

	return id.String(), secret, nil
}

package authcore

import "errors"

var (
	// ErrTokenMalformed reports an opaque token string that does not decode
	// into a lookup id and secret.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenNotFound reports that no row exists for the presented lookup id.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenAlreadyUsed reports a replayed single-use token.
	ErrTokenAlreadyUsed = errors.New("token already used")
	// ErrTokenExpired reports a token presented after its expiry instant.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSecretMismatch reports a correct lookup id with a wrong secret.
	ErrTokenSecretMismatch = errors.New("token secret mismatch")
	// ErrUnauthorized reports a missing or unverifiable bearer credential,
	// or reuse of a rotated/revoked refresh token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden reports an inactive account or link, or insufficient scope.
	ErrForbidden = errors.New("forbidden")
	// ErrConfigInvalid is fatal at construction: missing or undersized pepper
	// or signing key, bad TTLs. It is never returned at request time.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrEngineNotReady reports use of an Engine missing a dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps infrastructure failures from the token store.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrDirectoryUnavailable wraps infrastructure failures from the Directory.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
)

// Package authcore implements the authentication core of the CareBridge
// platform: opaque single-use and rotating bearer tokens, peppered HMAC
// secret digests with constant-time verification, and role/grant based
// scope resolution.
//
// The package is storage-backed (Redis) and side-effect free outside its
// own token rows: accounts and credential links are read through the
// Directory interface and never mutated. All expected authentication and
// authorization outcomes are reported as sentinel errors (ErrTokenExpired,
// ErrUnauthorized, ...); only infrastructure failures are wrapped into
// ErrStoreUnavailable.
package authcore

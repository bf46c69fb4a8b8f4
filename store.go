package authcore

import (
	"context"
	"time"
)

// TokenStore is the persistence abstraction for opaque token rows. FindOne
// is read-only and repeatable; ConsumeOnce, MarkRotated, and MarkRevoked
// are single-row compare-and-swap operations: when concurrent callers race
// on the same lookup id, exactly one wins and the rest observe
// ErrTokenAlreadyUsed.
//
// Implementations return the package sentinel errors (ErrTokenNotFound,
// ErrTokenAlreadyUsed) for expected outcomes and wrap infrastructure
// failures in ErrStoreUnavailable.
type TokenStore interface {
	// Save durably persists a new row. ttl bounds the row's physical
	// lifetime; logical expiry is the row's own ExpiresAt.
	Save(ctx context.Context, record *TokenRecord, ttl time.Duration) error

	// FindOne fetches a row by (type, lookupID) without mutating it.
	FindOne(ctx context.Context, typ TokenType, lookupID string) (*TokenRecord, error)

	// ConsumeOnce sets UsedAt = now only if UsedAt is currently unset, in a
	// single atomic step. The returned record reflects the update.
	ConsumeOnce(ctx context.Context, typ TokenType, lookupID string, now time.Time) (*TokenRecord, error)

	// MarkRotated sets RotatedAt = now and ReplacedByID together, only if
	// the row has no terminal marker yet.
	MarkRotated(ctx context.Context, typ TokenType, lookupID, replacedByID string, now time.Time) (*TokenRecord, error)

	// MarkRevoked sets RevokedAt = now if unset. Revoking an already
	// revoked row is a no-op, not an error.
	MarkRevoked(ctx context.Context, typ TokenType, lookupID string, now time.Time) (*TokenRecord, error)
}

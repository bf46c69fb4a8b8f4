package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const storeMaxCASRetries = 4

// RedisTokenStore implements TokenStore on a single Redis keyspace. Every
// conditional update runs inside an optimistic WATCH transaction, so the
// single-winner guarantee holds across processes. Rows carry a Redis TTL
// matching their logical lifetime; terminal rows are kept for their
// remaining TTL so replays surface as ErrTokenAlreadyUsed instead of
// ErrTokenNotFound.
type RedisTokenStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisTokenStore creates a store namespaced under prefix.
func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "aot"
	}
	return &RedisTokenStore{redis: client, prefix: prefix}
}

func (s *RedisTokenStore) key(typ TokenType, lookupID string) string {
	return s.prefix + ":" + typ.storeKey() + ":" + lookupID
}

// Save persists a new row under its (type, lookupID) key.
func (s *RedisTokenStore) Save(ctx context.Context, record *TokenRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: non-positive ttl", ErrStoreUnavailable)
	}
	encoded, err := encodeTokenRecord(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.redis.Set(ctx, s.key(record.Type, record.LookupID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FindOne fetches and decodes a row. It never mutates the row.
func (s *RedisTokenStore) FindOne(ctx context.Context, typ TokenType, lookupID string) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(typ, lookupID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	record, err := decodeTokenRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record, nil
}

// ConsumeOnce sets UsedAt only if it is currently unset. Exactly one of N
// concurrent callers wins; the rest get ErrTokenAlreadyUsed.
func (s *RedisTokenStore) ConsumeOnce(ctx context.Context, typ TokenType, lookupID string, now time.Time) (*TokenRecord, error) {
	return s.update(ctx, typ, lookupID, now, func(record *TokenRecord) (bool, error) {
		if record.UsedAt != 0 {
			return false, ErrTokenAlreadyUsed
		}
		record.UsedAt = now.Unix()
		return true, nil
	})
}

// MarkRotated sets RotatedAt and ReplacedByID together, only on a row with
// no terminal marker.
func (s *RedisTokenStore) MarkRotated(ctx context.Context, typ TokenType, lookupID, replacedByID string, now time.Time) (*TokenRecord, error) {
	return s.update(ctx, typ, lookupID, now, func(record *TokenRecord) (bool, error) {
		if record.terminal() {
			return false, ErrTokenAlreadyUsed
		}
		record.RotatedAt = now.Unix()
		record.ReplacedByID = replacedByID
		return true, nil
	})
}

// MarkRevoked sets RevokedAt if unset; revoking twice is a no-op.
func (s *RedisTokenStore) MarkRevoked(ctx context.Context, typ TokenType, lookupID string, now time.Time) (*TokenRecord, error) {
	return s.update(ctx, typ, lookupID, now, func(record *TokenRecord) (bool, error) {
		if record.RevokedAt != 0 {
			return false, nil
		}
		record.RevokedAt = now.Unix()
		return true, nil
	})
}

// update runs one conditional row mutation inside a WATCH transaction.
// apply inspects the decoded row and either aborts with a sentinel error,
// declines to write (false, nil), or mutates the row for re-encoding. The
// row keeps its remaining physical TTL, measured against the caller's
// clock; a row past its logical expiry is deleted and reported as
// ErrTokenNotFound.
func (s *RedisTokenStore) update(
	ctx context.Context,
	typ TokenType,
	lookupID string,
	now time.Time,
	apply func(*TokenRecord) (bool, error),
) (*TokenRecord, error) {
	key := s.key(typ, lookupID)

	for i := 0; i < storeMaxCASRetries; i++ {
		var updated *TokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}

			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrTokenNotFound
			}

			write, err := apply(record)
			if err != nil {
				return err
			}
			if !write {
				updated = record
				return nil
			}

			encoded, err := encodeTokenRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			updated = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrTokenNotFound
			case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenAlreadyUsed):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return updated, nil
	}

	return nil, fmt.Errorf("%w: conditional update contention", ErrStoreUnavailable)
}

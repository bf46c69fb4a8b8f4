package authcore

import (
	"fmt"
	"time"
)

const (
	minPepperSize     = 32
	minSigningKeySize = 32
)

// Config carries all process-lifetime settings for the engine. It is read
// once at construction and treated as immutable afterwards; secrets (pepper,
// signing key) are raw key material, not passphrases.
type Config struct {
	// Pepper keys the HMAC-SHA256 digest of every opaque token secret.
	// At least 32 bytes. Distinct from any per-record salt.
	Pepper []byte

	Bearer  BearerConfig
	TTL     TTLConfig
	Audit   AuditConfig
	Metrics MetricsConfig

	// RedisPrefix namespaces token rows. Defaults to "aot".
	RedisPrefix string
}

// BearerConfig configures the signed bearer credential (HS256).
type BearerConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration // default 7 days
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// TTLConfig holds per-token-type lifetimes. Zero values take the platform
// defaults below; TTLs should be generous enough to absorb small clock skew
// between deployment nodes.
type TTLConfig struct {
	EmailVerify   time.Duration // default 30 minutes
	OAuthCode     time.Duration // default 5 minutes
	PasswordReset time.Duration // default 30 minutes
	Refresh       time.Duration // default 30 days
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	DropIfFull bool
}

// MetricsConfig configures in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func (c *Config) normalize() {
	if c.RedisPrefix == "" {
		c.RedisPrefix = "aot"
	}
	if c.Bearer.AccessTTL == 0 {
		c.Bearer.AccessTTL = 7 * 24 * time.Hour
	}
	if c.TTL.EmailVerify == 0 {
		c.TTL.EmailVerify = 30 * time.Minute
	}
	if c.TTL.OAuthCode == 0 {
		c.TTL.OAuthCode = 5 * time.Minute
	}
	if c.TTL.PasswordReset == 0 {
		c.TTL.PasswordReset = 30 * time.Minute
	}
	if c.TTL.Refresh == 0 {
		c.TTL.Refresh = 30 * 24 * time.Hour
	}
}

// validate runs after normalize. Violations are fatal: the process must
// refuse to start rather than serve requests with weak key material.
func (c *Config) validate() error {
	if len(c.Pepper) < minPepperSize {
		return fmt.Errorf("%w: pepper must be at least %d bytes", ErrConfigInvalid, minPepperSize)
	}
	if len(c.Bearer.SigningKey) < minSigningKeySize {
		return fmt.Errorf("%w: bearer signing key must be at least %d bytes", ErrConfigInvalid, minSigningKeySize)
	}
	if c.Bearer.AccessTTL <= 0 {
		return fmt.Errorf("%w: bearer access TTL must be positive", ErrConfigInvalid)
	}
	if c.Bearer.Leeway < 0 || c.Bearer.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: bearer leeway out of range", ErrConfigInvalid)
	}
	for _, ttl := range []time.Duration{
		c.TTL.EmailVerify, c.TTL.OAuthCode, c.TTL.PasswordReset, c.TTL.Refresh,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%w: token TTLs must be positive", ErrConfigInvalid)
		}
	}
	return nil
}

func (c *Config) ttlFor(typ TokenType) time.Duration {
	switch typ {
	case TokenEmailVerify:
		return c.TTL.EmailVerify
	case TokenOAuthCode:
		return c.TTL.OAuthCode
	case TokenPasswordReset:
		return c.TTL.PasswordReset
	case TokenRefresh:
		return c.TTL.Refresh
	default:
		return 0
	}
}

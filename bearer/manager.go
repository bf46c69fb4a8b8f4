// Package bearer signs and verifies the platform's access credential: an
// HMAC-signed JWT carrying the credential subject, principal binding, and
// effective scopes. The blob is opaque to this package's callers beyond
// Create/Parse; no session state is kept for it.
package bearer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified claim set of an access bearer. Subject carries the
// credential id; PrincipalID the resolved account.
type Claims struct {
	PrincipalID string   `json:"principalId"`
	OrgID       string   `json:"orgId,omitempty"`
	PatientID   string   `json:"patientId,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Config configures the Manager. SigningKey is raw HMAC key material.
// Now supplies the time source for both signing and verification; nil
// means time.Now. Create and Parse must share one clock or tokens signed
// through an adjusted clock fail their own expiry check.
type Config struct {
	SigningKey []byte
	AccessTTL  time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	Now        func() time.Time
}

// Manager signs and parses access bearers with a fixed HS256 algorithm.
type Manager struct {
	config Config
}

// NewManager validates the configuration once; failures here are fatal
// startup errors, never request-time errors.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("bearer: signing key required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("bearer: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("bearer: invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// Create signs a bearer for the given credential and principal binding.
func (m *Manager) Create(credentialID, principalID, orgID, patientID string, scopes []string, now time.Time) (string, error) {
	claims := Claims{
		PrincipalID: principalID,
		OrgID:       orgID,
		PatientID:   patientID,
		Scopes:      scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   credentialID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.SigningKey)
}

// Parse verifies signature, algorithm, expiry, and issuer/audience when
// configured, and returns the claim set.
func (m *Manager) Parse(raw string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.SigningKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

package authcore

import (
	"context"

	"github.com/carebridge/authcore/scope"
)

// TokenType discriminates the opaque token families. Lookup ids are unique
// within a type, not globally.
type TokenType uint8

const (
	// TokenEmailVerify is a single-use email verification token (30m default TTL).
	TokenEmailVerify TokenType = iota
	// TokenOAuthCode is a single-use exchange code (5m default TTL).
	TokenOAuthCode
	// TokenPasswordReset is a single-use password reset token (30m default TTL).
	TokenPasswordReset
	// TokenRefresh is a long-lived rotating refresh token (30d default TTL).
	TokenRefresh
)

func (t TokenType) valid() bool {
	return t <= TokenRefresh
}

// storeKey is the per-type key segment used by the Redis store.
func (t TokenType) storeKey() string {
	switch t {
	case TokenEmailVerify:
		return "ev"
	case TokenOAuthCode:
		return "oc"
	case TokenPasswordReset:
		return "pr"
	case TokenRefresh:
		return "rt"
	default:
		return "xx"
	}
}

// TokenRecord is one persisted opaque token row. The raw secret never
// appears here; only its peppered digest is stored. Timestamps are Unix
// seconds; zero means unset. A record with UsedAt, RevokedAt, or RotatedAt
// set is terminal and never validates again.
type TokenRecord struct {
	Type         TokenType
	LookupID     string
	SecretDigest [32]byte

	PrincipalID  string
	PatientID    string
	OrgID        string
	CredentialID string
	SessionID    string

	// Role and Scopes are an issuance-time snapshot kept for audit.
	// Rotation re-derives scopes from the live account instead.
	Role   scope.Role
	Scopes []scope.Scope

	RedirectURI string

	CreatedAt    int64
	ExpiresAt    int64
	UsedAt       int64
	RevokedAt    int64
	RotatedAt    int64
	ReplacedByID string
}

func (r *TokenRecord) terminal() bool {
	return r.UsedAt != 0 || r.RevokedAt != 0 || r.RotatedAt != 0
}

// Subject binds a token to its principal at issuance.
type Subject struct {
	PrincipalID  string
	PatientID    string
	OrgID        string
	CredentialID string
	SessionID    string
	Role         scope.Role
}

// IssuedToken is returned from issuance. Token is the only copy of the raw
// secret; hand it to the caller (email link, redirect parameter) and drop it.
type IssuedToken struct {
	LookupID string
	Token    string
	Record   *TokenRecord
}

// Account is the read-only directory view of a principal. Accounts are
// created and mutated by onboarding flows outside this package.
type Account struct {
	PrincipalID       string
	Role              scope.Role
	Active            bool
	OrgID             string
	Scopes            []scope.Scope
	Grants            []scope.Scope
	FacilityIDs       []string
	CareTeamIDs       []string
	PatientID         string
	AllowedPatientIDs []string
}

// AuthLink maps a bearer credential subject to a principal. Many links may
// point at one principal; at most one active link exists per credential.
type AuthLink struct {
	CredentialID string
	PrincipalID  string
	Provider     string
	Active       bool
}

// Directory is the narrow read-only interface onto the platform's account
// store. Implementations return (zero, nil) when the entity does not exist;
// errors are reserved for infrastructure failures.
type Directory interface {
	ActiveLinkByCredential(ctx context.Context, credentialID string) (AuthLink, error)
	AccountByPrincipal(ctx context.Context, principalID string) (Account, error)
}

// Caller is the assembled authenticated principal handed to API handlers.
type Caller struct {
	PrincipalID       string
	CredentialID      string
	Role              scope.Role
	OrgID             string
	PatientID         string
	FacilityIDs       []string
	CareTeamIDs       []string
	AllowedPatientIDs []string
	Scopes            []scope.Scope

	// Provisional marks the pre-authentication bootstrap caller, which holds
	// exactly the signup-initiation scope and nothing else.
	Provisional bool
}

// RotateResult carries the outcome of a successful refresh rotation.
type RotateResult struct {
	AccessToken  string
	RefreshToken string
	Caller       *Caller
	// Record is the newly issued refresh row.
	Record *TokenRecord
}

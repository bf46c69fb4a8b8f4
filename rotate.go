package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/carebridge/authcore/internal/opaque"
	"github.com/carebridge/authcore/scope"
)

// maxRotationChainWalk bounds the ReplacedByID walk when revoking a chain
// after replay of a rotated token.
const maxRotationChainWalk = 32

// Rotate exchanges a presented refresh token for a successor refresh token
// and a freshly signed bearer. Each presentation triggers exactly one
// rotation; presenting an already-rotated or revoked token fails with
// ErrUnauthorized. When the presented secret is correct, replay of a
// rotated token additionally revokes the live head of the rotation chain,
// since proven replay indicates theft. A wrong secret never touches the
// chain.
//
// Scopes are re-resolved from the live account, not the token's issuance
// snapshot, so role or grant changes take effect at the next rotation.
//
// The successor row is durably created before the presented row is marked
// rotated: a crash in between leaves both briefly valid (self-heals on the
// next rotation) but never leaves the caller without any valid token.
func (e *Engine) Rotate(ctx context.Context, rawRefresh string) (*RotateResult, error) {
	if e == nil || e.store == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	lookupID, secret, err := opaque.Parse(rawRefresh)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRefreshRotate, false, "", "", ErrTokenMalformed, nil)
		return nil, ErrTokenMalformed
	}

	record, err := e.store.FindOne(ctx, TokenRefresh, lookupID)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRefreshRotate, false, "", lookupID, err, nil)
		return nil, err
	}

	secretOK := digestEqual(record.SecretDigest[:], e.hasher.sum(secret))

	if record.RevokedAt != 0 || record.RotatedAt != 0 {
		// Retired rows answer ErrUnauthorized whether or not the secret
		// matched, so the response is not a secret oracle. The theft
		// signal fires only on a proven replay: lookup ids appear in
		// audit logs, and an unauthenticated guess must not be able to
		// revoke the live chain head.
		if secretOK && record.RotatedAt != 0 {
			e.revokeChainHead(ctx, record)
			e.metricInc(MetricRotateReuseDetected)
			e.emitAudit(ctx, auditEventRefreshRotate, false, record.PrincipalID, lookupID, ErrUnauthorized, func() map[string]string {
				return map[string]string{"reason": "retired_token_replay"}
			})
		} else {
			e.metricInc(MetricRotateFailure)
			e.emitAudit(ctx, auditEventRefreshRotate, false, record.PrincipalID, lookupID, ErrUnauthorized, func() map[string]string {
				return map[string]string{"reason": "retired_token_presented"}
			})
		}
		return nil, ErrUnauthorized
	}

	if e.now().Unix() > record.ExpiresAt {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRefreshRotate, false, record.PrincipalID, lookupID, ErrTokenExpired, nil)
		return nil, ErrTokenExpired
	}

	if !secretOK {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRefreshRotate, false, record.PrincipalID, lookupID, ErrTokenSecretMismatch, nil)
		return nil, ErrTokenSecretMismatch
	}

	account, err := e.directory.AccountByPrincipal(ctx, record.PrincipalID)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if account.PrincipalID == "" || !account.Active {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRefreshRotate, false, record.PrincipalID, lookupID, ErrForbidden, func() map[string]string {
			return map[string]string{"reason": "account_inactive"}
		})
		return nil, ErrForbidden
	}

	effective := scope.Effective(account.Role, account.Scopes, account.Grants)

	successor, err := e.IssueRefresh(ctx, Subject{
		PrincipalID:  record.PrincipalID,
		PatientID:    account.PatientID,
		OrgID:        account.OrgID,
		CredentialID: record.CredentialID,
		SessionID:    record.SessionID,
		Role:         account.Role,
	}, effective)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		return nil, err
	}

	if _, err := e.store.MarkRotated(ctx, TokenRefresh, lookupID, successor.LookupID, e.now()); err != nil {
		// Lost the rotation race (or the row expired underneath us): retire
		// the just-created successor so the loser leaves nothing behind.
		if _, revokeErr := e.store.MarkRevoked(ctx, TokenRefresh, successor.LookupID, e.now()); revokeErr != nil {
			e.emitAudit(ctx, auditEventRefreshRevoke, false, record.PrincipalID, successor.LookupID, revokeErr, nil)
		}
		if errors.Is(err, ErrTokenAlreadyUsed) {
			e.metricInc(MetricRotateReuseDetected)
			e.emitAudit(ctx, auditEventRefreshRotate, false, record.PrincipalID, lookupID, ErrUnauthorized, func() map[string]string {
				return map[string]string{"reason": "concurrent_rotation"}
			})
			return nil, ErrUnauthorized
		}
		e.metricInc(MetricRotateFailure)
		return nil, err
	}

	access, err := e.bearer.Create(
		record.CredentialID,
		record.PrincipalID,
		account.OrgID,
		account.PatientID,
		scope.Strings(effective),
		e.now(),
	)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		return nil, err
	}

	caller := &Caller{
		PrincipalID:       account.PrincipalID,
		CredentialID:      record.CredentialID,
		Role:              account.Role,
		OrgID:             account.OrgID,
		PatientID:         account.PatientID,
		FacilityIDs:       account.FacilityIDs,
		CareTeamIDs:       account.CareTeamIDs,
		AllowedPatientIDs: account.AllowedPatientIDs,
		Scopes:            effective,
	}

	e.metricInc(MetricRotateSuccess)
	e.emitAudit(ctx, auditEventRefreshRotate, true, record.PrincipalID, lookupID, nil, func() map[string]string {
		return map[string]string{"replaced_by": successor.LookupID}
	})

	return &RotateResult{
		AccessToken:  access,
		RefreshToken: successor.Token,
		Caller:       caller,
		Record:       successor.Record,
	}, nil
}

// RevokeRefresh terminally revokes a refresh row by lookup id (logout,
// credential compromise). Revoking twice is a no-op.
func (e *Engine) RevokeRefresh(ctx context.Context, lookupID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	record, err := e.store.MarkRevoked(ctx, TokenRefresh, lookupID, e.now())
	if err != nil {
		e.emitAudit(ctx, auditEventRefreshRevoke, false, "", lookupID, err, nil)
		return err
	}
	e.metricInc(MetricRefreshRevoked)
	e.emitAudit(ctx, auditEventRefreshRevoke, true, record.PrincipalID, lookupID, nil, nil)
	return nil
}

// revokeChainHead follows ReplacedByID links from a replayed rotated token
// to the live head of its rotation chain and revokes it. Best effort: a
// broken link or store failure stops the walk.
func (e *Engine) revokeChainHead(ctx context.Context, record *TokenRecord) {
	current := record
	for hops := 0; hops < maxRotationChainWalk; hops++ {
		if current.RotatedAt == 0 || current.ReplacedByID == "" {
			break
		}
		next, err := e.store.FindOne(ctx, TokenRefresh, current.ReplacedByID)
		if err != nil {
			return
		}
		current = next
	}

	if current.LookupID == record.LookupID || current.RevokedAt != 0 {
		return
	}
	if _, err := e.store.MarkRevoked(ctx, TokenRefresh, current.LookupID, e.now()); err != nil {
		return
	}
	e.metricInc(MetricRefreshRevoked)
	e.emitAudit(ctx, auditEventRefreshRevoke, true, current.PrincipalID, current.LookupID, nil, func() map[string]string {
		return map[string]string{"reason": "rotation_chain_replay"}
	})
}

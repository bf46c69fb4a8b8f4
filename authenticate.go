package authcore

import (
	"context"
	"fmt"

	"github.com/carebridge/authcore/scope"
)

// AuthenticateBearer verifies a signed bearer credential and enforces a
// required-scope precondition. Failures split into two kinds: an absent or
// unverifiable bearer is ErrUnauthorized; a verified bearer whose link or
// account is inactive, or whose effective scopes are insufficient, is
// ErrForbidden.
//
// Bootstrap: when no bearer is presented and the caller requires exactly
// the signup-initiation scope, a minimal provisional caller is returned
// instead of failing. That path grants signup:initiate and nothing else.
func (e *Engine) AuthenticateBearer(ctx context.Context, rawBearer string, required []scope.Scope) (*Caller, error) {
	if e == nil || e.directory == nil || e.bearer == nil {
		return nil, ErrEngineNotReady
	}

	if rawBearer == "" {
		if len(required) == 1 && required[0] == scope.SignupInitiate {
			e.metricInc(MetricAuthSuccess)
			e.emitAudit(ctx, auditEventAuthenticate, true, "", "", nil, func() map[string]string {
				return map[string]string{"bootstrap": "signup_initiate"}
			})
			return &Caller{
				Scopes:      []scope.Scope{scope.SignupInitiate},
				Provisional: true,
			}, nil
		}
		e.metricInc(MetricAuthUnauthorized)
		e.emitAudit(ctx, auditEventAuthenticate, false, "", "", ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": "missing_bearer"}
		})
		return nil, ErrUnauthorized
	}

	claims, err := e.bearer.Parse(rawBearer)
	if err != nil {
		e.metricInc(MetricAuthUnauthorized)
		e.emitAudit(ctx, auditEventAuthenticate, false, "", "", ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": "bearer_verify_failed"}
		})
		return nil, ErrUnauthorized
	}

	credentialID := claims.Subject
	if credentialID == "" {
		e.metricInc(MetricAuthUnauthorized)
		e.emitAudit(ctx, auditEventAuthenticate, false, "", "", ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": "missing_subject_claim"}
		})
		return nil, ErrUnauthorized
	}

	link, err := e.directory.ActiveLinkByCredential(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if link.PrincipalID == "" || !link.Active {
		e.metricInc(MetricAuthForbidden)
		e.emitAudit(ctx, auditEventAuthenticate, false, "", "", ErrForbidden, func() map[string]string {
			return map[string]string{"reason": "link_inactive"}
		})
		return nil, ErrForbidden
	}

	account, err := e.directory.AccountByPrincipal(ctx, link.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if account.PrincipalID == "" || !account.Active {
		e.metricInc(MetricAuthForbidden)
		e.emitAudit(ctx, auditEventAuthenticate, false, link.PrincipalID, "", ErrForbidden, func() map[string]string {
			return map[string]string{"reason": "account_inactive"}
		})
		return nil, ErrForbidden
	}

	effective := scope.Effective(account.Role, account.Scopes, account.Grants)
	if !scope.Has(effective, required...) {
		e.metricInc(MetricAuthForbidden)
		e.emitAudit(ctx, auditEventAuthenticate, false, account.PrincipalID, "", ErrForbidden, func() map[string]string {
			return map[string]string{"reason": "insufficient_scope"}
		})
		return nil, ErrForbidden
	}

	e.metricInc(MetricAuthSuccess)
	e.emitAudit(ctx, auditEventAuthenticate, true, account.PrincipalID, "", nil, nil)

	return &Caller{
		PrincipalID:       account.PrincipalID,
		CredentialID:      credentialID,
		Role:              account.Role,
		OrgID:             account.OrgID,
		PatientID:         account.PatientID,
		FacilityIDs:       account.FacilityIDs,
		CareTeamIDs:       account.CareTeamIDs,
		AllowedPatientIDs: account.AllowedPatientIDs,
		Scopes:            effective,
	}, nil
}

// CreateBearer signs a bearer for an already-resolved account (first login,
// post-exchange issuance). The caller supplies effective scopes.
func (e *Engine) CreateBearer(credentialID string, account Account, scopes []scope.Scope) (string, error) {
	if e == nil || e.bearer == nil {
		return "", ErrEngineNotReady
	}
	return e.bearer.Create(
		credentialID,
		account.PrincipalID,
		account.OrgID,
		account.PatientID,
		scope.Strings(scopes),
		e.now(),
	)
}

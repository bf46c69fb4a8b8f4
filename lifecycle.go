package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/carebridge/authcore/internal/opaque"
	"github.com/carebridge/authcore/scope"
	"github.com/google/uuid"
)

// IssueInput describes one token issuance. TTL zero takes the configured
// default for the type. RedirectURI is meaningful for TokenOAuthCode only.
type IssueInput struct {
	Type        TokenType
	Subject     Subject
	Scopes      []scope.Scope
	TTL         time.Duration
	RedirectURI string
}

// Issue creates one opaque token row and returns the raw token string,
// the only copy of the secret that will ever exist. The stored row holds
// the peppered digest only.
func (e *Engine) Issue(ctx context.Context, input IssueInput) (*IssuedToken, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if !input.Type.valid() {
		e.metricInc(MetricIssueFailure)
		return nil, ErrTokenMalformed
	}

	ttl := input.TTL
	if ttl == 0 {
		ttl = e.config.ttlFor(input.Type)
	}

	id, secret, err := opaque.Generate()
	if err != nil {
		e.metricInc(MetricIssueFailure)
		return nil, err
	}

	subject := input.Subject
	if input.Type == TokenRefresh && subject.SessionID == "" {
		subject.SessionID = uuid.NewString()
	}

	now := e.now()
	record := &TokenRecord{
		Type:         input.Type,
		LookupID:     id.String(),
		SecretDigest: e.hasher.sum(secret),
		PrincipalID:  subject.PrincipalID,
		PatientID:    subject.PatientID,
		OrgID:        subject.OrgID,
		CredentialID: subject.CredentialID,
		SessionID:    subject.SessionID,
		Role:         subject.Role,
		Scopes:       input.Scopes,
		RedirectURI:  input.RedirectURI,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(ttl).Unix(),
	}

	if err := e.store.Save(ctx, record, ttl); err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventTokenIssue, false, subject.PrincipalID, record.LookupID, err, nil)
		return nil, err
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventTokenIssue, true, subject.PrincipalID, record.LookupID, nil, func() map[string]string {
		return map[string]string{"token_type": input.Type.storeKey()}
	})

	return &IssuedToken{
		LookupID: record.LookupID,
		Token:    opaque.Encode(id, secret),
		Record:   record,
	}, nil
}

// IssueEmailVerification issues a single-use email verification token.
func (e *Engine) IssueEmailVerification(ctx context.Context, subject Subject) (*IssuedToken, error) {
	return e.Issue(ctx, IssueInput{Type: TokenEmailVerify, Subject: subject})
}

// IssueOAuthCode issues a single-use exchange code bound to redirectURI.
func (e *Engine) IssueOAuthCode(ctx context.Context, subject Subject, scopes []scope.Scope, redirectURI string) (*IssuedToken, error) {
	return e.Issue(ctx, IssueInput{
		Type:        TokenOAuthCode,
		Subject:     subject,
		Scopes:      scopes,
		RedirectURI: redirectURI,
	})
}

// IssuePasswordReset issues a single-use password reset token.
func (e *Engine) IssuePasswordReset(ctx context.Context, subject Subject) (*IssuedToken, error) {
	return e.Issue(ctx, IssueInput{Type: TokenPasswordReset, Subject: subject})
}

// IssueRefresh issues a rotating refresh token carrying the caller's
// effective scopes as an issuance snapshot.
func (e *Engine) IssueRefresh(ctx context.Context, subject Subject, scopes []scope.Scope) (*IssuedToken, error) {
	return e.Issue(ctx, IssueInput{Type: TokenRefresh, Subject: subject, Scopes: scopes})
}

// Validate checks a presented token string without mutating anything: it
// may be called repeatedly as a precondition check before the caller
// commits to Consume. Failure order: malformed, not found, already used,
// expired, secret mismatch.
func (e *Engine) Validate(ctx context.Context, typ TokenType, raw string) (*TokenRecord, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	started := e.now()

	lookupID, secret, err := opaque.Parse(raw)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		e.emitAudit(ctx, auditEventTokenValidate, false, "", "", ErrTokenMalformed, nil)
		return nil, ErrTokenMalformed
	}

	record, err := e.validateParsed(ctx, typ, lookupID, secret)
	e.metrics.Observe(MetricValidateLatency, e.now().Sub(started))
	if err != nil {
		e.metricInc(MetricValidateFailure)
		e.emitAudit(ctx, auditEventTokenValidate, false, "", lookupID, err, nil)
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	e.emitAudit(ctx, auditEventTokenValidate, true, record.PrincipalID, lookupID, nil, nil)
	return record, nil
}

// validateParsed fetches the row and applies the replay, expiry, and
// constant-time digest checks, in that order. Read-only.
func (e *Engine) validateParsed(ctx context.Context, typ TokenType, lookupID string, secret opaque.Secret) (*TokenRecord, error) {
	record, err := e.store.FindOne(ctx, typ, lookupID)
	if err != nil {
		return nil, err
	}

	if record.terminal() {
		return nil, ErrTokenAlreadyUsed
	}
	if e.now().Unix() > record.ExpiresAt {
		return nil, ErrTokenExpired
	}
	computed := e.hasher.sum(secret)
	if !digestEqual(record.SecretDigest[:], computed) {
		return nil, ErrTokenSecretMismatch
	}
	return record, nil
}

// Consume terminally marks a single-use token used. It is a pure
// compare-and-swap: when callers race on the same lookup id exactly one
// wins and the rest get ErrTokenAlreadyUsed, which callers must treat as a
// normal outcome. Validate first; Consume does not re-check the secret.
func (e *Engine) Consume(ctx context.Context, typ TokenType, lookupID string) (*TokenRecord, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.store.ConsumeOnce(ctx, typ, lookupID, e.now())
	if err != nil {
		if errors.Is(err, ErrTokenAlreadyUsed) {
			e.metricInc(MetricConsumeReplay)
		} else {
			e.metricInc(MetricConsumeFailure)
		}
		e.emitAudit(ctx, auditEventTokenConsume, false, "", lookupID, err, nil)
		return nil, err
	}

	e.metricInc(MetricConsumeSuccess)
	e.emitAudit(ctx, auditEventTokenConsume, true, record.PrincipalID, lookupID, nil, nil)
	return record, nil
}

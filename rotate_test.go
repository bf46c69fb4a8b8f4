package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carebridge/authcore/scope"
)

func issueTestRefresh(t *testing.T, engine *Engine, dir *mockDirectory) *IssuedToken {
	t.Helper()

	account := clinicianAccount("prin-1")
	dir.addAccount(account, "cred-1")

	issued, err := engine.IssueRefresh(context.Background(), Subject{
		PrincipalID:  "prin-1",
		OrgID:        account.OrgID,
		CredentialID: "cred-1",
		Role:         account.Role,
	}, scope.Effective(account.Role, account.Scopes, account.Grants))
	if err != nil {
		t.Fatalf("issue refresh failed: %v", err)
	}
	return issued
}

func TestRotateIssuesSuccessorAndRetiresOld(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	first := issueTestRefresh(t, engine, dir)

	result, err := engine.Rotate(ctx, first.Token)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("rotation returned empty tokens")
	}
	if result.RefreshToken == first.Token {
		t.Fatal("rotation returned the presented token")
	}
	if result.Caller == nil || result.Caller.PrincipalID != "prin-1" {
		t.Fatalf("unexpected caller: %+v", result.Caller)
	}

	old, err := engine.store.FindOne(ctx, TokenRefresh, first.LookupID)
	if err != nil {
		t.Fatalf("old row lookup failed: %v", err)
	}
	if old.RotatedAt == 0 || old.ReplacedByID != result.Record.LookupID {
		t.Fatalf("old row not linked to successor: %+v", old)
	}
	if result.Record.SessionID != old.SessionID {
		t.Fatal("rotation changed the session binding")
	}
}

func TestRotatedReplayRejectedAndChainRevoked(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	tokenA := issueTestRefresh(t, engine, dir)

	resultB, err := engine.Rotate(ctx, tokenA.Token)
	if err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	// Replaying A must fail terminally, not silently re-serve.
	if _, err := engine.Rotate(ctx, tokenA.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replay of rotated token: got %v, want ErrUnauthorized", err)
	}

	// Replay is a theft indicator: the live head B must now be revoked.
	head, err := engine.store.FindOne(ctx, TokenRefresh, resultB.Record.LookupID)
	if err != nil {
		t.Fatalf("head lookup failed: %v", err)
	}
	if head.RevokedAt == 0 {
		t.Fatal("chain head not revoked after replay")
	}
	if _, err := engine.Rotate(ctx, resultB.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("rotate of revoked head: got %v, want ErrUnauthorized", err)
	}
}

func TestRotatedLookupIDWithWrongSecretDoesNotRevokeChain(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	tokenA := issueTestRefresh(t, engine, dir)
	resultB, err := engine.Rotate(ctx, tokenA.Token)
	if err != nil {
		t.Fatalf("rotation failed: %v", err)
	}

	// Lookup ids are loggable, so an attacker may know A's id without
	// ever holding its secret. Presenting it with a wrong secret must be
	// rejected without killing the victim's live session.
	lookupPart := strings.SplitN(tokenA.Token, ".", 2)[0]
	forged := lookupPart + "." + strings.Repeat("A", 43)
	if _, err := engine.Rotate(ctx, forged); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("forged replay: got %v, want ErrUnauthorized", err)
	}

	head, err := engine.store.FindOne(ctx, TokenRefresh, resultB.Record.LookupID)
	if err != nil {
		t.Fatalf("head lookup failed: %v", err)
	}
	if head.RevokedAt != 0 {
		t.Fatal("unauthenticated replay revoked the live head")
	}

	// The true bearer of A still triggers the theft response.
	if _, err := engine.Rotate(ctx, tokenA.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("authentic replay: got %v, want ErrUnauthorized", err)
	}
	head, err = engine.store.FindOne(ctx, TokenRefresh, resultB.Record.LookupID)
	if err != nil {
		t.Fatalf("head lookup failed: %v", err)
	}
	if head.RevokedAt == 0 {
		t.Fatal("authentic replay did not revoke the live head")
	}
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	issued := issueTestRefresh(t, engine, dir)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []*RotateResult
		rejected int
		failures []error
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := engine.Rotate(ctx, issued.Token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, result)
			case errors.Is(err, ErrUnauthorized):
				rejected++
			default:
				failures = append(failures, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(failures) != 0 {
		t.Fatalf("unexpected rotation failures: %v", failures)
	}
	if len(winners) != 1 || rejected != workers-1 {
		t.Fatalf("got %d winners / %d rejections, want 1 / %d", len(winners), rejected, workers-1)
	}

	// The presented row links to exactly the winner's successor; losers'
	// successors were retired before their callers returned.
	old, err := engine.store.FindOne(ctx, TokenRefresh, issued.LookupID)
	if err != nil {
		t.Fatalf("old row lookup failed: %v", err)
	}
	if old.RotatedAt == 0 || old.ReplacedByID != winners[0].Record.LookupID {
		t.Fatalf("old row not linked to the single winner: %+v", old)
	}
}

func TestRotationChainSurvivesMultipleHops(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	current := issueTestRefresh(t, engine, dir)
	token := current.Token

	for i := 0; i < 4; i++ {
		result, err := engine.Rotate(ctx, token)
		if err != nil {
			t.Fatalf("rotation %d failed: %v", i, err)
		}
		token = result.RefreshToken
	}

	// The final head still rotates; every ancestor is retired.
	if _, err := engine.Rotate(ctx, token); err != nil {
		t.Fatalf("head rotation failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, current.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ancestor replay: got %v, want ErrUnauthorized", err)
	}
}

func TestRotateReResolvesScopesFromLiveAccount(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	issued := issueTestRefresh(t, engine, dir)

	// Demote the account after issuance; the snapshot on the row must not win.
	demoted := clinicianAccount("prin-1")
	demoted.Role = scope.RoleCaregiver
	demoted.Grants = nil
	dir.setAccount(demoted)

	result, err := engine.Rotate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if scope.Has(result.Caller.Scopes, scope.PatientsWrite) {
		t.Fatal("rotation kept stale clinician scopes")
	}
	if !scope.Has(result.Caller.Scopes, scope.PatientsRead) {
		t.Fatal("rotation lost caregiver scopes")
	}
	if result.Caller.Role != scope.RoleCaregiver {
		t.Fatalf("caller role not re-resolved: %q", result.Caller.Role)
	}
}

func TestRotateInactiveAccountForbidden(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	issued := issueTestRefresh(t, engine, dir)

	account := clinicianAccount("prin-1")
	account.Active = false
	dir.setAccount(account)

	if _, err := engine.Rotate(ctx, issued.Token); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestRotateExpiredRefresh(t *testing.T) {
	engine, dir, clock := newTestEngine(t)
	ctx := context.Background()

	issued := issueTestRefresh(t, engine, dir)

	clock.Advance(31 * 24 * time.Hour)
	if _, err := engine.Rotate(ctx, issued.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestRevokeRefreshTerminal(t *testing.T) {
	engine, dir, _ := newTestEngine(t)
	ctx := context.Background()

	issued := issueTestRefresh(t, engine, dir)

	if err := engine.RevokeRefresh(ctx, issued.LookupID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	// Idempotent.
	if err := engine.RevokeRefresh(ctx, issued.LookupID); err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, issued.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("rotate of revoked token: got %v, want ErrUnauthorized", err)
	}
}

func TestRotateMalformedToken(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.Rotate(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("got %v, want ErrTokenMalformed", err)
	}
}

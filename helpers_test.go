package authcore

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/carebridge/authcore/scope"
	"github.com/redis/go-redis/v9"
)

var (
	testPepper     = bytes.Repeat([]byte{0xA7}, 32)
	testSigningKey = bytes.Repeat([]byte{0x3C}, 32)
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mockDirectory struct {
	mu       sync.Mutex
	links    map[string]AuthLink
	accounts map[string]Account
	linkErr  error
	acctErr  error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		links:    make(map[string]AuthLink),
		accounts: make(map[string]Account),
	}
}

func (d *mockDirectory) addAccount(account Account, credentialID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[account.PrincipalID] = account
	if credentialID != "" {
		d.links[credentialID] = AuthLink{
			CredentialID: credentialID,
			PrincipalID:  account.PrincipalID,
			Provider:     "oidc",
			Active:       true,
		}
	}
}

func (d *mockDirectory) setLink(link AuthLink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links[link.CredentialID] = link
}

func (d *mockDirectory) setAccount(account Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[account.PrincipalID] = account
}

func (d *mockDirectory) ActiveLinkByCredential(_ context.Context, credentialID string) (AuthLink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.linkErr != nil {
		return AuthLink{}, d.linkErr
	}
	return d.links[credentialID], nil
}

func (d *mockDirectory) AccountByPrincipal(_ context.Context, principalID string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acctErr != nil {
		return Account{}, d.acctErr
	}
	return d.accounts[principalID], nil
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestEngine(t *testing.T) (*Engine, *mockDirectory, *testClock) {
	t.Helper()
	return newTestEngineWithKey(t, testSigningKey)
}

func newTestEngineWithKey(t *testing.T, signingKey []byte) (*Engine, *mockDirectory, *testClock) {
	t.Helper()

	rdb := newTestRedis(t)
	dir := newMockDirectory()
	clock := newTestClock()

	engine, err := New(Config{
		Pepper: testPepper,
		Bearer: BearerConfig{SigningKey: signingKey},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}, Deps{
		Redis:     rdb,
		Directory: dir,
		Clock:     clock.Now,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, dir, clock
}

func clinicianAccount(principalID string) Account {
	return Account{
		PrincipalID: principalID,
		Role:        scope.RoleClinician,
		Active:      true,
		OrgID:       "org-1",
		Grants:      []scope.Scope{"custom:x"},
		FacilityIDs: []string{"fac-1"},
	}
}

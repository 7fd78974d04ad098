package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://authz.test"
	testPassword = "correct horse battery staple"
	testSecret   = "s3cret-client-value"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store *sqlite.Store
	svc   *Services
	jwt   *jwtx.HS256
	clock *testClock

	alice domain.User
	bob   domain.User // has TOTP
}

// Secret and password hashes are computed once; argon2 is slow.
var (
	hashOnce     sync.Once
	passwordHash string
	secretHash   string
)

func testHashes(t *testing.T) (string, string) {
	t.Helper()
	hashOnce.Do(func() {
		var err error
		passwordHash, err = cryptox.HashPassword(testPassword)
		require.NoError(t, err)
		secretHash, err = cryptox.HashPassword(testSecret)
		require.NoError(t, err)
	})
	return passwordHash, secretHash
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "authz.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	clock := &testClock{now: time.Now().UTC()}
	signer, err := jwtx.NewHS256("test", []byte("0123456789abcdef0123456789abcdef"), jwtx.VerifyOptions{
		Issuer:        testIssuer,
		RequireExpiry: true,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	var seq atomic.Int64
	next := func(prefix string) string { return fmt.Sprintf("%s-%04d", prefix, seq.Add(1)) }

	h := &harness{
		store: s,
		jwt:   signer,
		clock: clock,
		svc: New(Options{
			Store:    s,
			Signer:   signer,
			Verifier: signer,
			Now:      clock.Now,
			NewID:    func() string { return next("id") },
			Generate: func() (string, error) { return next("cred"), nil },
		}),
	}

	pw, secret := testHashes(t)
	h.alice = domain.User{ID: "user-alice", Username: "alice", PreferredName: "Alice", PasswordHash: pw}
	h.bob = domain.User{ID: "user-bob", Username: "bob", PreferredName: "Bob", PasswordHash: pw, TOTPSecret: "JBSWY3DPEHPK3PXP"}
	for _, u := range []domain.User{
		h.alice,
		h.bob,
		{ID: "user-carol", Username: "carol", PasswordHash: pw, Disabled: true},
	} {
		require.NoError(t, s.Users().UpsertUser(ctx, u))
	}

	for _, c := range []domain.Client{
		{
			ID: "a", Name: "App A", SecretHash: secret,
			RedirectURI: "/a/callback", LogoutURI: "/a/logout",
			Scopes: []string{"openid", "profile"}, Enabled: true,
			AllowAuthorizationCode: true, AllowRefreshToken: true,
		},
		{
			ID: "b", Name: "App B",
			RedirectURI: "/b/callback", RedirectPattern: `/b/callback\?v=\d+`, LogoutURI: "/b/logout",
			Enabled: true, AllowAuthorizationCode: true,
		},
		{
			ID: "svc", Name: "Service", SecretHash: secret,
			RedirectURI: "/svc/callback",
			Scopes:      []string{"api"}, Enabled: true,
		},
		{
			ID: "exchange", Name: "Exchange", SecretHash: secret,
			Enabled: true, AllowLoginToken: true,
		},
		{
			ID: "off", Name: "Disabled", RedirectURI: "/off/callback",
			AllowAuthorizationCode: true,
		},
	} {
		require.NoError(t, s.Clients().UpsertClient(ctx, c))
	}
	return h
}

// login runs the authorize flow for clientID with alice's password.
func (h *harness) login(t *testing.T, clientID string) *AuthorizeResponse {
	t.Helper()
	resp, err := h.svc.Authorize.Authorize(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     clientID,
		Username:     "alice",
		Password:     testPassword,
	})
	require.NoError(t, err)
	return resp
}

// join runs the authorize flow for clientID with an existing session token.
func (h *harness) join(t *testing.T, clientID, sessionToken string) *AuthorizeResponse {
	t.Helper()
	resp, err := h.svc.Authorize.Authorize(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     clientID,
		SessionToken: sessionToken,
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) redeem(ctx context.Context, clientID, secret, code string) (*domain.AccessToken, error) {
	var params domain.Params
	params.Set("code", code)
	return h.svc.Token.Grant(ctx, &TokenRequest{
		GrantType: GrantTypeAuthorizationCode,
		Client:    ClientCredentials{ID: clientID, Secret: secret},
		Params:    params,
	})
}

func formParams(kv ...string) domain.Params {
	var p domain.Params
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

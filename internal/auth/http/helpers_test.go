package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://authz.test"
	testPassword = "correct horse battery staple"
	testSecret   = "s3cret/client+value"
)

var (
	hashOnce     sync.Once
	passwordHash string
	secretHash   string
)

type testServer struct {
	router  *Router
	store   *sqlite.Store
	signer  *jwtx.HS256
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "authz.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	signer, err := jwtx.NewHS256("test", []byte("0123456789abcdef0123456789abcdef"), jwtx.VerifyOptions{
		Issuer:        testIssuer,
		RequireExpiry: true,
	})
	require.NoError(t, err)

	hashOnce.Do(func() {
		passwordHash, err = cryptox.HashPassword(testPassword)
		require.NoError(t, err)
		secretHash, err = cryptox.HashPassword(testSecret)
		require.NoError(t, err)
	})

	require.NoError(t, s.Users().UpsertUser(ctx, domain.User{
		ID: "user-alice", Username: "alice", PreferredName: "Alice", PasswordHash: passwordHash,
	}))
	for _, c := range []domain.Client{
		{
			ID: "web", Name: "Web", SecretHash: secretHash,
			RedirectURI: "https://web.example/callback", LogoutURI: "https://web.example/logout",
			Scopes: []string{"openid", "profile"}, Enabled: true,
			AllowAuthorizationCode: true, AllowRefreshToken: true,
		},
		{
			ID: "spa", Name: "SPA",
			RedirectURI: "https://spa.example/callback", LogoutURI: "https://spa.example/logout",
			Enabled: true, AllowAuthorizationCode: true,
		},
		{
			ID: "svc", Name: "Service", SecretHash: secretHash,
			Scopes: []string{"api"}, Enabled: true,
		},
	} {
		require.NoError(t, s.Clients().UpsertClient(ctx, c))
	}

	m := metrics.New()
	svc := service.New(service.Options{
		Store:    s,
		Signer:   signer,
		Verifier: signer,
		Metrics:  m,
	})

	r := NewRouter(RouterOptions{
		Services:     svc,
		Store:        s,
		Signer:       signer,
		Metrics:      m,
		BuildVersion: "test",
	})
	r.ApplyRoutes()

	return &testServer{router: r, store: s, signer: signer, metrics: m}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postForm(path string, form url.Values, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, m := range mutate {
		m(req)
	}
	return ts.do(req)
}

func withBasic(id, secret string) func(*http.Request) {
	return func(r *http.Request) {
		r.SetBasicAuth(url.QueryEscape(id), url.QueryEscape(secret))
	}
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultSessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", DefaultSessionCookieName)
	return nil
}

// login runs the authorize POST for clientID and returns the redirect.
func (ts *testServer) login(t *testing.T, clientID string) (*url.URL, *http.Cookie) {
	t.Helper()
	rec := ts.postForm("/oauth2/authorize", url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"username":      {"alice"},
		"password":      {testPassword},
		"state":         {"xyz"},
	})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc, sessionCookie(t, rec)
}

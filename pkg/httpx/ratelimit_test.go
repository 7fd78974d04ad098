package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr, target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = addr
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("remote addr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(requestFrom("192.168.1.1:12345", "/")))
	})

	t.Run("forwarded for wins", func(t *testing.T) {
		req := requestFrom("192.168.1.1:12345", "/")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("real ip", func(t *testing.T) {
		req := requestFrom("192.168.1.1:12345", "/")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestClientIDKeyExtractor(t *testing.T) {
	t.Run("basic auth", func(t *testing.T) {
		req := requestFrom("10.0.0.1:1", "/?client_id=ignored")
		req.SetBasicAuth("svc", "secret")
		require.Equal(t, "svc", httpx.ClientIDKeyExtractor(req))
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"client_id": {"web"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.Equal(t, "web", httpx.ClientIDKeyExtractor(req))
	})

	t.Run("anonymous", func(t *testing.T) {
		require.Empty(t, httpx.ClientIDKeyExtractor(requestFrom("10.0.0.1:1", "/")))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	ex := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.FormFieldKeyExtractor("username"))

	require.Equal(t, "192.168.1.1:alice", ex(requestFrom("192.168.1.1:1", "/?username=alice")))
	require.Equal(t, "192.168.1.1", ex(requestFrom("192.168.1.1:1", "/")))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}

	t.Run("blocks over limit", func(t *testing.T) {
		h := httpx.RateLimitByIP(cfg)(okHandler())

		for i := range 2 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom("192.168.1.1:1", "/"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.1:1", "/"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.2:1", "/"))
		require.Equal(t, http.StatusOK, rec.Code, "other addresses have their own bucket")
	})

	t.Run("empty key is exempt", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(cfg, func(*http.Request) string { return "" })(okHandler())
		for range 5 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom("192.168.1.1:1", "/"))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("per client", func(t *testing.T) {
		h := httpx.RateLimitByClient(cfg)(okHandler())
		send := func(client string) int {
			req := requestFrom("10.0.0.9:1", "/")
			req.SetBasicAuth(client, "x")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec.Code
		}
		require.Equal(t, http.StatusOK, send("a"))
		require.Equal(t, http.StatusOK, send("a"))
		require.Equal(t, http.StatusTooManyRequests, send("a"))
		require.Equal(t, http.StatusOK, send("b"))
	})

	t.Run("ip and username", func(t *testing.T) {
		h := httpx.RateLimitByIPAndFormField(cfg, "username")(okHandler())
		send := func(user string) int {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom("10.0.0.1:1", "/?username="+user))
			return rec.Code
		}
		require.Equal(t, http.StatusOK, send("alice"))
		require.Equal(t, http.StatusOK, send("alice"))
		require.Equal(t, http.StatusTooManyRequests, send("alice"))
		require.Equal(t, http.StatusOK, send("bob"))
	})
}

func TestRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Second, Burst: 1}

	t.Setenv("AUTHZ_RATELIMIT_TEST_REQUESTS", "50")
	t.Setenv("AUTHZ_RATELIMIT_TEST_WINDOW", "30s")
	t.Setenv("AUTHZ_RATELIMIT_TEST_BURST", "-3")

	cfg := httpx.RateLimitFromEnv("TEST", def)
	require.Equal(t, 50, cfg.RequestsPerWindow)
	require.Equal(t, 30*time.Second, cfg.Window)
	require.Equal(t, 1, cfg.Burst, "invalid values keep the default")
}

func TestRateLimitProfiles(t *testing.T) {
	for name, cfg := range map[string]httpx.RateLimitConfig{
		"login":  httpx.LoginLimit,
		"token":  httpx.TokenLimit,
		"public": httpx.PublicLimit,
	} {
		t.Run(name, func(t *testing.T) {
			require.Positive(t, cfg.RequestsPerWindow)
			require.Positive(t, cfg.Window)
			require.Positive(t, cfg.Burst)
		})
	}
	require.Less(t, httpx.LoginLimit.RequestsPerWindow, httpx.TokenLimit.RequestsPerWindow)
}

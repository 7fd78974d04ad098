package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authz/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill over Window,
// with up to Burst requests admitted at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Built-in profiles. Each can be overridden with
// AUTHZ_RATELIMIT_{NAME}_REQUESTS, _WINDOW (a Go duration) and _BURST.
var (
	// LoginLimit guards interactive username/password logins.
	LoginLimit = RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 5}

	// TokenLimit guards the token endpoint, keyed by client.
	TokenLimit = RateLimitConfig{RequestsPerWindow: 120, Window: time.Minute, Burst: 30}

	// PublicLimit guards read-only endpoints such as tokeninfo and JWKS.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 200}
)

func init() {
	LoginLimit = RateLimitFromEnv("LOGIN", LoginLimit)
	TokenLimit = RateLimitFromEnv("TOKEN", TokenLimit)
	PublicLimit = RateLimitFromEnv("PUBLIC", PublicLimit)
}

// RateLimitFromEnv overlays AUTHZ_RATELIMIT_{name}_* variables on def.
// Invalid or non-positive values are ignored.
func RateLimitFromEnv(name string, def RateLimitConfig) RateLimitConfig {
	prefix := "AUTHZ_RATELIMIT_" + name + "_"
	cfg := def

	if n, err := strconv.Atoi(os.Getenv(prefix + "REQUESTS")); err == nil && n > 0 {
		cfg.RequestsPerWindow = n
	}
	if d, err := time.ParseDuration(os.Getenv(prefix + "WINDOW")); err == nil && d > 0 {
		cfg.Window = d
	}
	if n, err := strconv.Atoi(os.Getenv(prefix + "BURST")); err == nil && n > 0 {
		cfg.Burst = n
	}
	return cfg
}

// KeyExtractor picks the bucket a request is charged against. An empty key
// exempts the request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor uses the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormFieldKeyExtractor reads a request parameter from the query or a
// url-encoded body.
func FormFieldKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.Form.Get(field)
	}
}

// ClientIDKeyExtractor identifies the OAuth client from HTTP Basic
// credentials or the client_id parameter.
func ClientIDKeyExtractor(r *http.Request) string {
	if id, _, ok := r.BasicAuth(); ok && id != "" {
		return id
	}
	return FormFieldKeyExtractor("client_id")(r)
}

// CompositeKeyExtractor joins the non-empty keys of each extractor with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, ex := range extractors {
			if k := ex(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, sep)
	}
}

const limiterIdleTTL = 10 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per key and forgets buckets that
// have been idle for limiterIdleTTL.
type limiterPool struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	return &limiterPool{
		buckets:   make(map[string]*bucket),
		limit:     rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:     cfg.Burst,
		lastSweep: time.Now(),
	}
}

func (p *limiterPool) get(key string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastSweep) > limiterIdleTTL {
		for k, b := range p.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(p.buckets, k)
			}
		}
		p.lastSweep = now
	}

	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// RateLimitMiddleware rejects requests over the configured rate with 429
// and a Retry-After header.
func RateLimitMiddleware(cfg RateLimitConfig, keyFn KeyExtractor) Middleware {
	pool := newLimiterPool(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			lim := pool.get(key, now)
			if lim.AllowN(now, 1) {
				next.ServeHTTP(w, r)
				return
			}

			res := lim.ReserveN(now, 1)
			wait := res.DelayFrom(now)
			res.CancelAt(now)
			retryAfter := max(int(wait.Round(time.Second)/time.Second), 1)

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "too many requests, retry later",
			})
		})
	}
}

// RateLimitByIP limits by client address.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}

// RateLimitByClient limits by OAuth client, falling back to address for
// anonymous requests.
func RateLimitByClient(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", ClientIDKeyExtractor, IPKeyExtractor))
}

// RateLimitByIPAndFormField limits by address plus a request parameter, for
// example address and username on login.
func RateLimitByIPAndFormField(cfg RateLimitConfig, field string) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", IPKeyExtractor, FormFieldKeyExtractor(field)))
}

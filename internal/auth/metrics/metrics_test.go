package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordTokenIssued("password", true, 10*time.Millisecond)
	m.RecordTokenIssued("password", true, 10*time.Millisecond)
	m.RecordGrantFailure("authorization_code", "invalid_grant")
	m.RecordCodeIssued()
	m.RecordCodeConsumed("expired")
	m.RecordSSOLogin(true)
	m.RecordSSOLogin(false)
	m.RecordSSOLogout(2)
	m.RecordKeyRotation(true)
	m.RecordSweep("codes", 3)

	require.Equal(t, 2.0, testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("password", "true")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.GrantFailuresTotal.WithLabelValues("authorization_code", "invalid_grant")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CodesConsumedTotal.WithLabelValues("expired")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SSOLoginsTotal.WithLabelValues("joined")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.SweptRecordsTotal.WithLabelValues("codes")))
}

func TestNewUsesSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordCodeIssued()
	require.Equal(t, 1.0, testutil.ToFloat64(a.CodesIssuedTotal))
	require.Equal(t, 0.0, testutil.ToFloat64(b.CodesIssuedTotal))
}

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.Handle("GET /metrics", m.Handler())
	h := HTTPMiddleware(m)(mux)

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `authz_http_requests_total{method="GET",route="GET /things/{id}",status="418"} 2`))
}

func TestNoop(t *testing.T) {
	require.IsType(t, Noop{}, OrNoop(nil))

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	require.NotNil(t, HTTPMiddleware(Noop{})(next))
}

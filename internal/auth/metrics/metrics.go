package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors for the server.
type Metrics struct {
	registry *prometheus.Registry

	TokensIssuedTotal   *prometheus.CounterVec
	TokenIssueDuration  *prometheus.HistogramVec
	GrantFailuresTotal  *prometheus.CounterVec
	CodesIssuedTotal    prometheus.Counter
	CodesConsumedTotal  *prometheus.CounterVec
	IntrospectionsTotal *prometheus.CounterVec
	SSOLoginsTotal      *prometheus.CounterVec
	SSOLogoutsTotal     prometheus.Counter
	SSOLogoutFanOut     prometheus.Histogram
	KeyRotationsTotal   *prometheus.CounterVec
	SweptRecordsTotal   *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TokensIssuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_tokens_issued_total",
			Help: "Total number of access tokens issued",
		}, []string{"grant_type", "refresh"}),
		TokenIssueDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authz_token_issue_duration_seconds",
			Help:    "Time taken to handle a successful token request",
			Buckets: prometheus.DefBuckets,
		}, []string{"grant_type"}),
		GrantFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_grant_failures_total",
			Help: "Total number of rejected token requests",
		}, []string{"grant_type", "error"}),
		CodesIssuedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "authz_codes_issued_total",
			Help: "Total number of authorization codes issued",
		}),
		CodesConsumedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_codes_consumed_total",
			Help: "Total number of authorization code redemptions",
		}, []string{"result"}),
		IntrospectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_introspections_total",
			Help: "Total number of token-info and user-info lookups",
		}, []string{"endpoint", "result"}),
		SSOLoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_sso_logins_total",
			Help: "Total number of SSO logins, by whether they created the session",
		}, []string{"session"}),
		SSOLogoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "authz_sso_logouts_total",
			Help: "Total number of ended SSO sessions",
		}),
		SSOLogoutFanOut: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "authz_sso_logout_fanout",
			Help:    "Number of logout URLs returned per ended session",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		}),
		KeyRotationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_key_rotations_total",
			Help: "Total number of signing key rotations",
		}, []string{"result"}),
		SweptRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_swept_records_total",
			Help: "Total number of expired records removed by housekeeping",
		}, []string{"kind"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authz_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordTokenIssued(grantType string, withRefresh bool, took time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(grantType, strconv.FormatBool(withRefresh)).Inc()
	m.TokenIssueDuration.WithLabelValues(grantType).Observe(took.Seconds())
}

func (m *Metrics) RecordGrantFailure(grantType, code string) {
	m.GrantFailuresTotal.WithLabelValues(grantType, code).Inc()
}

func (m *Metrics) RecordCodeIssued() { m.CodesIssuedTotal.Inc() }

func (m *Metrics) RecordCodeConsumed(result string) {
	m.CodesConsumedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordIntrospection(endpoint, result string) {
	m.IntrospectionsTotal.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) RecordSSOLogin(created bool) {
	label := "joined"
	if created {
		label = "created"
	}
	m.SSOLoginsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordSSOLogout(fanOut int) {
	m.SSOLogoutsTotal.Inc()
	m.SSOLogoutFanOut.Observe(float64(fanOut))
}

func (m *Metrics) RecordKeyRotation(success bool) {
	result := ResultSuccess
	if !success {
		result = ResultError
	}
	m.KeyRotationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSweep(kind string, deleted int64) {
	m.SweptRecordsTotal.WithLabelValues(kind).Add(float64(deleted))
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

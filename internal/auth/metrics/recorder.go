// Package metrics records authorization server activity. Prometheus backs the
// real implementation; Noop is used when metrics are disabled and in tests.
package metrics

import "time"

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder is implemented by Metrics and Noop.
type Recorder interface {
	// RecordTokenIssued counts a token minted by grantType. withRefresh
	// tells whether a refresh token was issued alongside.
	RecordTokenIssued(grantType string, withRefresh bool, took time.Duration)

	// RecordGrantFailure counts a rejected token request by its OAuth2
	// error code.
	RecordGrantFailure(grantType, code string)

	RecordCodeIssued()

	// RecordCodeConsumed counts code redemptions; result is success,
	// expired or not_found.
	RecordCodeConsumed(result string)

	RecordIntrospection(endpoint, result string)

	RecordSSOLogin(created bool)
	RecordSSOLogout(fanOut int)

	RecordKeyRotation(success bool)
	RecordSweep(kind string, deleted int64)

	RecordHTTPRequest(method, route string, status int, took time.Duration)
}

package authsdk

import (
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// TokenResponse is the token endpoint success body (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`

	// IDToken is present when openid was granted to a user.
	IDToken string `json:"id_token,omitempty"`

	// SessionToken is returned by the password grant so the caller can
	// join or end the SSO session later.
	SessionToken string `json:"session_token,omitempty"`
}

// TokenInfoResponse describes a live access token.
type TokenInfoResponse struct {
	ClientID  string            `json:"client_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Scope     string            `json:"scope,omitempty"`
	ExpiresIn int64             `json:"expires_in"`
	IssuedAt  int64             `json:"iat"`
	Params    map[string]string `json:"params,omitempty"`
}

// UserInfoResponse is the subject behind a user token.
type UserInfoResponse struct {
	Sub       string `json:"sub"`
	Name      string `json:"name,omitempty"`
	LoginName string `json:"login_name"`
	Scope     string `json:"scope,omitempty"`
}

// LogoutResponse lists the logout endpoints of every client that joined the
// ended session. The caller notifies or redirects through each of them.
type LogoutResponse struct {
	LoggedOut  bool     `json:"logged_out"`
	LogoutURLs []string `json:"logout_urls"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency readiness depends on.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}

// JWKSResponse is the published key set.
type JWKSResponse = jwtx.JWKS

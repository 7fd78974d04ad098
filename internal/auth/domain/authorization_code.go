package domain

import "time"

// AuthorizationCode is a one-time credential exchanged for an access token.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	SessionID   string // SSO session, empty when none was active
	RedirectURI string
	Scopes      []string
	Params      Params
	ExpiresIn   time.Duration
	CreatedAt   time.Time
}

// ExpiresAt is CreatedAt plus ExpiresIn.
func (c *AuthorizationCode) ExpiresAt() time.Time { return c.CreatedAt.Add(c.ExpiresIn) }

// IsExpired reports whether now is past the expiry instant. A check at
// exactly the expiry instant is still valid.
func (c *AuthorizationCode) IsExpired(now time.Time) bool { return now.After(c.ExpiresAt()) }

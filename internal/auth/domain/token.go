package domain

import "time"

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// AccessToken is an issued bearer credential and its optional refresh
// token. Stores key records by fingerprint and never persist raw values, so
// a loaded record only carries the raw value it was looked up by.
type AccessToken struct {
	Token            string
	RefreshToken     string
	ClientID         string // empty for user-only tokens
	UserID           string // empty for client-only tokens
	SessionID        string
	Scopes           []string
	Params           Params
	CreatedAt        time.Time
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
}

func (t *AccessToken) ExpiresAt() time.Time { return t.CreatedAt.Add(t.ExpiresIn) }

// IsExpired reports whether now is past CreatedAt+ExpiresIn.
func (t *AccessToken) IsExpired(now time.Time) bool { return now.After(t.ExpiresAt()) }

// HasRefresh reports whether a refresh token was issued alongside.
func (t *AccessToken) HasRefresh() bool { return t.RefreshExpiresIn > 0 }

// IsRefreshExpired reports whether the refresh token can no longer be used.
// Tokens issued without a refresh token are always refresh-expired.
func (t *AccessToken) IsRefreshExpired(now time.Time) bool {
	if !t.HasRefresh() {
		return true
	}
	return now.After(t.CreatedAt.Add(t.RefreshExpiresIn))
}

// IsClientOnly reports whether the token has no user principal.
func (t *AccessToken) IsClientOnly() bool { return t.UserID == "" }

// ExpiresInAt is the remaining lifetime in whole seconds, never negative.
func (t *AccessToken) ExpiresInAt(now time.Time) int64 {
	left := t.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return int64(left / time.Second)
}

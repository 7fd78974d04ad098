package domain

import "time"

// SSOSession is one login session shared by every client the user reached
// with the same session token. It is keyed by (Username, TokenHash).
type SSOSession struct {
	ID        string
	UserID    string
	Username  string
	TokenHash string // fingerprint of the signed session token
	TokenSID  string // sid claim of the session token
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s *SSOSession) IsExpired(now time.Time) bool { return now.After(s.ExpiresAt) }

// SSOLogin records one client joining a session.
type SSOLogin struct {
	ID        string
	SessionID string
	ClientID  string // empty when the login came from no particular client
	LogoutURI string
	LoginAt   time.Time
	Initial   bool // true only for the login that created the session
}

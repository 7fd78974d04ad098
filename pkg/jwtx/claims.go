package jwtx

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Default lifetimes for credentials minted by the authorization server.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultSessionTTL      = 12 * time.Hour
)

// Registered and server-specific claim names.
const (
	ClaimIssuer    = "iss"
	ClaimSubject   = "sub"
	ClaimAudience  = "aud"
	ClaimExpiresAt = "exp"
	ClaimIssuedAt  = "iat"
	ClaimJTI       = "jti"

	// ClaimSessionID carries the login session identifier inside session
	// tokens.
	ClaimSessionID = "sid"
	ClaimUsername  = "preferred_username"
	ClaimName      = "name"
	ClaimScope     = "scope"
	ClaimClientID  = "client_id"
)

// Claims is the payload of a compact JWT. Callers may put any JSON value in
// it; Sign adds the registered time claims.
type Claims map[string]any

// Clone returns a shallow copy so Sign never mutates the caller's map.
func (c Claims) Clone() Claims {
	out := make(Claims, len(c)+4)
	maps.Copy(out, c)
	return out
}

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

func (c Claims) Subject() string   { return c.String(ClaimSubject) }
func (c Claims) Issuer() string    { return c.String(ClaimIssuer) }
func (c Claims) SessionID() string { return c.String(ClaimSessionID) }
func (c Claims) Username() string  { return c.String(ClaimUsername) }

// ExpiresAt returns the exp claim. The bool is false when exp is missing or
// is not numeric.
func (c Claims) ExpiresAt() (time.Time, bool) {
	return c.numericTime(ClaimExpiresAt)
}

// IssuedAt returns the iat claim.
func (c Claims) IssuedAt() (time.Time, bool) {
	return c.numericTime(ClaimIssuedAt)
}

func (c Claims) numericTime(name string) (time.Time, bool) {
	switch v := c[name].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// NewJTI returns a random identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// stamp copies claims and sets the standard claims every signed token
// carries. Caller-supplied jti and sub survive; iat and exp are always
// recomputed from now.
func stamp(claims Claims, issuer string, expiresIn time.Duration, now time.Time) Claims {
	out := claims.Clone()
	out[ClaimIssuedAt] = now.Unix()
	out[ClaimExpiresAt] = now.Add(expiresIn).Unix()
	if issuer != "" {
		out[ClaimIssuer] = issuer
	}
	if _, ok := out[ClaimJTI]; !ok {
		out[ClaimJTI] = NewJTI()
	}
	return out
}

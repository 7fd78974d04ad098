package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/authz/pkg/authsdk"
)

// DefaultSessionCookieName holds the SSO session token in the browser.
const DefaultSessionCookieName = authsdk.SessionCookieName

// SessionCookie describes the cookie that carries the session token between
// authorize requests.
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

// Read returns the session token sent with r, if any.
func (c SessionCookie) Read(r *http.Request) string {
	ck, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c SessionCookie) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

package domain

import (
	"regexp"
	"time"
)

// Client is a registered relying party.
type Client struct {
	ID         string
	Name       string
	SecretHash string // argon2 encoded, empty for public clients

	RedirectURI     string
	RedirectPattern string // regexp matched against the whole URI
	LogoutURI       string
	LogoutPattern   string

	// Zero means the server default.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Scopes  []string
	Enabled bool

	AllowAuthorizationCode bool
	AllowRefreshToken      bool
	AllowLoginToken        bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPublic reports whether the client has no secret.
func (c *Client) IsPublic() bool { return c.SecretHash == "" }

// ResolveRedirectURI returns the URI to send the user back to. An empty
// request selects the registered RedirectURI.
func (c *Client) ResolveRedirectURI(requested string) (string, bool) {
	if requested == "" {
		return c.RedirectURI, c.RedirectURI != ""
	}
	return requested, matchURI(requested, c.RedirectURI, c.RedirectPattern)
}

// MatchLogoutURI reports whether uri is an acceptable logout or
// post-logout redirect target for this client.
func (c *Client) MatchLogoutURI(uri string) bool {
	return matchURI(uri, c.LogoutURI, c.LogoutPattern)
}

// AllowsScopes reports whether every requested scope was granted to the
// client. A client with no scopes configured may request anything.
func (c *Client) AllowsScopes(requested []string) bool {
	if len(c.Scopes) == 0 {
		return true
	}
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

func matchURI(uri, exact, pattern string) bool {
	if uri == "" {
		return false
	}
	if exact != "" && uri == exact {
		return true
	}
	if pattern == "" {
		return false
	}
	ok, err := regexp.MatchString(`^(?:`+pattern+`)$`, uri)
	return err == nil && ok
}

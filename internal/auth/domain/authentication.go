package domain

// Authentication binds the request parameters to the resolved client, user
// and session token for the lifetime of one request. It is never persisted
// and cannot be changed after construction.
type Authentication struct {
	params       Params
	client       *Client
	user         *User
	sessionToken string
}

func NewAuthentication(params Params, client *Client, user *User, sessionToken string) *Authentication {
	return &Authentication{
		params:       params.Clone(),
		client:       client,
		user:         user,
		sessionToken: sessionToken,
	}
}

// Params returns a copy of the request parameters.
func (a *Authentication) Params() Params { return a.params.Clone() }

func (a *Authentication) Param(key string) string { return a.params.Value(key) }

func (a *Authentication) Client() *Client { return a.client }
func (a *Authentication) User() *User     { return a.user }

// SessionToken is the signed token of the general-purpose login, if any.
func (a *Authentication) SessionToken() string { return a.sessionToken }

func (a *Authentication) ClientID() string {
	if a.client == nil {
		return ""
	}
	return a.client.ID
}

func (a *Authentication) Username() string {
	if a.user == nil {
		return ""
	}
	return a.user.Username
}

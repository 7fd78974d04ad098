package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// Token type identifiers used by the token exchange grant (RFC 8693).
const (
	TokenTypeJWT         = "urn:ietf:params:oauth:token-type:jwt"
	TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"
)

// resolveScopes returns the scopes to grant. An empty request means
// fallback; otherwise every requested scope must be allowed.
func resolveScopes(requested, fallback []string, allowed func([]string) bool) ([]string, error) {
	if len(requested) == 0 {
		return fallback, nil
	}
	if !allowed(requested) {
		return nil, ErrInvalidScope
	}
	return requested, nil
}

func clientScopes(c *domain.Client) ([]string, func([]string) bool) {
	if c == nil {
		return nil, func([]string) bool { return true }
	}
	return c.Scopes, c.AllowsScopes
}

// loadActiveUser resolves id and rejects disabled accounts as invalid_grant.
func loadActiveUser(ctx context.Context, users store.Users, id string) (domain.User, error) {
	u, err := users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: user no longer exists", ErrInvalidGrant)
		}
		return domain.User{}, err
	}
	if u.Disabled {
		return domain.User{}, fmt.Errorf("%w: user is disabled", ErrInvalidGrant)
	}
	return u, nil
}

// AuthorizationCodeGrant redeems a code issued by the authorize endpoint.
type AuthorizationCodeGrant struct {
	Clients *ClientAuthenticator
	Codes   *AuthorizationCodeService
	Users   store.Users
	Issuer  *TokenIssuer
	Now     func() time.Time
	Metrics metrics.Recorder
}

func (g *AuthorizationCodeGrant) GrantType() string { return GrantTypeAuthorizationCode }

func (g *AuthorizationCodeGrant) Grant(ctx context.Context, req *TokenRequest) (*domain.AccessToken, *domain.Authentication, error) {
	value := req.Params.Value("code")
	if value == "" {
		return nil, nil, ErrInvalidRequest
	}

	client, err := g.Clients.Authenticate(ctx, req.Client, true)
	if err != nil {
		return nil, nil, err
	}
	if !client.AllowAuthorizationCode {
		return nil, nil, ErrUnauthorizedClient
	}

	code, err := g.Codes.Consume(ctx, value)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidGrant, err)
		}
		return nil, nil, err
	}

	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	rec := metrics.OrNoop(g.Metrics)
	if code.IsExpired(now) {
		rec.RecordCodeConsumed("expired")
		return nil, nil, fmt.Errorf("%w: authorization code expired", ErrInvalidGrant)
	}
	if code.ClientID != client.ID {
		slogx.FromContext(ctx).Warn("authorization code presented by another client",
			"client_id", client.ID, "code_client_id", code.ClientID)
		return nil, nil, fmt.Errorf("%w: code was issued to another client", ErrInvalidGrant)
	}
	if redirect := req.Params.Value("redirect_uri"); redirect != "" && redirect != code.RedirectURI {
		return nil, nil, fmt.Errorf("%w: redirect_uri mismatch", ErrInvalidGrant)
	}
	rec.RecordCodeConsumed(metrics.ResultSuccess)

	user, err := loadActiveUser(ctx, g.Users, code.UserID)
	if err != nil {
		return nil, nil, err
	}

	tok, err := g.Issuer.Issue(ctx, IssueRequest{
		Client:    client,
		User:      &user,
		SessionID: code.SessionID,
		Scopes:    code.Scopes,
		Params:    code.Params,
		Refresh:   true,
	})
	if err != nil {
		_ = g.Codes.Remove(ctx, value)
		return nil, nil, err
	}
	return tok, domain.NewAuthentication(req.Params, client, &user, ""), nil
}

// PasswordGrant logs the user in with username and password (and a TOTP
// code when enrolled), starts or joins an SSO session, and returns the
// session token alongside the access token.
type PasswordGrant struct {
	Clients *ClientAuthenticator
	Login   *LoginService
	SSO     *SSOService
	Issuer  *TokenIssuer
}

func (g *PasswordGrant) GrantType() string { return GrantTypePassword }

func (g *PasswordGrant) Grant(ctx context.Context, req *TokenRequest) (*domain.AccessToken, *domain.Authentication, error) {
	username, password := req.Params.Value("username"), req.Params.Value("password")
	if username == "" || password == "" {
		return nil, nil, ErrInvalidRequest
	}

	client, err := g.Clients.Authenticate(ctx, req.Client, false)
	if err != nil {
		return nil, nil, err
	}

	user, err := g.Login.Authenticate(ctx, username, password, req.Params.Value("otp"))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidGrant, err)
		}
		return nil, nil, err
	}

	fallback, allowed := clientScopes(client)
	scopes, err := resolveScopes(req.Scopes(), fallback, allowed)
	if err != nil {
		return nil, nil, err
	}

	sessionToken, err := g.Login.IssueSessionToken(user)
	if err != nil {
		return nil, nil, err
	}
	authn := domain.NewAuthentication(req.Params, client, &user, sessionToken)

	st, err := g.SSO.OnLoginSuccess(ctx, authn)
	if err != nil {
		return nil, nil, err
	}

	tok, err := g.Issuer.Issue(ctx, IssueRequest{
		Client:    client,
		User:      &user,
		SessionID: st.Session.ID,
		Scopes:    scopes,
		Refresh:   true,
	})
	if err != nil {
		return nil, nil, err
	}
	// The session token is returned to the caller but never stored with
	// the access token.
	tok.Params.Set("session_token", sessionToken)
	return tok, authn, nil
}

// ClientCredentialsGrant issues a client-only token to a confidential
// client.
type ClientCredentialsGrant struct {
	Clients *ClientAuthenticator
	Issuer  *TokenIssuer
}

func (g *ClientCredentialsGrant) GrantType() string { return GrantTypeClientCredentials }

func (g *ClientCredentialsGrant) Grant(ctx context.Context, req *TokenRequest) (*domain.AccessToken, *domain.Authentication, error) {
	client, err := g.Clients.Authenticate(ctx, req.Client, true)
	if err != nil {
		return nil, nil, err
	}
	if client.IsPublic() {
		return nil, nil, ErrUnauthorizedClient
	}

	scopes, err := resolveScopes(req.Scopes(), client.Scopes, client.AllowsScopes)
	if err != nil {
		return nil, nil, err
	}

	tok, err := g.Issuer.Issue(ctx, IssueRequest{Client: client, Scopes: scopes})
	if err != nil {
		return nil, nil, err
	}
	return tok, domain.NewAuthentication(req.Params, client, nil, ""), nil
}

// RefreshTokenGrant rotates a refresh token. The old access and refresh
// tokens are consumed atomically, so a refresh token works at most once.
type RefreshTokenGrant struct {
	Clients *ClientAuthenticator
	Users   store.Users
	Issuer  *TokenIssuer
	Now     func() time.Time
}

func (g *RefreshTokenGrant) GrantType() string { return GrantTypeRefreshToken }

func (g *RefreshTokenGrant) Grant(ctx context.Context, req *TokenRequest) (*domain.AccessToken, *domain.Authentication, error) {
	refresh := req.Params.Value("refresh_token")
	if refresh == "" {
		return nil, nil, ErrInvalidRequest
	}

	client, err := g.Clients.Authenticate(ctx, req.Client, true)
	if err != nil {
		return nil, nil, err
	}
	if !client.AllowRefreshToken {
		return nil, nil, ErrUnauthorizedClient
	}

	old, err := g.Issuer.Tokens.RemoveAndLoadByRefresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown refresh token", ErrInvalidGrant)
		}
		return nil, nil, err
	}

	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	if old.IsRefreshExpired(now) {
		return nil, nil, fmt.Errorf("%w: refresh token expired", ErrInvalidGrant)
	}
	if old.ClientID != client.ID {
		slogx.FromContext(ctx).Warn("refresh token presented by another client",
			"client_id", client.ID, "token_client_id", old.ClientID)
		return nil, nil, fmt.Errorf("%w: refresh token was issued to another client", ErrInvalidGrant)
	}

	var user *domain.User
	if !old.IsClientOnly() {
		u, err := loadActiveUser(ctx, g.Users, old.UserID)
		if err != nil {
			return nil, nil, err
		}
		user = &u
	}

	scopes, err := resolveScopes(req.Scopes(), old.Scopes, func(requested []string) bool {
		narrowed := domain.Client{Scopes: old.Scopes}
		return len(old.Scopes) > 0 && narrowed.AllowsScopes(requested)
	})
	if err != nil {
		return nil, nil, err
	}

	tok, err := g.Issuer.Issue(ctx, IssueRequest{
		Client:    client,
		User:      user,
		SessionID: old.SessionID,
		Scopes:    scopes,
		Params:    old.Params,
		Refresh:   true,
	})
	if err != nil {
		return nil, nil, err
	}
	return tok, domain.NewAuthentication(req.Params, client, user, ""), nil
}

// TokenExchangeGrant trades a session token for an access token of another
// client, joining the SSO session the session token belongs to.
type TokenExchangeGrant struct {
	Clients *ClientAuthenticator
	Login   *LoginService
	SSO     *SSOService
	Issuer  *TokenIssuer
}

func (g *TokenExchangeGrant) GrantType() string { return GrantTypeTokenExchange }

func (g *TokenExchangeGrant) Grant(ctx context.Context, req *TokenRequest) (*domain.AccessToken, *domain.Authentication, error) {
	subject := req.Params.Value("subject_token")
	if subject == "" {
		return nil, nil, ErrInvalidRequest
	}
	if tt := req.Params.Value("subject_token_type"); tt != "" && tt != TokenTypeJWT {
		return nil, nil, ErrInvalidRequest
	}

	client, err := g.Clients.Authenticate(ctx, req.Client, true)
	if err != nil {
		return nil, nil, err
	}
	if !client.AllowLoginToken {
		return nil, nil, ErrUnauthorizedClient
	}

	user, _, err := g.Login.ResolveSessionToken(ctx, subject)
	if err != nil {
		if Classify(err) == ErrServerError {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}

	scopes, err := resolveScopes(req.Scopes(), client.Scopes, client.AllowsScopes)
	if err != nil {
		return nil, nil, err
	}

	authn := domain.NewAuthentication(req.Params, client, &user, subject)
	st, err := g.SSO.OnLoginSuccess(ctx, authn)
	if err != nil {
		return nil, nil, err
	}

	tok, err := g.Issuer.Issue(ctx, IssueRequest{
		Client:    client,
		User:      &user,
		SessionID: st.Session.ID,
		Scopes:    scopes,
		Refresh:   true,
	})
	if err != nil {
		return nil, nil, err
	}
	tok.Params.Set("issued_token_type", TokenTypeAccessToken)
	return tok, authn, nil
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// AuthorizeService runs the authorization-request flow that ends with an
// authorization code.
type AuthorizeService struct {
	Clients store.Clients
	Login   *LoginService
	SSO     *SSOService
	Codes   *AuthorizationCodeService
}

// AuthorizeRequest carries the validated query or form of an authorization
// request.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        []string
	State        string

	// Either an existing session token, typically from the SSO cookie, or
	// credentials for an interactive login.
	SessionToken string
	Username     string
	Password     string
	OTP          string

	// Params holds the full request so extension parameters such as nonce
	// or logout_uri travel with the code.
	Params domain.Params
}

// AuthorizeResponse is everything the transport needs to redirect back to
// the client and to refresh the SSO cookie.
type AuthorizeResponse struct {
	Code         string
	RedirectURI  string
	State        string
	SessionToken string
	SessionID    string
}

// Authorize validates the client and redirect URI, authenticates the user
// by session token or credentials, records the login against the SSO
// session and issues a code bound to that session.
//
// Errors returned before the redirect URI is validated must not be sent to
// that URI; RedirectError tells the transport which case it is in.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	l := slogx.FromContext(ctx)

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return nil, ErrInvalidRequest
	}
	client, err := s.Clients.GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !client.Enabled {
		return nil, ErrInvalidClient
	}

	redirectURI, ok := client.ResolveRedirectURI(strings.TrimSpace(req.RedirectURI))
	if !ok {
		l.Info("authorize: redirect uri rejected", "client_id", client.ID, "redirect_uri", req.RedirectURI)
		return nil, ErrInvalidRequest
	}

	// From here on errors can go back to the client.
	fail := func(err error) (*AuthorizeResponse, error) {
		return nil, &RedirectError{Err: err, RedirectURI: redirectURI, State: req.State}
	}

	if !strings.EqualFold(strings.TrimSpace(req.ResponseType), "code") {
		return fail(ErrUnsupportedResponseType)
	}
	if !client.AllowAuthorizationCode {
		return fail(ErrUnauthorizedClient)
	}
	scopes, err := resolveScopes(req.Scope, client.Scopes, client.AllowsScopes)
	if err != nil {
		return fail(err)
	}

	user, sessionToken, err := s.authenticate(ctx, req)
	if err != nil {
		return fail(err)
	}

	params := req.Params.Clone()
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	authn := domain.NewAuthentication(params, &client, &user, sessionToken)

	st, err := s.SSO.OnLoginSuccess(ctx, authn)
	if err != nil {
		return fail(err)
	}
	ctx = WithSSOState(ctx, st)

	code, err := s.Codes.Create(ctx, authn, &st.Session)
	if err != nil {
		return fail(err)
	}

	l.Info("authorization code issued", "client_id", client.ID, "user_id", user.ID, "session_id", st.Session.ID)
	return &AuthorizeResponse{
		Code:         code.Code,
		RedirectURI:  redirectURI,
		State:        req.State,
		SessionToken: sessionToken,
		SessionID:    st.Session.ID,
	}, nil
}

// authenticate prefers a valid session token and falls back to
// credentials. A stale token with no credentials is login_required.
func (s *AuthorizeService) authenticate(ctx context.Context, req AuthorizeRequest) (domain.User, string, error) {
	if req.SessionToken != "" {
		user, _, err := s.Login.ResolveSessionToken(ctx, req.SessionToken)
		if err == nil {
			return user, req.SessionToken, nil
		}
		if Classify(err) == ErrServerError {
			return domain.User{}, "", err
		}
		slogx.FromContext(ctx).Debug("authorize: session token rejected", "error", err)
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return domain.User{}, "", ErrLoginRequired
	}

	user, err := s.Login.Authenticate(ctx, username, req.Password, req.OTP)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return domain.User{}, "", ErrAccessDenied
		}
		return domain.User{}, "", err
	}

	token, err := s.Login.IssueSessionToken(user)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// RedirectError is an authorization error that should be reported to the
// client by redirecting to RedirectURI with error and state parameters.
type RedirectError struct {
	Err         error
	RedirectURI string
	State       string
}

func (e *RedirectError) Error() string { return e.Err.Error() }
func (e *RedirectError) Unwrap() error { return e.Err }

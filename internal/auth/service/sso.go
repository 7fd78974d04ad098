package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/idx"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// SSOState is the outcome of a successful login: the session the login
// created or joined, and the login record itself.
type SSOState struct {
	Session domain.SSOSession
	Login   domain.SSOLogin
	Created bool
}

type ssoStateKey struct{}

// WithSSOState returns a context carrying st for handlers further down the
// request.
func WithSSOState(ctx context.Context, st *SSOState) context.Context {
	return context.WithValue(ctx, ssoStateKey{}, st)
}

// SSOStateFromContext returns the state stored by WithSSOState, or nil.
func SSOStateFromContext(ctx context.Context) *SSOState {
	st, _ := ctx.Value(ssoStateKey{}).(*SSOState)
	return st
}

// SSOService tracks one session per (user, session token) and the clients
// that joined it, so a logout can be fanned out to all of them.
type SSOService struct {
	Sessions store.SSOSessions
	Verifier jwtx.Verifier
	Now      func() time.Time
	NewID    func() string
	Metrics  metrics.Recorder
}

func (s *SSOService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SSOService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return idx.NewString()
}

// OnLoginSuccess records a login for authn. The first login with a given
// session token creates the session and is marked initial; later logins
// with the same token join it. Session ids are always freshly generated so
// a reused sid claim can never resurrect a stale session; the claim is kept
// as TokenSID.
func (s *SSOService) OnLoginSuccess(ctx context.Context, authn *domain.Authentication) (*SSOState, error) {
	if authn == nil || authn.User() == nil {
		return nil, ErrUserRequired
	}
	token := authn.SessionToken()
	if token == "" {
		return nil, ErrSessionTokenNeeded
	}

	claims, err := s.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	user := authn.User()
	if claims.Subject() != user.ID {
		return nil, fmt.Errorf("%w: session token belongs to another user", ErrInvalidGrant)
	}

	now := stamp(s.now())
	tokenHash := cryptox.FingerprintToken(token)
	l := slogx.FromContext(ctx)

	session, err := s.Sessions.LoadSession(ctx, user.Username, tokenHash)
	switch {
	case err == nil && session.IsExpired(now):
		if err := s.Sessions.RemoveSession(ctx, session.ID); err != nil {
			return nil, err
		}
		fallthrough
	case errors.Is(err, store.ErrNotFound):
		expiresAt, ok := claims.ExpiresAt()
		if !ok {
			expiresAt = now.Add(jwtx.DefaultSessionTTL)
		}
		session = domain.SSOSession{
			ID:        s.newID(),
			UserID:    user.ID,
			Username:  user.Username,
			TokenHash: tokenHash,
			TokenSID:  claims.SessionID(),
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}
		err = s.Sessions.SaveSession(ctx, session)
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a race with a concurrent login using the same token.
			if session, err = s.Sessions.LoadSession(ctx, user.Username, tokenHash); err != nil {
				return nil, err
			}
			return s.join(ctx, authn, session, false, now)
		}
		if err != nil {
			return nil, err
		}
		l.Info("sso session created", "session_id", session.ID, "user_id", user.ID)
		return s.join(ctx, authn, session, true, now)
	case err != nil:
		return nil, err
	default:
		return s.join(ctx, authn, session, false, now)
	}
}

func (s *SSOService) join(ctx context.Context, authn *domain.Authentication, session domain.SSOSession, initial bool, now time.Time) (*SSOState, error) {
	login := domain.SSOLogin{
		ID:        s.newID(),
		SessionID: session.ID,
		ClientID:  authn.ClientID(),
		LogoutURI: logoutURIFor(authn),
		LoginAt:   now,
		Initial:   initial,
	}
	if err := s.Sessions.SaveLogin(ctx, login); err != nil {
		return nil, err
	}
	metrics.OrNoop(s.Metrics).RecordSSOLogin(initial)
	return &SSOState{Session: session, Login: login, Created: initial}, nil
}

// logoutURIFor picks the request's logout_uri when the client accepts it,
// then the client's registered logout URI, then nothing.
func logoutURIFor(authn *domain.Authentication) string {
	c := authn.Client()
	if c == nil {
		return ""
	}
	if requested := authn.Param("logout_uri"); requested != "" && c.MatchLogoutURI(requested) {
		return requested
	}
	return c.LogoutURI
}

// ResolveLogoutURLs returns the distinct logout URIs of every client that
// joined the session of (username, token), sorted. It is empty when there
// is no such session. Notifying the clients is the caller's job.
func (s *SSOService) ResolveLogoutURLs(ctx context.Context, username, token string) ([]string, error) {
	session, err := s.Sessions.LoadSession(ctx, username, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}

	logins, err := s.Sessions.ListLogins(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(logins))
	for _, login := range logins {
		if login.LogoutURI != "" && !slices.Contains(urls, login.LogoutURI) {
			urls = append(urls, login.LogoutURI)
		}
	}
	slices.Sort(urls)
	return urls, nil
}

// EndSession removes the session of (username, token) and its logins.
// Ending a session that does not exist is not an error.
func (s *SSOService) EndSession(ctx context.Context, username, token string) error {
	session, err := s.Sessions.LoadSession(ctx, username, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.Sessions.RemoveSession(ctx, session.ID); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("sso session ended", "session_id", session.ID)
	return nil
}

// Logout resolves the fan-out list of the session and then ends it.
func (s *SSOService) Logout(ctx context.Context, username, token string) ([]string, error) {
	urls, err := s.ResolveLogoutURLs(ctx, username, token)
	if err != nil {
		return nil, err
	}
	if err := s.EndSession(ctx, username, token); err != nil {
		return nil, err
	}
	metrics.OrNoop(s.Metrics).RecordSSOLogout(len(urls))
	return urls, nil
}

// LogoutToken verifies a session token and logs out the session it keys.
// The username is taken from the token itself.
func (s *SSOService) LogoutToken(ctx context.Context, token string) ([]string, error) {
	if token == "" {
		return nil, ErrInvalidRequest
	}
	claims, err := s.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	username := claims.Username()
	if username == "" {
		return nil, ErrInvalidToken
	}
	return s.Logout(ctx, username, token)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/idx"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// LoginService checks user credentials and mints the signed session tokens
// that SSO sessions are keyed by.
type LoginService struct {
	Users      store.Users
	Signer     jwtx.Signer
	Verifier   jwtx.Verifier
	SessionTTL time.Duration
	Now        func() time.Time
}

func (s *LoginService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Authenticate resolves username and checks password and, for users with
// TOTP enrolled, the one-time code. Unknown users, disabled users and bad
// secrets all fail with ErrInvalidCredentials.
func (s *LoginService) Authenticate(ctx context.Context, username, password, code string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if u.Disabled {
		l.Info("login attempt for disabled user", "user_id", u.ID)
		return domain.User{}, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	if u.HasTOTP() {
		ok, err := totp.ValidateCustom(code, u.TOTPSecret, s.now(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !ok {
			l.Info("TOTP verification failed", "user_id", u.ID)
			return domain.User{}, ErrInvalidCredentials
		}
	}
	return u, nil
}

// IssueSessionToken signs a session token for u. Its sid claim is fresh
// for every login.
func (s *LoginService) IssueSessionToken(u domain.User) (string, error) {
	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}
	token, err := s.Signer.Sign(jwtx.Claims{
		jwtx.ClaimSubject:   u.ID,
		jwtx.ClaimUsername:  u.Username,
		jwtx.ClaimName:      u.PreferredName,
		jwtx.ClaimSessionID: idx.NewString(),
	}, ttl)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// ResolveSessionToken verifies a session token and loads its user.
func (s *LoginService) ResolveSessionToken(ctx context.Context, token string) (domain.User, jwtx.Claims, error) {
	if token == "" {
		return domain.User{}, nil, ErrSessionTokenNeeded
	}
	claims, err := s.Verifier.Verify(ctx, token)
	if err != nil {
		return domain.User{}, nil, err
	}
	u, err := s.Users.GetUserByID(ctx, claims.Subject())
	if err != nil {
		return domain.User{}, nil, err
	}
	if u.Disabled || u.Username != claims.Username() {
		return domain.User{}, nil, ErrInvalidCredentials
	}
	return u, claims, nil
}

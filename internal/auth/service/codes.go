package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

// DefaultCodeTTL is how long an authorization code may wait for redemption.
const DefaultCodeTTL = 60 * time.Second

// Request parameters that are already modelled on the code itself and are
// not copied into its extension params.
var reservedCodeParams = map[string]struct{}{
	"response_type": {},
	"client_id":     {},
	"client_secret": {},
	"redirect_uri":  {},
	"scope":         {},
	"state":         {},
	"username":      {},
	"password":      {},
	"otp":           {},
	"session_token": {},
}

// AuthorizationCodeService issues and redeems one-time authorization codes.
type AuthorizationCodeService struct {
	Codes    store.AuthorizationCodes
	Generate cryptox.CredentialGenerator
	TTL      time.Duration
	Now      func() time.Time
	Metrics  metrics.Recorder
}

func (s *AuthorizationCodeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthorizationCodeService) generate() (string, error) {
	if s.Generate != nil {
		return s.Generate()
	}
	return cryptox.GenerateCredential()
}

// Create issues a code for the user of authn, bound to its client and, when
// session is non-nil, to that SSO session.
func (s *AuthorizationCodeService) Create(ctx context.Context, authn *domain.Authentication, session *domain.SSOSession) (*domain.AuthorizationCode, error) {
	if authn == nil || authn.User() == nil {
		return nil, ErrUserRequired
	}

	value, err := s.generate()
	if err != nil {
		return nil, err
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}

	code := &domain.AuthorizationCode{
		Code:        value,
		ClientID:    authn.ClientID(),
		UserID:      authn.User().ID,
		RedirectURI: authn.Param("redirect_uri"),
		Scopes:      splitScope(authn.Param("scope")),
		ExpiresIn:   ttl,
		CreatedAt:   stamp(s.now()),
	}
	if session != nil {
		code.SessionID = session.ID
	}
	for _, p := range authn.Params() {
		if _, reserved := reservedCodeParams[p.Key]; !reserved {
			code.Params.Set(p.Key, p.Value)
		}
	}

	if err := s.Codes.Save(ctx, *code); err != nil {
		return nil, err
	}
	metrics.OrNoop(s.Metrics).RecordCodeIssued()
	return code, nil
}

// Consume removes the code and returns it in one step. ErrCodeNotFound
// means the code was never issued, was already redeemed or was swept.
// Expired codes are still returned, and thereby removed; the caller
// rejects them.
func (s *AuthorizationCodeService) Consume(ctx context.Context, value string) (*domain.AuthorizationCode, error) {
	if value == "" {
		return nil, ErrCodeNotFound
	}
	code, err := s.Codes.RemoveAndLoad(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.OrNoop(s.Metrics).RecordCodeConsumed("not_found")
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

// Remove deletes the code if it still exists.
func (s *AuthorizationCodeService) Remove(ctx context.Context, value string) error {
	return s.Codes.Remove(ctx, value)
}

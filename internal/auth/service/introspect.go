package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// UserInfo is a live user token together with its resolved user.
type UserInfo struct {
	Token *domain.AccessToken
	User  domain.User
}

// IntrospectionService validates presented access tokens.
type IntrospectionService struct {
	Tokens  store.AccessTokens
	Users   store.Users
	Now     func() time.Time
	Metrics metrics.Recorder
}

// TokenInfo returns the record for a live token. Missing and unknown
// tokens are invalid_token; expired tokens are too, and are evicted.
func (s *IntrospectionService) TokenInfo(ctx context.Context, token string) (*domain.AccessToken, error) {
	tok, err := s.load(ctx, token)
	if err != nil {
		metrics.OrNoop(s.Metrics).RecordIntrospection("tokeninfo", Classify(err).Error())
		return nil, err
	}
	metrics.OrNoop(s.Metrics).RecordIntrospection("tokeninfo", metrics.ResultSuccess)
	return tok, nil
}

// UserInfo is TokenInfo restricted to tokens with an active user.
func (s *IntrospectionService) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	info, err := s.userInfo(ctx, token)
	if err != nil {
		metrics.OrNoop(s.Metrics).RecordIntrospection("userinfo", Classify(err).Error())
		return nil, err
	}
	metrics.OrNoop(s.Metrics).RecordIntrospection("userinfo", metrics.ResultSuccess)
	return info, nil
}

func (s *IntrospectionService) userInfo(ctx context.Context, token string) (*UserInfo, error) {
	tok, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if tok.IsClientOnly() {
		return nil, ErrInvalidToken
	}

	u, err := s.Users.GetUserByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if u.Disabled {
		slogx.FromContext(ctx).Info("userinfo for disabled user", "user_id", u.ID)
		return nil, ErrInvalidToken
	}
	return &UserInfo{Token: tok, User: u}, nil
}

func (s *IntrospectionService) load(ctx context.Context, token string) (*domain.AccessToken, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	tok, err := s.Tokens.Load(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if tok.IsExpired(now) {
		if err := s.Tokens.Evict(ctx, token); err != nil {
			slogx.FromContext(ctx).Warn("failed to evict expired token", "error", err)
		}
		return nil, ErrInvalidToken
	}
	return &tok, nil
}

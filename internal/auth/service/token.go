package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// Grant types served by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"
)

// TokenRequest is a parsed token endpoint request.
type TokenRequest struct {
	GrantType string
	Client    ClientCredentials
	Params    domain.Params
}

// Scopes returns the space-delimited scope parameter as a list.
func (r *TokenRequest) Scopes() []string { return splitScope(r.Params.Value("scope")) }

// GrantHandler authenticates the input of a single grant type and mints a
// token for it. Handlers return the authentication they resolved so token
// post-processors can inspect the client and user.
type GrantHandler interface {
	GrantType() string
	Grant(ctx context.Context, req *TokenRequest) (*domain.AccessToken, *domain.Authentication, error)
}

// GrantRegistry maps grant type strings to handlers. It is built at startup
// and read-only afterwards.
type GrantRegistry struct {
	handlers map[string]GrantHandler
}

func NewGrantRegistry(handlers ...GrantHandler) *GrantRegistry {
	r := &GrantRegistry{handlers: make(map[string]GrantHandler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h, replacing any handler for the same grant type.
func (r *GrantRegistry) Register(h GrantHandler) {
	r.handlers[h.GrantType()] = h
}

func (r *GrantRegistry) Lookup(grantType string) (GrantHandler, bool) {
	h, ok := r.handlers[grantType]
	return h, ok
}

// Types lists the registered grant types, sorted.
func (r *GrantRegistry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// TokenPostProcessor runs after a grant succeeds and before the token is
// returned. Returning an error aborts the request; processors may also add
// params to the token.
type TokenPostProcessor interface {
	Process(ctx context.Context, tok *domain.AccessToken, authn *domain.Authentication) error
}

// TokenPostProcessorFunc adapts a function to TokenPostProcessor.
type TokenPostProcessorFunc func(ctx context.Context, tok *domain.AccessToken, authn *domain.Authentication) error

func (f TokenPostProcessorFunc) Process(ctx context.Context, tok *domain.AccessToken, authn *domain.Authentication) error {
	return f(ctx, tok, authn)
}

// TokenService dispatches token requests to grant handlers.
type TokenService struct {
	Grants         *GrantRegistry
	PostProcessors []TokenPostProcessor

	// Signer produces the JWT form of token responses.
	Signer  jwtx.Signer
	Now     func() time.Time
	Metrics metrics.Recorder
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Grant resolves the handler for req.GrantType, runs it and then every
// post-processor in order.
func (s *TokenService) Grant(ctx context.Context, req *TokenRequest) (*domain.AccessToken, error) {
	start := time.Now()
	rec := metrics.OrNoop(s.Metrics)

	grantType := strings.TrimSpace(req.GrantType)
	if grantType == "" {
		rec.RecordGrantFailure("", ErrInvalidRequest.Error())
		return nil, ErrInvalidRequest
	}
	h, ok := s.Grants.Lookup(grantType)
	if !ok {
		rec.RecordGrantFailure("unknown", ErrUnsupportedGrantType.Error())
		return nil, ErrUnsupportedGrantType
	}

	ctx = slogx.With(ctx, "grant_type", grantType)

	tok, authn, err := h.Grant(ctx, req)
	if err == nil {
		for _, pp := range s.PostProcessors {
			if err = pp.Process(ctx, tok, authn); err != nil {
				break
			}
		}
	}
	if err != nil {
		rec.RecordGrantFailure(grantType, Classify(err).Error())
		return nil, err
	}

	rec.RecordTokenIssued(grantType, tok.HasRefresh(), time.Since(start))
	slogx.FromContext(ctx).Info("token issued", "client_id", tok.ClientID, "user_id", tok.UserID)
	return tok, nil
}

// ResponseBody builds the RFC 6749 success body. Token params are flattened
// into it without overriding the standard members.
func (s *TokenService) ResponseBody(tok *domain.AccessToken) map[string]any {
	body := make(map[string]any, 5+len(tok.Params))
	for _, p := range tok.Params {
		body[p.Key] = p.Value
	}
	body["access_token"] = tok.Token
	body["token_type"] = domain.TokenTypeBearer
	body["expires_in"] = tok.ExpiresInAt(s.now())
	if tok.RefreshToken != "" {
		body["refresh_token"] = tok.RefreshToken
	}
	if len(tok.Scopes) > 0 {
		body["scope"] = strings.Join(tok.Scopes, " ")
	}
	return body
}

// SignedResponse signs ResponseBody as a JWT that expires with the token.
func (s *TokenService) SignedResponse(tok *domain.AccessToken) (string, error) {
	if s.Signer == nil {
		return "", ErrServerError
	}
	return s.Signer.Sign(jwtx.Claims(s.ResponseBody(tok)), tok.ExpiresIn)
}

// TokenIssuer mints and persists access tokens on behalf of grant handlers.
type TokenIssuer struct {
	Tokens     store.AccessTokens
	Generate   cryptox.CredentialGenerator
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// IssueRequest describes the token to mint.
type IssueRequest struct {
	Client    *domain.Client
	User      *domain.User
	SessionID string
	Scopes    []string
	Params    domain.Params

	// Refresh asks for a refresh token. It is only honoured for clients
	// with AllowRefreshToken.
	Refresh bool
}

func (i *TokenIssuer) generate() (string, error) {
	if i.Generate != nil {
		return i.Generate()
	}
	return cryptox.GenerateCredential()
}

// Issue mints a token with the client's lifetimes, falling back to the
// issuer defaults, and saves it.
func (i *TokenIssuer) Issue(ctx context.Context, req IssueRequest) (*domain.AccessToken, error) {
	now := time.Now()
	if i.Now != nil {
		now = i.Now()
	}
	now = stamp(now)

	accessTTL, refreshTTL := i.AccessTTL, i.RefreshTTL
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}

	tok := &domain.AccessToken{
		SessionID: req.SessionID,
		Scopes:    req.Scopes,
		Params:    req.Params.Clone(),
		CreatedAt: now,
	}
	if req.Client != nil {
		tok.ClientID = req.Client.ID
		if req.Client.AccessTokenTTL > 0 {
			accessTTL = req.Client.AccessTokenTTL
		}
		if req.Client.RefreshTokenTTL > 0 {
			refreshTTL = req.Client.RefreshTokenTTL
		}
	}
	if req.User != nil {
		tok.UserID = req.User.ID
	}
	tok.ExpiresIn = accessTTL

	var err error
	if tok.Token, err = i.generate(); err != nil {
		return nil, err
	}
	if req.Refresh && req.Client != nil && req.Client.AllowRefreshToken {
		if tok.RefreshToken, err = i.generate(); err != nil {
			return nil, err
		}
		tok.RefreshExpiresIn = refreshTTL
	}

	if err := i.Tokens.Save(ctx, *tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Revoke removes a token by its access token value, or failing that by its
// refresh token value. Unknown values are ignored.
func (i *TokenIssuer) Revoke(ctx context.Context, value string) error {
	if _, err := i.Tokens.Load(ctx, value); err == nil {
		return i.Tokens.Remove(ctx, value)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := i.Tokens.RemoveAndLoadByRefresh(ctx, value); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// IDTokenProcessor adds a signed id_token param when the granted scope
// includes openid and the token has a user.
type IDTokenProcessor struct {
	Signer jwtx.Signer
	TTL    time.Duration
}

func (p *IDTokenProcessor) Process(_ context.Context, tok *domain.AccessToken, authn *domain.Authentication) error {
	if authn == nil || authn.User() == nil || !slices.Contains(tok.Scopes, "openid") {
		return nil
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = tok.ExpiresIn
	}

	u := authn.User()
	claims := jwtx.Claims{
		jwtx.ClaimSubject:  u.ID,
		jwtx.ClaimUsername: u.Username,
		jwtx.ClaimName:     u.PreferredName,
	}
	if tok.ClientID != "" {
		claims[jwtx.ClaimAudience] = tok.ClientID
	}
	if tok.SessionID != "" {
		claims[jwtx.ClaimSessionID] = tok.SessionID
	}
	if nonce := tok.Params.Value("nonce"); nonce != "" {
		claims["nonce"] = nonce
	}

	idToken, err := p.Signer.Sign(claims, ttl)
	if err != nil {
		return err
	}
	tok.Params.Set("id_token", idToken)
	return nil
}

// splitScope parses a space-delimited scope string, dropping duplicates.
func splitScope(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

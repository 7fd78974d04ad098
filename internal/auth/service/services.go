package service

import (
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// Options configures the service graph built by New.
type Options struct {
	Store    store.Store
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Metrics  metrics.Recorder

	CodeTTL    time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration

	// Overrides for tests.
	Now      func() time.Time
	NewID    func() string
	Generate cryptox.CredentialGenerator
}

// Services is the wired set of services the transport depends on.
type Services struct {
	Login      *LoginService
	Clients    *ClientAuthenticator
	Codes      *AuthorizationCodeService
	SSO        *SSOService
	Issuer     *TokenIssuer
	Token      *TokenService
	Authorize  *AuthorizeService
	Introspect *IntrospectionService
}

// New wires every service over one store, signer and verifier, with all
// five grant types registered and id_token issuance enabled.
func New(opts Options) *Services {
	s := opts.Store
	rec := metrics.OrNoop(opts.Metrics)

	login := &LoginService{
		Users:      s.Users(),
		Signer:     opts.Signer,
		Verifier:   opts.Verifier,
		SessionTTL: opts.SessionTTL,
		Now:        opts.Now,
	}
	clients := &ClientAuthenticator{Clients: s.Clients()}
	codes := &AuthorizationCodeService{
		Codes:    s.AuthorizationCodes(),
		Generate: opts.Generate,
		TTL:      opts.CodeTTL,
		Now:      opts.Now,
		Metrics:  rec,
	}
	sso := &SSOService{
		Sessions: s.SSOSessions(),
		Verifier: opts.Verifier,
		Now:      opts.Now,
		NewID:    opts.NewID,
		Metrics:  rec,
	}
	issuer := &TokenIssuer{
		Tokens:     s.AccessTokens(),
		Generate:   opts.Generate,
		AccessTTL:  opts.AccessTTL,
		RefreshTTL: opts.RefreshTTL,
		Now:        opts.Now,
	}

	grants := NewGrantRegistry(
		&AuthorizationCodeGrant{Clients: clients, Codes: codes, Users: s.Users(), Issuer: issuer, Now: opts.Now, Metrics: rec},
		&PasswordGrant{Clients: clients, Login: login, SSO: sso, Issuer: issuer},
		&ClientCredentialsGrant{Clients: clients, Issuer: issuer},
		&RefreshTokenGrant{Clients: clients, Users: s.Users(), Issuer: issuer, Now: opts.Now},
		&TokenExchangeGrant{Clients: clients, Login: login, SSO: sso, Issuer: issuer},
	)

	return &Services{
		Login:   login,
		Clients: clients,
		Codes:   codes,
		SSO:     sso,
		Issuer:  issuer,
		Token: &TokenService{
			Grants:         grants,
			PostProcessors: []TokenPostProcessor{&IDTokenProcessor{Signer: opts.Signer}},
			Signer:         opts.Signer,
			Now:            opts.Now,
			Metrics:        rec,
		},
		Authorize: &AuthorizeService{Clients: s.Clients(), Login: login, SSO: sso, Codes: codes},
		Introspect: &IntrospectionService{
			Tokens:  s.AccessTokens(),
			Users:   s.Users(),
			Now:     opts.Now,
			Metrics: rec,
		},
	}
}

// stamp truncates t to the millisecond precision the stores keep, so an
// expiry check gives the same answer before and after a save and load.
func stamp(t time.Time) time.Time { return t.Truncate(time.Millisecond) }

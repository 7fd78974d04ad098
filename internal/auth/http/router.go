package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"

	_ "github.com/aussiebroadwan/authz/api/authz" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	services     *service.Services
	store        store.Store
	signer       jwtx.Signer
	keys         KeyPublisher
	metrics      *metrics.Metrics
	cookie       SessionCookie
	buildVersion string
	startTime    time.Time
	signerReady  func() bool
	logger       *slog.Logger
}

// RouterOptions are the dependencies NewRouter wires into the handlers.
type RouterOptions struct {
	Services     *service.Services
	Store        store.Store
	Signer       jwtx.Signer
	Keys         KeyPublisher
	Metrics      *metrics.Metrics
	Cookie       SessionCookie
	BuildVersion string
	Logger       *slog.Logger

	// SignerReady reports whether a signing key is loaded. Nil means always.
	SignerReady func() bool
}

func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slogx.Discard()
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		services:     opts.Services,
		store:        opts.Store,
		signer:       opts.Signer,
		keys:         opts.Keys,
		metrics:      opts.Metrics,
		cookie:       opts.Cookie,
		buildVersion: opts.BuildVersion,
		signerReady:  opts.SignerReady,
		startTime:    time.Now(),
		logger:       logger,
	}

	// The metrics middleware reads the matched pattern off the request, so it
	// has to sit directly in front of the mux.
	var rec metrics.Recorder
	if opts.Metrics != nil {
		rec = opts.Metrics
	}
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover,
		metrics.HTTPMiddleware(metrics.OrNoop(rec)),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			AussieBroadWAN Authorization Server API
//	@version		0.1.0
//	@description	OAuth2 authorization server with opaque access and refresh tokens, authorization codes bound to
//	@description	SSO sessions, and single logout across every client that joined a session.
//	@description
//	@description				Session tokens, id_tokens and signed responses are JWTs verifiable with the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/authz
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Opaque access token. Format: "Bearer {token}".
//
//	@securityDefinitions.basic	ClientAuth
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	svc := r.services

	authorizeHandler := &AuthorizeHandler{
		AuthorizeService: svc.Authorize,
		Cookie:           r.cookie,
	}

	// GET /authorize only continues sessions; POST carries passwords and is
	// limited per IP and username.
	r.Mux.Handle("GET /oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandleGet),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("POST /oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.LoginLimit, "username"),
		),
	)

	tokenHandler := &TokenHandler{TokenService: svc.Token}
	r.Mux.Handle("POST /oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByClient(httpx.TokenLimit),
		),
	)

	tokenInfoHandler := &TokenInfoHandler{
		Introspection: svc.Introspect,
		Processors:    []TokenInfoProcessor{&JWTTokenInfo{Signer: r.signer}},
	}
	r.Mux.Handle("GET /oauth2/tokeninfo",
		httpx.Chain(tokenInfoHandler, httpx.RateLimitByIP(httpx.PublicLimit)),
	)
	r.Mux.Handle("POST /oauth2/tokeninfo",
		httpx.Chain(tokenInfoHandler, httpx.RateLimitByIP(httpx.PublicLimit)),
	)

	userInfoHandler := &UserInfoHandler{
		Introspection: svc.Introspect,
		Responders:    []UserInfoResponder{&JWTUserInfo{Signer: r.signer}, JSONUserInfo{}},
	}
	r.Mux.Handle("GET /oauth2/userinfo",
		httpx.Chain(userInfoHandler, httpx.RateLimitByIP(httpx.PublicLimit)),
	)
	r.Mux.Handle("POST /oauth2/userinfo",
		httpx.Chain(userInfoHandler, httpx.RateLimitByIP(httpx.PublicLimit)),
	)

	logoutHandler := &LogoutHandler{
		SSO:     svc.SSO,
		Clients: r.store.Clients(),
		Cookie:  r.cookie,
	}
	r.Mux.Handle("POST /oauth2/logout",
		httpx.Chain(logoutHandler, httpx.RateLimitByIP(httpx.TokenLimit)),
	)

	revokeHandler := &RevokeHandler{Clients: svc.Clients, Issuer: svc.Issuer}
	r.Mux.Handle("POST /oauth2/revoke",
		httpx.Chain(revokeHandler, httpx.RateLimitByClient(httpx.TokenLimit)),
	)

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys), httpx.RateLimitByIP(httpx.PublicLimit)),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signerReady))

	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}

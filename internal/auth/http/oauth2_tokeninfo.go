package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// TokenInfoProcessor may write the response for a live token itself. It
// returns true when it did, which ends the chain.
type TokenInfoProcessor interface {
	ProcessTokenInfo(w http.ResponseWriter, r *http.Request, info authsdk.TokenInfoResponse, tok *domain.AccessToken) bool
}

// JWTTokenInfo answers format=jwt requests with the token info signed as a
// JWT that expires with the token.
type JWTTokenInfo struct {
	Signer jwtx.Signer
}

func (p *JWTTokenInfo) ProcessTokenInfo(w http.ResponseWriter, r *http.Request, info authsdk.TokenInfoResponse, tok *domain.AccessToken) bool {
	if r.Form.Get("format") != ResponseTypeJWT || p.Signer == nil {
		return false
	}

	claims := jwtx.Claims{
		"expires_in": info.ExpiresIn,
	}
	if info.ClientID != "" {
		claims[jwtx.ClaimClientID] = info.ClientID
	}
	if info.UserID != "" {
		claims[jwtx.ClaimSubject] = info.UserID
	}
	if info.Scope != "" {
		claims[jwtx.ClaimScope] = info.Scope
	}
	for k, v := range info.Params {
		if _, taken := claims[k]; !taken {
			claims[k] = v
		}
	}

	signed, err := p.Signer.Sign(claims, time.Duration(info.ExpiresIn)*time.Second)
	if err != nil {
		writeError(w, r, err)
		return true
	}
	httpx.WriteJWT(w, http.StatusOK, signed)
	return true
}

// TokenInfoHandler serves GET and POST /oauth2/tokeninfo.
type TokenInfoHandler struct {
	Introspection *service.IntrospectionService
	Processors    []TokenInfoProcessor
	Now           func() time.Time
}

// ServeHTTP godoc
//
//	@Summary		Token information
//	@Description	Describes a live access token. Unknown and expired tokens are invalid_token; expired tokens are evicted.
//	@Description	With format=jwt the description is returned as a signed JWT.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Produce		application/jwt
//	@Param			access_token	query		string						false	"Token to describe; a Bearer header also works"
//	@Param			format			query		string						false	"Set to jwt for a signed response"	Enums(jwt)
//	@Success		200				{object}	authsdk.TokenInfoResponse	"client_id, user_id, scope, expires_in"
//	@Failure		400				{object}	authsdk.OAuth2Error			"error, error_description"
//	@Failure		401				{object}	authsdk.OAuth2Error			"error, error_description"
//	@Router			/oauth2/tokeninfo [get]
//	@Router			/oauth2/tokeninfo [post]
func (h *TokenInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && !isFormRequest(r) {
		errInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		errInvalidFormBody.WriteError(w)
		return
	}

	token, ok := httpx.BearerToken(r)
	if !ok {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	tok, err := h.Introspection.TokenInfo(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	info := h.describe(tok)
	for _, p := range h.Processors {
		if p.ProcessTokenInfo(w, r, info, tok) {
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, info)
}

func (h *TokenInfoHandler) describe(tok *domain.AccessToken) authsdk.TokenInfoResponse {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	info := authsdk.TokenInfoResponse{
		ClientID:  tok.ClientID,
		UserID:    tok.UserID,
		Scope:     strings.Join(tok.Scopes, " "),
		ExpiresIn: tok.ExpiresInAt(now),
		IssuedAt:  tok.CreatedAt.Unix(),
	}
	if len(tok.Params) > 0 {
		info.Params = tok.Params.Map()
	}
	return info
}

package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// UserInfoResponder renders a userinfo result. The first responder in the
// handler's list that accepts the request writes the response.
type UserInfoResponder interface {
	Accepts(r *http.Request) bool
	Respond(w http.ResponseWriter, r *http.Request, body authsdk.UserInfoResponse, info *service.UserInfo)
}

// JWTUserInfo answers requests with Accept: application/jwt.
type JWTUserInfo struct {
	Signer jwtx.Signer
}

func (j *JWTUserInfo) Accepts(r *http.Request) bool {
	return j.Signer != nil && httpx.Accepts(r, httpx.ContentTypeJWT)
}

func (j *JWTUserInfo) Respond(w http.ResponseWriter, r *http.Request, body authsdk.UserInfoResponse, info *service.UserInfo) {
	claims := jwtx.Claims{
		jwtx.ClaimSubject: body.Sub,
		"login_name":      body.LoginName,
	}
	if body.Name != "" {
		claims[jwtx.ClaimName] = body.Name
	}
	if body.Scope != "" {
		claims[jwtx.ClaimScope] = body.Scope
	}
	if info.Token.ClientID != "" {
		claims[jwtx.ClaimAudience] = info.Token.ClientID
	}

	signed, err := j.Signer.Sign(claims, info.Token.ExpiresIn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJWT(w, http.StatusOK, signed)
}

// JSONUserInfo accepts every request.
type JSONUserInfo struct{}

func (JSONUserInfo) Accepts(*http.Request) bool { return true }

func (JSONUserInfo) Respond(w http.ResponseWriter, _ *http.Request, body authsdk.UserInfoResponse, _ *service.UserInfo) {
	httpx.WriteJSON(w, http.StatusOK, body)
}

// UserInfoHandler serves GET and POST /oauth2/userinfo.
type UserInfoHandler struct {
	Introspection *service.IntrospectionService
	Responders    []UserInfoResponder
}

// ServeHTTP godoc
//
//	@Summary		Get user information
//	@Description	Returns the user behind an access token. Client-only tokens are rejected with invalid_token.
//	@Description	Send Accept: application/jwt for a signed response.
//	@Tags			OAuth2
//	@Security		BearerAuth
//	@Produce		json
//	@Produce		application/jwt
//	@Param			access_token	query		string						false	"Token, when no Bearer header is sent"
//	@Success		200				{object}	authsdk.UserInfoResponse	"sub, name, login_name"
//	@Failure		401				{object}	authsdk.OAuth2Error			"Invalid or missing access token"
//	@Failure		500				{object}	authsdk.OAuth2Error			"Internal server error"
//	@Router			/oauth2/userinfo [get]
//	@Router			/oauth2/userinfo [post]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	info, err := h.Introspection.UserInfo(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := authsdk.UserInfoResponse{
		Sub:       info.User.ID,
		Name:      info.User.PreferredName,
		LoginName: info.User.Username,
		Scope:     strings.Join(info.Token.Scopes, " "),
	}
	for _, resp := range h.Responders {
		if resp.Accepts(r) {
			resp.Respond(w, r, body, info)
			return
		}
	}
	JSONUserInfo{}.Respond(w, r, body, info)
}

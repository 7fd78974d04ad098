package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// RevokeHandler serves POST /oauth2/revoke following RFC 7009. Both access
// and refresh token values are accepted. Unknown tokens still return 200 so
// the endpoint cannot be used to probe for valid ones.
type RevokeHandler struct {
	Clients *service.ClientAuthenticator
	Issuer  *service.TokenIssuer
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Revocation Endpoint
//	@Description	Revokes an access token or refresh token (RFC 7009). The client must authenticate.
//	@Description	The endpoint is idempotent and returns 200 OK even for unknown tokens.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			token			formData	string	true	"The token to revoke"
//	@Param			token_type_hint	formData	string	false	"Hint about token type"	Enums(access_token, refresh_token)
//	@Success		200				"Token revoked successfully (or was already invalid)"
//	@Failure		400				{object}	authsdk.OAuth2Error	"error, error_description"
//	@Failure		401				{object}	authsdk.OAuth2Error	"error, error_description"
//	@Header			200				{string}	Cache-Control		"no-store"
//	@Header			200				{string}	Pragma				"no-cache"
//	@Router			/oauth2/revoke [post]
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !isFormRequest(r) {
		errInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		errInvalidFormBody.WriteError(w)
		return
	}

	creds, err := clientCredentials(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Clients.Authenticate(ctx, creds, true); err != nil {
		writeError(w, r, err)
		return
	}

	token := strings.TrimSpace(r.PostForm.Get("token"))
	if token == "" {
		authsdk.ErrInvalidRequest.WithDescription("token is required").WriteError(w)
		return
	}

	if err := h.Issuer.Revoke(ctx, token); err != nil {
		slogx.FromContext(ctx).Warn("revoke failed", "client_id", creds.ID, "error", err)
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

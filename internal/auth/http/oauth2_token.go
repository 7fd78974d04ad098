package http

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// ResponseTypeJWT asks the token and tokeninfo endpoints for a signed JWT
// body instead of JSON.
const ResponseTypeJWT = "jwt"

// TokenHandler serves POST /oauth2/token. It accepts
// application/x-www-form-urlencoded per RFC 6749 and dispatches on
// grant_type through the token service.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues access tokens for the authorization_code, password, client_credentials, refresh_token and token-exchange grants.
//	@Description	Client credentials go in the Basic header or as client_id/client_secret form fields, never both.
//	@Description	Grant parameters may also be sent in the query string; body values take precedence.
//	@Description	With response_type=jwt the response body is the signed token response served as application/jwt.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Produce		application/jwt
//	@Param			grant_type			formData	string					true	"Grant type"	Enums(authorization_code, password, client_credentials, refresh_token, urn:ietf:params:oauth:grant-type:token-exchange)
//	@Param			code				formData	string					false	"Authorization code (authorization_code)"
//	@Param			redirect_uri		formData	string					false	"Redirect URI the code was issued for (authorization_code)"
//	@Param			username			formData	string					false	"Login name (password)"
//	@Param			password			formData	string					false	"Password (password)"
//	@Param			otp					formData	string					false	"TOTP code for enrolled users (password)"
//	@Param			refresh_token		formData	string					false	"Refresh token (refresh_token)"
//	@Param			subject_token		formData	string					false	"Session token (token-exchange)"
//	@Param			subject_token_type	formData	string					false	"Must be urn:ietf:params:oauth:token-type:jwt when present"
//	@Param			client_id			formData	string					false	"Client identifier when not using Basic auth"
//	@Param			client_secret		formData	string					false	"Client secret when not using Basic auth"
//	@Param			scope				formData	string					false	"Space-delimited list of scopes"
//	@Param			response_type		formData	string					false	"Set to jwt for a signed response"	Enums(jwt)
//	@Success		200					{object}	authsdk.TokenResponse	"access_token, token_type, expires_in, refresh_token, scope"
//	@Failure		400					{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		401					{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		500					{object}	authsdk.OAuth2Error		"error, error_description"
//	@Header			200					{string}	Cache-Control			"no-store"
//	@Header			200					{string}	Pragma					"no-cache"
//	@Router			/oauth2/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
	if creds.ID != "" {
		ctx = slogx.With(ctx, "client_id", creds.ID)
		r = r.WithContext(ctx)
	}

	// Grant parameters may come from the query, with the body taking
	// precedence. Client credentials are only read from the body or the
	// Authorization header.
	tok, err := h.TokenService.Grant(ctx, &service.TokenRequest{
		GrantType: r.Form.Get("grant_type"),
		Client:    creds,
		Params:    formToParams(r.Form, "grant_type", "client_id", "client_secret", "response_type"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.Form.Get("response_type") == ResponseTypeJWT {
		signed, err := h.TokenService.SignedResponse(tok)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJWT(w, http.StatusOK, signed)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.TokenService.ResponseBody(tok))
}

// clientCredentials reads the client from HTTP Basic auth or from the
// client_id and client_secret form fields. Supplying a secret both ways is
// invalid_request. Basic credentials are form-encoded per RFC 6749 2.3.1.
func clientCredentials(r *http.Request) (service.ClientCredentials, error) {
	formID := strings.TrimSpace(r.PostForm.Get("client_id"))
	formSecret := r.PostForm.Get("client_secret")

	user, pass, ok := r.BasicAuth()
	if !ok {
		return service.ClientCredentials{ID: formID, Secret: formSecret}, nil
	}
	if formSecret != "" {
		return service.ClientCredentials{}, service.ErrInvalidRequest
	}

	id, err := url.QueryUnescape(user)
	if err != nil {
		return service.ClientCredentials{}, service.ErrInvalidClient
	}
	secret, err := url.QueryUnescape(pass)
	if err != nil {
		return service.ClientCredentials{}, service.ErrInvalidClient
	}
	if formID != "" && formID != id {
		return service.ClientCredentials{}, service.ErrInvalidRequest
	}
	return service.ClientCredentials{ID: id, Secret: secret}, nil
}

// formToParams copies the first value of every field not in skip. Keys are
// sorted so the result does not depend on map order.
func formToParams(form url.Values, skip ...string) domain.Params {
	keys := make([]string, 0, len(form))
	for k := range form {
		if !slices.Contains(skip, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var params domain.Params
	for _, k := range keys {
		params.Set(k, form.Get(k))
	}
	return params
}

func isFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

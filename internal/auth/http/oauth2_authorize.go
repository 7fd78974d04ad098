package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// AuthorizeHandler serves the authorization endpoint of the code flow.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	Cookie           SessionCookie
}

// HandleGet continues an existing SSO session.
//
//	@Summary		OAuth2 authorization endpoint (GET)
//	@Description	Issues an authorization code for the session in the authz_session cookie.
//	@Description	Without a valid session the user agent is sent back with error=login_required.
//	@Description	Errors about the client or redirect_uri are never redirected; they are returned as JSON.
//	@Tags			OAuth2
//	@Produce		json
//	@Param			response_type	query		string				true	"Must be 'code'"	default(code)
//	@Param			client_id		query		string				true	"OAuth2 client identifier"
//	@Param			redirect_uri	query		string				false	"Callback URI; defaults to the registered one"
//	@Param			scope			query		string				false	"Space-delimited list of scopes"
//	@Param			state			query		string				false	"Opaque value echoed back on the redirect"
//	@Param			logout_uri		query		string				false	"Logout URI for this login; must match the client"
//	@Success		302				{string}	string				"Redirect to redirect_uri with code and state"
//	@Failure		400				{object}	authsdk.OAuth2Error	"Invalid client or redirect_uri"
//	@Failure		401				{object}	authsdk.OAuth2Error	"Unknown or disabled client"
//	@Router			/oauth2/authorize [get]
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := buildAuthorizeRequest(query)
	req.SessionToken = h.Cookie.Read(r)
	h.authorize(w, r, req)
}

// HandlePost logs in with credentials, or continues a session.
//
//	@Summary		OAuth2 authorization endpoint (POST)
//	@Description	Authenticates with username and password (and otp when the user has TOTP enrolled), or with the
//	@Description	session cookie or a session_token field, then issues an authorization code. A fresh login sets
//	@Description	the authz_session cookie so later requests from other clients join the same SSO session.
//	@Tags			OAuth2
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			response_type	formData	string				true	"Must be 'code'"	default(code)
//	@Param			client_id		formData	string				true	"OAuth2 client identifier"
//	@Param			redirect_uri	formData	string				false	"Callback URI; defaults to the registered one"
//	@Param			scope			formData	string				false	"Space-delimited list of scopes"
//	@Param			state			formData	string				false	"Opaque value echoed back on the redirect"
//	@Param			username		formData	string				false	"Login name"
//	@Param			password		formData	string				false	"Password"
//	@Param			otp				formData	string				false	"TOTP code"
//	@Param			session_token	formData	string				false	"Existing session token instead of the cookie"
//	@Success		302				{string}	string				"Redirect to redirect_uri with code and state"
//	@Failure		400				{object}	authsdk.OAuth2Error	"Invalid client or redirect_uri"
//	@Failure		401				{object}	authsdk.OAuth2Error	"Unknown or disabled client"
//	@Router			/oauth2/authorize [post]
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if !isFormRequest(r) {
		errInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		errInvalidFormBody.WriteError(w)
		return
	}

	req := buildAuthorizeRequest(r.Form)
	req.Username = strings.TrimSpace(r.Form.Get("username"))
	req.Password = r.Form.Get("password")
	req.OTP = strings.TrimSpace(r.Form.Get("otp"))
	req.SessionToken = r.Form.Get("session_token")
	if req.SessionToken == "" {
		req.SessionToken = h.Cookie.Read(r)
	}
	h.authorize(w, r, req)
}

func buildAuthorizeRequest(form url.Values) service.AuthorizeRequest {
	return service.AuthorizeRequest{
		ResponseType: strings.TrimSpace(form.Get("response_type")),
		ClientID:     strings.TrimSpace(form.Get("client_id")),
		RedirectURI:  strings.TrimSpace(form.Get("redirect_uri")),
		Scope:        httpx.ParseSpaceDelimitedFields(form.Get("scope")),
		State:        form.Get("state"),
		Params:       formToParams(form, "password", "otp", "session_token"),
	}
}

func (h *AuthorizeHandler) authorize(w http.ResponseWriter, r *http.Request, req service.AuthorizeRequest) {
	resp, err := h.AuthorizeService.Authorize(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if resp.SessionToken != h.Cookie.Read(r) {
		h.Cookie.Set(w, resp.SessionToken)
	}

	target, err := appendQuery(resp.RedirectURI, url.Values{"code": {resp.Code}}, resp.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleError reports errors raised after the redirect URI was validated
// back to the client, and everything else directly to the user agent
// (RFC 6749 section 4.1.2.1).
func (h *AuthorizeHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var rerr *service.RedirectError
	if !errors.As(err, &rerr) {
		writeError(w, r, err)
		return
	}

	e := toOAuth2Error(rerr.Err)
	if e.Code == "server_error" {
		slogx.FromContext(r.Context()).Error("authorize request failed", "error", rerr.Err)
	}
	if errors.Is(rerr.Err, service.ErrLoginRequired) {
		h.Cookie.Clear(w)
	}

	target, perr := appendQuery(rerr.RedirectURI, url.Values{
		"error":             {e.Code},
		"error_description": {e.Description},
	}, rerr.State)
	if perr != nil {
		e.WriteError(w)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// appendQuery adds params and a non-empty state to the query of base.
func appendQuery(base string, params url.Values, state string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

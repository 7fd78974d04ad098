package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/aussiebroadwan/authz/pkg/httpx"
)

// LogoutHandler ends the SSO session a session token belongs to and returns
// the logout URLs of every client that joined it.
type LogoutHandler struct {
	SSO     *service.SSOService
	Clients store.Clients
	Cookie  SessionCookie
}

// ServeHTTP godoc
//
//	@Summary		End an SSO session
//	@Description	Ends the session identified by the authz_session cookie or the session_token field and lists the
//	@Description	logout URLs of every client that joined it. The caller is expected to visit each of them.
//	@Description	With client_id and a post_logout_redirect_uri matching that client's logout URI the response is a 303 instead.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			session_token				formData	string					false	"Session token when no cookie is sent"
//	@Param			client_id					formData	string					false	"Client requesting the logout"
//	@Param			post_logout_redirect_uri	formData	string					false	"Where to send the user agent afterwards"
//	@Success		200							{object}	authsdk.LogoutResponse	"logged_out, logout_urls"
//	@Success		303							{string}	string					"Redirect to post_logout_redirect_uri"
//	@Failure		400							{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		401							{object}	authsdk.OAuth2Error		"error, error_description"
//	@Router			/oauth2/logout [post]
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isFormRequest(r) {
		errInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		errInvalidFormBody.WriteError(w)
		return
	}

	token := r.PostForm.Get("session_token")
	if token == "" {
		token = h.Cookie.Read(r)
	}

	// The cookie is dropped whatever the outcome; a token that fails to
	// verify is no use to keep.
	h.Cookie.Clear(w)

	urls, err := h.SSO.LogoutToken(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if target := h.postLogoutRedirect(r); target != "" {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutResponse{
		LoggedOut:  true,
		LogoutURLs: urls,
	})
}

// postLogoutRedirect returns the requested redirect when the named client
// accepts it as a logout URI, and "" otherwise.
func (h *LogoutHandler) postLogoutRedirect(r *http.Request) string {
	target := strings.TrimSpace(r.PostForm.Get("post_logout_redirect_uri"))
	clientID := strings.TrimSpace(r.PostForm.Get("client_id"))
	if target == "" || clientID == "" || h.Clients == nil {
		return ""
	}
	if u, err := url.Parse(target); err != nil || !u.IsAbs() {
		return ""
	}

	c, err := h.Clients.GetClientByID(r.Context(), clientID)
	if err != nil {
		return ""
	}
	if !c.Enabled || !c.MatchLogoutURI(target) {
		return ""
	}
	return target
}

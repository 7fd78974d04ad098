package http

import (
	"net/http"

	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

var (
	errInvalidContentType = authsdk.ErrInvalidRequest.WithDescription("content type must be application/x-www-form-urlencoded")
	errInvalidFormBody    = authsdk.ErrInvalidRequest.WithDescription("request body could not be parsed")
)

// oauthErrors maps every protocol error to its fixed wire form. Descriptions
// never carry the underlying cause.
var oauthErrors = map[error]*authsdk.OAuth2Error{
	service.ErrInvalidRequest:          authsdk.ErrInvalidRequest,
	service.ErrInvalidClient:           authsdk.ErrInvalidClient,
	service.ErrInvalidGrant:            authsdk.ErrInvalidGrant,
	service.ErrUnauthorizedClient:      authsdk.ErrUnauthorizedClient,
	service.ErrUnsupportedGrantType:    authsdk.ErrUnsupportedGrantType,
	service.ErrUnsupportedResponseType: authsdk.ErrUnsupportedResponseType,
	service.ErrInvalidScope:            authsdk.ErrInvalidScope,
	service.ErrInvalidToken:            authsdk.ErrInvalidToken,
	service.ErrAccessDenied:            authsdk.ErrAccessDenied,
	service.ErrLoginRequired:           authsdk.ErrLoginRequired,
	service.ErrServerError:             authsdk.ErrServerError,
}

// toOAuth2Error classifies err and returns its wire form.
func toOAuth2Error(err error) *authsdk.OAuth2Error {
	if e, ok := oauthErrors[service.Classify(err)]; ok {
		return e
	}
	return authsdk.ErrServerError
}

// writeError writes err as an OAuth2 error response. Server errors are
// logged with their cause; everything else at debug level.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := toOAuth2Error(err)
	log := slogx.FromContext(r.Context())
	if e.Code == authsdk.ErrorCodeServerError {
		log.Error("request failed", "error", err)
	} else {
		log.Debug("request rejected", "error_code", e.Code, "error", err)
	}
	e.WriteError(w)
}

package service

import (
	"errors"

	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// OAuth2 protocol errors. Each carries its wire code as the message so the
// transport can map it without a lookup table of strings.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrInvalidToken            = errors.New("invalid_token")
	ErrAccessDenied            = errors.New("access_denied")
	ErrLoginRequired           = errors.New("login_required")
	ErrServerError             = errors.New("server_error")
)

// Internal failures that callers classify before they reach the wire.
var (
	ErrUserRequired       = errors.New("service: authorization code needs a user")
	ErrCodeNotFound       = errors.New("service: authorization code not found")
	ErrInvalidCredentials = errors.New("service: invalid credentials")
	ErrSessionTokenNeeded = errors.New("service: session token required")
)

var protocolErrors = []error{
	ErrInvalidRequest,
	ErrInvalidClient,
	ErrInvalidGrant,
	ErrUnauthorizedClient,
	ErrUnsupportedGrantType,
	ErrUnsupportedResponseType,
	ErrInvalidScope,
	ErrInvalidToken,
	ErrAccessDenied,
	ErrLoginRequired,
	ErrServerError,
}

// Classify maps any error onto one of the protocol errors. Lookups that
// found nothing and failed verifications become invalid_grant; anything
// else is a server_error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range protocolErrors {
		if errors.Is(err, target) {
			return target
		}
	}

	switch {
	case errors.Is(err, ErrCodeNotFound),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, jwtx.ErrMalformed),
		errors.Is(err, jwtx.ErrInvalidSig),
		errors.Is(err, jwtx.ErrExpired),
		errors.Is(err, jwtx.ErrIssuer):
		return ErrInvalidGrant
	case errors.Is(err, ErrSessionTokenNeeded):
		return ErrLoginRequired
	case errors.Is(err, ErrUserRequired):
		return ErrInvalidRequest
	default:
		return ErrServerError
	}
}

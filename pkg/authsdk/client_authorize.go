package authsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SessionCookieName is the cookie the server keeps the SSO session in.
const SessionCookieName = "authz_session"

// AuthorizeRequest is a code-flow authorization request. Either a session
// token or a username and password authenticates it.
type AuthorizeRequest struct {
	RedirectURI  string
	Scopes       []string
	State        string
	SessionToken string
	Username     string
	Password     string
	OTP          string

	// Extra carries extension parameters such as nonce or logout_uri.
	Extra url.Values
}

// AuthorizeResult is what the server redirected back with.
type AuthorizeResult struct {
	Code         string
	State        string
	RedirectURI  string
	SessionToken string
}

// Authorize posts an authorization request and reads the redirect instead
// of following it. Errors the server redirected with come back as
// *OAuth2Error, as do errors it answered directly.
func (c *SDKClient) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	data := url.Values{
		"response_type": {"code"},
		"client_id":     {c.ClientID},
	}
	for k, vs := range req.Extra {
		data[k] = vs
	}
	if req.RedirectURI != "" {
		data.Set("redirect_uri", req.RedirectURI)
	}
	setScope(data, req.Scopes)
	if req.State != "" {
		data.Set("state", req.State)
	}
	if req.SessionToken != "" {
		data.Set("session_token", req.SessionToken)
	}
	if req.Username != "" {
		data.Set("username", req.Username)
		data.Set("password", req.Password)
	}
	if req.OTP != "" {
		data.Set("otp", req.OTP)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/oauth2/authorize"), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.WithoutRedirects().HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(resp.Body)
		return nil, parseErrorResponse(resp, body)
	}

	loc, err := resp.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid redirect: %w", err)
	}
	q := loc.Query()
	if code := q.Get("error"); code != "" {
		return nil, &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        code,
			Description: q.Get("error_description"),
		}
	}

	result := &AuthorizeResult{
		Code:         q.Get("code"),
		State:        q.Get("state"),
		SessionToken: req.SessionToken,
	}
	loc.RawQuery = ""
	result.RedirectURI = loc.String()
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookieName && ck.Value != "" {
			result.SessionToken = ck.Value
		}
	}
	return result, nil
}

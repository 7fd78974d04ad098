package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// TokenInfo describes an access token.
func (c *SDKClient) TokenInfo(ctx context.Context, accessToken string) (*TokenInfoResponse, error) {
	resp, err := c.postForm(ctx, "/oauth2/tokeninfo", url.Values{"access_token": {accessToken}}, false)
	if err != nil {
		return nil, err
	}

	var info TokenInfoResponse
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}

// UserInfo resolves the user behind an access token.
func (c *SDKClient) UserInfo(ctx context.Context, accessToken string) (*UserInfoResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/oauth2/userinfo", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, err
	}

	var info UserInfoResponse
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}

// Logout ends the SSO session identified by sessionToken and returns the
// logout URLs of every client that joined it.
func (c *SDKClient) Logout(ctx context.Context, sessionToken string) (*LogoutResponse, error) {
	data := url.Values{"session_token": {sessionToken}}
	if c.ClientID != "" {
		data.Set("client_id", c.ClientID)
	}
	resp, err := c.postForm(ctx, "/oauth2/logout", data, false)
	if err != nil {
		return nil, err
	}

	var out LogoutResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

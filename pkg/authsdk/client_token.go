package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// GrantTypeTokenExchange is the RFC 8693 grant type identifier.
const GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

// PasswordGrant logs a user in with their login name and password. otp is
// only needed for users enrolled in TOTP.
func (c *SDKClient) PasswordGrant(ctx context.Context, username, password, otp string, scopes []string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}
	if otp != "" {
		data.Set("otp", otp)
	}
	setScope(data, scopes)
	return c.requestToken(ctx, data)
}

// AuthorizationCodeGrant exchanges a code from /oauth2/authorize.
func (c *SDKClient) AuthorizationCodeGrant(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	}
	if redirectURI != "" {
		data.Set("redirect_uri", redirectURI)
	}
	return c.requestToken(ctx, data)
}

// ClientCredentialsGrant requests a client-only token. The client must be
// confidential.
func (c *SDKClient) ClientCredentialsGrant(ctx context.Context, scopes []string) (*TokenResponse, error) {
	data := url.Values{"grant_type": {"client_credentials"}}
	setScope(data, scopes)
	return c.requestToken(ctx, data)
}

// RefreshGrant rotates a refresh token into a new token pair.
func (c *SDKClient) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// TokenExchange trades a session token issued to another client for a token
// issued to this client, joining the same SSO session.
func (c *SDKClient) TokenExchange(ctx context.Context, sessionToken string, scopes []string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {GrantTypeTokenExchange},
		"subject_token": {sessionToken},
	}
	setScope(data, scopes)
	return c.requestToken(ctx, data)
}

// RevokeToken removes an access or refresh token. Unknown tokens succeed.
func (c *SDKClient) RevokeToken(ctx context.Context, token string) error {
	resp, err := c.postForm(ctx, "/oauth2/revoke", url.Values{"token": {token}}, true)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

func (c *SDKClient) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	resp, err := c.postForm(ctx, "/oauth2/token", data, true)
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return &tok, nil
}

func setScope(data url.Values, scopes []string) {
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}
}

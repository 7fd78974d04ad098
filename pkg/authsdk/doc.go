/*
Package authsdk is a small Go client for the authz OAuth2 server and the
home of the OAuth2 error vocabulary shared by server and client.

An SDKClient acts for one OAuth client. Confidential clients send their
credentials with HTTP Basic; public clients send only client_id.

	c := authsdk.NewSDKClient("https://auth.example.com", "web", "")

	tok, err := c.PasswordGrant(ctx, "alice", "secret", "", []string{"openid"})
	if errors.Is(err, authsdk.ErrInvalidGrant) {
		// bad credentials
	}

	info, err := c.UserInfo(ctx, tok.AccessToken)

	out, err := c.Logout(ctx, tok.SessionToken)
	for _, u := range out.LogoutURLs {
		// notify each client that joined the session
	}

Errors returned by the server decode to *OAuth2Error, which matches the
package level Err values with errors.Is by code.

Verifier returns a jwtx verifier fed by the server's JWKS endpoint, for
resource servers that check signed responses locally.
*/
package authsdk

package authz_test

import (
	"testing"

	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationCodeFlow(t *testing.T) {
	baseURL := setupAuthzContainer(t)
	web := authsdk.NewSDKClient(baseURL, "web", webSecret)

	res, tok := authorizeAndExchange(t, web, "")
	require.Equal(t, webRedirect, res.RedirectURI)
	require.NotEmpty(t, tok.RefreshToken)
	require.NotEmpty(t, tok.IDToken)

	t.Run("id_token verifies against the jwks", func(t *testing.T) {
		claims, err := web.Verifier(testIssuer).Verify(t.Context(), tok.IDToken)
		require.NoError(t, err)
		require.Equal(t, "user-alice", claims.Subject())
	})

	t.Run("code is single use", func(t *testing.T) {
		_, err := web.AuthorizationCodeGrant(t.Context(), res.Code, "")
		require.ErrorIs(t, err, authsdk.ErrInvalidGrant)
	})

	t.Run("userinfo", func(t *testing.T) {
		info, err := web.UserInfo(t.Context(), tok.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "user-alice", info.Sub)
		require.Equal(t, "alice", info.LoginName)
		require.Equal(t, "Alice", info.Name)
	})

	t.Run("tokeninfo", func(t *testing.T) {
		info, err := web.TokenInfo(t.Context(), tok.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "web", info.ClientID)
		require.Equal(t, "user-alice", info.UserID)
		require.Positive(t, info.ExpiresIn)
	})

	t.Run("refresh rotates the pair", func(t *testing.T) {
		next, err := web.RefreshGrant(t.Context(), tok.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, tok.AccessToken, next.AccessToken)

		_, err = web.RefreshGrant(t.Context(), tok.RefreshToken)
		require.ErrorIs(t, err, authsdk.ErrInvalidGrant)

		_, err = web.TokenInfo(t.Context(), tok.AccessToken)
		require.ErrorIs(t, err, authsdk.ErrInvalidToken)
	})
}

func TestAuthorizeErrors(t *testing.T) {
	baseURL := setupAuthzContainer(t)

	t.Run("wrong password", func(t *testing.T) {
		web := authsdk.NewSDKClient(baseURL, "web", webSecret)
		_, err := web.Authorize(t.Context(), authsdk.AuthorizeRequest{Username: "alice", Password: "nope"})
		require.ErrorIs(t, err, authsdk.ErrAccessDenied)
	})

	t.Run("disabled user", func(t *testing.T) {
		web := authsdk.NewSDKClient(baseURL, "web", webSecret)
		_, err := web.Authorize(t.Context(), authsdk.AuthorizeRequest{Username: "carol", Password: "carol-password"})
		require.ErrorIs(t, err, authsdk.ErrAccessDenied)
	})

	t.Run("no credentials", func(t *testing.T) {
		web := authsdk.NewSDKClient(baseURL, "web", webSecret)
		_, err := web.Authorize(t.Context(), authsdk.AuthorizeRequest{})
		require.ErrorIs(t, err, authsdk.ErrLoginRequired)
	})

	t.Run("unknown client", func(t *testing.T) {
		ghost := authsdk.NewSDKClient(baseURL, "ghost", "")
		_, err := ghost.Authorize(t.Context(), authsdk.AuthorizeRequest{Username: "alice", Password: alicePassword})
		require.ErrorIs(t, err, authsdk.ErrInvalidClient)
	})

	t.Run("foreign redirect uri", func(t *testing.T) {
		web := authsdk.NewSDKClient(baseURL, "web", webSecret)
		_, err := web.Authorize(t.Context(), authsdk.AuthorizeRequest{
			RedirectURI: "https://evil.example/cb",
			Username:    "alice",
			Password:    alicePassword,
		})
		require.ErrorIs(t, err, authsdk.ErrInvalidRequest)
	})
}

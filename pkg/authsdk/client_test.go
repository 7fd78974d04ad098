package authsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestRequestTokenAuthentication(t *testing.T) {
	var gotUser, gotPass, gotFormClient string
	var hadBasic bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotUser, gotPass, hadBasic = r.BasicAuth()
		gotFormClient = r.PostForm.Get("client_id")
		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{AccessToken: "at", TokenType: "bearer", ExpiresIn: 3600})
	}))
	defer srv.Close()

	t.Run("confidential uses basic", func(t *testing.T) {
		c := authsdk.NewSDKClient(srv.URL, "svc", "s3cret")
		tok, err := c.ClientCredentialsGrant(context.Background(), []string{"read"})
		require.NoError(t, err)
		require.Equal(t, "at", tok.AccessToken)
		require.True(t, hadBasic)
		require.Equal(t, "svc", gotUser)
		require.Equal(t, "s3cret", gotPass)
		require.Empty(t, gotFormClient)
	})

	t.Run("public uses form", func(t *testing.T) {
		c := authsdk.NewSDKClient(srv.URL+"/", "web", "")
		_, err := c.AuthorizationCodeGrant(context.Background(), "code", "https://app/cb")
		require.NoError(t, err)
		require.False(t, hadBasic)
		require.Equal(t, "web", gotFormClient)
	})
}

func TestErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			authsdk.ErrInvalidGrant.WriteError(w)
		case "/oauth2/userinfo":
			authsdk.ErrInvalidToken.WriteError(w)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := authsdk.NewSDKClient(srv.URL, "web", "")

	_, err := c.RefreshGrant(context.Background(), "rt")
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)

	var oerr *authsdk.OAuth2Error
	require.True(t, errors.As(err, &oerr))
	require.Equal(t, http.StatusBadRequest, oerr.StatusCode)

	_, err = c.UserInfo(context.Background(), "at")
	require.ErrorIs(t, err, authsdk.ErrInvalidToken)

	_, err = c.GetLiveness(context.Background())
	require.ErrorIs(t, err, authsdk.ErrServerError)
}

func TestWriteErrorSetsChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	authsdk.ErrInvalidToken.WriteError(rec)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	require.JSONEq(t, `{"error":"invalid_token","error_description":"the access token is missing, invalid, expired or revoked"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	authsdk.ErrInvalidClient.WithDescription("nope").WriteError(rec)
	require.Empty(t, rec.Header().Get("WWW-Authenticate"))
	require.Contains(t, rec.Body.String(), "nope")
	require.Equal(t, "client authentication failed", authsdk.ErrInvalidClient.Description)
}

func TestAuthorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.PostForm.Get("client_id") {
		case "web":
			http.SetCookie(w, &http.Cookie{Name: authsdk.SessionCookieName, Value: "sess"})
			http.Redirect(w, r, "https://web.example/cb?code=abc&state="+r.PostForm.Get("state"), http.StatusFound)
		case "denied":
			http.Redirect(w, r, "https://web.example/cb?error=access_denied&error_description=nope", http.StatusFound)
		default:
			authsdk.ErrInvalidClient.WriteError(w)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("code and session", func(t *testing.T) {
		c := authsdk.NewSDKClient(srv.URL, "web", "")
		res, err := c.Authorize(ctx, authsdk.AuthorizeRequest{Username: "alice", Password: "pw", State: "s1"})
		require.NoError(t, err)
		require.Equal(t, "abc", res.Code)
		require.Equal(t, "s1", res.State)
		require.Equal(t, "sess", res.SessionToken)
		require.Equal(t, "https://web.example/cb", res.RedirectURI)
	})

	t.Run("redirected error", func(t *testing.T) {
		c := authsdk.NewSDKClient(srv.URL, "denied", "")
		_, err := c.Authorize(ctx, authsdk.AuthorizeRequest{})
		require.ErrorIs(t, err, authsdk.ErrAccessDenied)
	})

	t.Run("direct error", func(t *testing.T) {
		c := authsdk.NewSDKClient(srv.URL, "nope", "")
		_, err := c.Authorize(ctx, authsdk.AuthorizeRequest{})
		require.ErrorIs(t, err, authsdk.ErrInvalidClient)
	})
}

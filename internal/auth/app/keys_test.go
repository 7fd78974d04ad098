package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestInitKeys(t *testing.T) {
	ctx := context.Background()
	claims := jwtx.Claims{jwtx.ClaimSubject: "alice"}

	t.Run("hs256", func(t *testing.T) {
		keys, err := InitKeys(Config{Issuer: "https://authz.test", SigningMode: SigningHS256, SigningSecret: testSecret}, slogx.Discard())
		require.NoError(t, err)
		require.Nil(t, keys.Publisher)
		require.Nil(t, keys.Rotator)
		require.True(t, keys.Ready())

		token, err := keys.Signer.Sign(claims, time.Minute)
		require.NoError(t, err)
		got, err := keys.Verifier.Verify(ctx, token)
		require.NoError(t, err)
		require.Equal(t, "alice", got.Subject())
	})

	t.Run("generated rsa key rotates", func(t *testing.T) {
		keys, err := InitKeys(Config{Issuer: "https://authz.test", SigningMode: SigningRS256}, slogx.Discard())
		require.NoError(t, err)
		require.NotNil(t, keys.Rotator)
		require.Len(t, keys.Publisher.JWKS().Keys, 1)

		before, err := keys.Signer.Sign(claims, time.Minute)
		require.NoError(t, err)
		_, err = keys.Rotator.Rotate()
		require.NoError(t, err)
		after, err := keys.Signer.Sign(claims, time.Minute)
		require.NoError(t, err)

		for _, token := range []string{before, after} {
			_, err := keys.Verifier.Verify(ctx, token)
			require.NoError(t, err)
		}
	})

	t.Run("rsa key from file is fixed", func(t *testing.T) {
		pemKey, err := cryptox.GenerateRSAKey(2048)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, pemKey, 0o600))

		keys, err := InitKeys(Config{Issuer: "https://authz.test", SigningMode: SigningRS256, SigningKeyFile: path}, slogx.Discard())
		require.NoError(t, err)
		require.Nil(t, keys.Rotator)
	})

	t.Run("missing key file", func(t *testing.T) {
		_, err := InitKeys(Config{Issuer: "https://authz.test", SigningMode: SigningRS256, SigningKeyFile: "/nonexistent.pem"}, slogx.Discard())
		require.Error(t, err)
	})
}

func TestInitKeysTrustedIssuer(t *testing.T) {
	ctx := context.Background()

	pemKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)
	upstream, err := jwtx.NewSignerRS256("upstream-1", pemKey, "https://idp.example")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwtx.JWKS{Keys: []jwtx.JWK{upstream.PublicJWK()}})
	}))
	t.Cleanup(srv.Close)

	keys, err := InitKeys(Config{
		Issuer:         "https://authz.test",
		SigningMode:    SigningHS256,
		SigningSecret:  testSecret,
		TrustedJWKSURL: srv.URL,
		TrustedIssuer:  "https://idp.example",
	}, slogx.Discard())
	require.NoError(t, err)

	t.Run("local tokens verify", func(t *testing.T) {
		token, err := keys.Signer.Sign(jwtx.Claims{jwtx.ClaimSubject: "alice"}, time.Minute)
		require.NoError(t, err)
		_, err = keys.Verifier.Verify(ctx, token)
		require.NoError(t, err)
	})

	t.Run("trusted issuer tokens verify", func(t *testing.T) {
		token, err := upstream.Sign(jwtx.Claims{jwtx.ClaimSubject: "bob"}, time.Minute)
		require.NoError(t, err)
		got, err := keys.Verifier.Verify(ctx, token)
		require.NoError(t, err)
		require.Equal(t, "bob", got.Subject())
	})

	t.Run("other issuers fail", func(t *testing.T) {
		other, err := jwtx.NewSignerRS256("upstream-1", pemKey, "https://elsewhere.example")
		require.NoError(t, err)
		token, err := other.Sign(jwtx.Claims{jwtx.ClaimSubject: "mallory"}, time.Minute)
		require.NoError(t, err)
		_, err = keys.Verifier.Verify(ctx, token)
		require.Error(t, err)
	})
}

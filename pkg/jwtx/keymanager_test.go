package jwtx_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewKeyManager(t *testing.T) {
	t.Run("issuer required", func(t *testing.T) {
		_, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{})
		require.Error(t, err)
	})

	t.Run("too small", func(t *testing.T) {
		_, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, RSABits: 1024})
		require.Error(t, err)
	})

	t.Run("loads pem", func(t *testing.T) {
		pemKey, err := cryptox.GenerateRSAKey(2048)
		require.NoError(t, err)

		km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, PrivateKeyPEM: pemKey})
		require.NoError(t, err)
		require.True(t, km.IsReady())
		require.Len(t, km.JWKS().Keys, 1)
	})

	t.Run("bad pem", func(t *testing.T) {
		_, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, PrivateKeyPEM: []byte("nope")})
		require.Error(t, err)
	})
}

func TestKeyManagerRotation(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, RetainRetired: time.Hour})
	require.NoError(t, err)

	verifier := km.Verifier(jwtx.VerifyOptions{RequireExpiry: true})

	first := km.Signer()
	oldToken, err := first.Sign(jwtx.Claims{jwtx.ClaimSubject: "alice"}, time.Minute)
	require.NoError(t, err)

	newKID, err := km.Rotate()
	require.NoError(t, err)
	require.NotEqual(t, first.KID(), newKID)
	require.Equal(t, newKID, km.Signer().KID())
	require.Len(t, km.JWKS().Keys, 2)

	newToken, err := km.Signer().Sign(jwtx.Claims{jwtx.ClaimSubject: "bob"}, time.Minute)
	require.NoError(t, err)

	t.Run("both generations verify", func(t *testing.T) {
		c, err := verifier.Verify(context.Background(), oldToken)
		require.NoError(t, err)
		require.Equal(t, "alice", c.Subject())

		c, err = verifier.Verify(context.Background(), newToken)
		require.NoError(t, err)
		require.Equal(t, "bob", c.Subject())
	})

	t.Run("manager signs with the current key", func(t *testing.T) {
		token, err := km.Sign(jwtx.Claims{jwtx.ClaimSubject: "carol"}, time.Minute)
		require.NoError(t, err)
		require.Equal(t, newKID, km.KID())

		c, err := verifier.Verify(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, "carol", c.Subject())
	})

	t.Run("retention keeps recent keys", func(t *testing.T) {
		require.Zero(t, km.PruneRetired(time.Now()))
		require.Len(t, km.JWKS().Keys, 2)
	})

	t.Run("pruned key stops verifying", func(t *testing.T) {
		require.Equal(t, 1, km.PruneRetired(time.Now().Add(2*time.Hour)))
		require.Len(t, km.JWKS().Keys, 1)

		_, err := verifier.Verify(context.Background(), oldToken)
		require.ErrorIs(t, err, jwtx.ErrKeyUnavailable)

		_, err = verifier.Verify(context.Background(), newToken)
		require.NoError(t, err)
	})
}

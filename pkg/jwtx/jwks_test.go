package jwtx

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWKRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := NewRSAJWK("kid-1", AlgorithmRS256, &key.PublicKey)
	require.Equal(t, "RSA", jwk.Kty)
	require.Equal(t, "sig", jwk.Use)

	pub, err := jwk.RSAPublicKey()
	require.NoError(t, err)
	require.True(t, pub.Equal(&key.PublicKey))

	t.Run("unsupported type", func(t *testing.T) {
		_, err := JWK{Kty: "EC"}.RSAPublicKey()
		require.Error(t, err)
	})

	t.Run("empty material", func(t *testing.T) {
		_, err := JWK{Kty: "RSA"}.RSAPublicKey()
		require.Error(t, err)
	})
}

func TestJWKSFind(t *testing.T) {
	set := JWKS{Keys: []JWK{{Kty: "EC", Kid: "ec"}, {Kty: "RSA", Kid: "a"}, {Kty: "RSA", Kid: "b"}}}

	k, ok := set.Find("b")
	require.True(t, ok)
	require.Equal(t, "b", k.Kid)

	k, ok = set.Find("")
	require.True(t, ok)
	require.Equal(t, "a", k.Kid)

	_, ok = set.Find("ec")
	require.False(t, ok)
}

func TestKeySet(t *testing.T) {
	a, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	b, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ks := NewKeySet()
	require.False(t, ks.IsReady())

	ks.Add("a", &a.PublicKey)
	ks.Add("b", &b.PublicKey)

	kid, _, ok := ks.Newest()
	require.True(t, ok)
	require.Equal(t, "b", kid)

	jwks := ks.PublicJWKS()
	require.Len(t, jwks.Keys, 2)
	require.Equal(t, "b", jwks.Keys[0].Kid)

	pub, err := ks.FetchKey(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, pub.Equal(&a.PublicKey))

	_, err = ks.FetchKey(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownKey)

	now := time.Now()
	ks.Retire("b", now.Add(-time.Hour))
	kid, _, ok = ks.Newest()
	require.True(t, ok)
	require.Equal(t, "a", kid)

	require.Equal(t, 1, ks.Prune(now))
	require.Equal(t, 1, ks.Len())

	restored := NewKeySet()
	require.NoError(t, restored.ResetFromJWKS(jwks))
	require.Equal(t, 2, restored.Len())
	kid, _, _ = restored.Newest()
	require.Equal(t, "b", kid)
}

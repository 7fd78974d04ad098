package jwtx_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "https://auth.example.test"

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// requireTamperRejected flips each byte of the decoded payload in turn and
// expects verification to fail.
func requireTamperRejected(t *testing.T, v jwtx.Verifier, token string) {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	for i := range payload {
		tampered := bytes.Clone(payload)
		tampered[i] ^= 0x01
		forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(tampered) + "." + parts[2]

		_, err := v.Verify(context.Background(), forged)
		require.Error(t, err, "byte %d", i)
		require.True(t, errors.Is(err, jwtx.ErrInvalidSig) || errors.Is(err, jwtx.ErrMalformed), "byte %d: %v", i, err)
	}
}

func TestRS256SignAndVerify(t *testing.T) {
	privKey := newRSAKey(t)
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privKey),
	})

	signer, err := jwtx.NewSignerRS256("test-key", privPEM, exampleIssuer)
	require.NoError(t, err)
	require.Equal(t, jwtx.AlgorithmRS256, signer.Alg())
	require.Equal(t, "test-key", signer.KID())

	token, err := signer.Sign(jwtx.Claims{
		jwtx.ClaimSubject:  "alice",
		jwtx.ClaimUsername: "alice",
		"roles":            []string{"admin"},
	}, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	verifier := jwtx.NewVerifierRS256(signer.PublicKey(), jwtx.VerifyOptions{
		Issuer:        exampleIssuer,
		RequireExpiry: true,
	})

	claims, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject())
	require.Equal(t, exampleIssuer, claims.Issuer())
	require.NotEmpty(t, claims.String(jwtx.ClaimJTI))
	require.Equal(t, []any{"admin"}, claims["roles"])

	t.Run("tampered payload is rejected", func(t *testing.T) {
		parts := strings.Split(token, ".")
		forged, err := signer.Sign(jwtx.Claims{jwtx.ClaimSubject: "mallory"}, time.Minute)
		require.NoError(t, err)
		parts[1] = strings.Split(forged, ".")[1]

		_, err = verifier.Verify(context.Background(), strings.Join(parts, "."))
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("every flipped payload byte is rejected", func(t *testing.T) {
		requireTamperRejected(t, verifier, token)
	})

	t.Run("other key is rejected", func(t *testing.T) {
		other := jwtx.NewVerifierRS256(&newRSAKey(t).PublicKey, jwtx.VerifyOptions{})
		_, err := other.Verify(context.Background(), token)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("garbage is malformed", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "not-a-jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		v := jwtx.NewVerifierRS256(signer.PublicKey(), jwtx.VerifyOptions{Issuer: "someone-else"})
		_, err := v.Verify(context.Background(), token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})
}

func TestRS256Expiry(t *testing.T) {
	key := newRSAKey(t)
	signer, err := jwtx.NewSignerRS256FromKey("k1", key, exampleIssuer)
	require.NoError(t, err)

	token, err := signer.Sign(jwtx.Claims{jwtx.ClaimSubject: "bob"}, time.Minute)
	require.NoError(t, err)

	later := func() time.Time { return time.Now().Add(2 * time.Minute) }

	t.Run("expired when required", func(t *testing.T) {
		v := jwtx.NewVerifierRS256(&key.PublicKey, jwtx.VerifyOptions{RequireExpiry: true, Now: later})
		_, err := v.Verify(context.Background(), token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("leeway covers skew", func(t *testing.T) {
		v := jwtx.NewVerifierRS256(&key.PublicKey, jwtx.VerifyOptions{
			RequireExpiry: true,
			Leeway:        5 * time.Minute,
			Now:           later,
		})
		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	})

	t.Run("expiry ignored when not required", func(t *testing.T) {
		v := jwtx.NewVerifierRS256(&key.PublicKey, jwtx.VerifyOptions{Now: later})
		claims, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, "bob", claims.Subject())
	})
}

func TestRS256AcceptsPaddedSegments(t *testing.T) {
	key := newRSAKey(t)
	signer, err := jwtx.NewSignerRS256FromKey("k1", key, "")
	require.NoError(t, err)

	token, err := signer.Sign(jwtx.Claims{jwtx.ClaimSubject: "pad"}, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	for i := 0; i < 2; i++ {
		for len(parts[i])%4 != 0 {
			parts[i] += "="
		}
	}

	v := jwtx.NewVerifierRS256(&key.PublicKey, jwtx.VerifyOptions{})
	claims, err := v.Verify(context.Background(), strings.Join(parts, "."))
	require.NoError(t, err)
	require.Equal(t, "pad", claims.Subject())
}

func TestNewSignerRS256RejectsSmallKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	_, err = jwtx.NewSignerRS256FromKey("small", key, exampleIssuer)
	require.Error(t, err)

	_, err = jwtx.NewSignerRS256("bad", []byte("not pem"), exampleIssuer)
	require.Error(t, err)
}

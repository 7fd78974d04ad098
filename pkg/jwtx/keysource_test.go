package jwtx_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type jwksServer struct {
	mu      sync.Mutex
	jwks    jwtx.JWKS
	fetches atomic.Int32
}

func (s *jwksServer) set(signer *jwtx.RS256Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jwks = jwtx.JWKS{Keys: []jwtx.JWK{signer.PublicJWK()}}
}

func (s *jwksServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.fetches.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.jwks)
}

func TestRemoteVerifierLazyFetch(t *testing.T) {
	signer, err := jwtx.NewSignerRS256FromKey("k1", newRSAKey(t), exampleIssuer)
	require.NoError(t, err)

	srv := &jwksServer{}
	srv.set(signer)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	v := jwtx.NewVerifierRS256WithSource(&jwtx.RemoteKeySource{URL: ts.URL}, jwtx.VerifyOptions{})
	require.Nil(t, v.Key())
	require.Zero(t, srv.fetches.Load())

	token, err := signer.Sign(jwtx.Claims{jwtx.ClaimSubject: "alice"}, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), srv.fetches.Load())
}

func TestRemoteVerifierRefetchesOnceOnRotation(t *testing.T) {
	oldSigner, err := jwtx.NewSignerRS256FromKey("old", newRSAKey(t), "")
	require.NoError(t, err)
	newSigner, err := jwtx.NewSignerRS256FromKey("new", newRSAKey(t), "")
	require.NoError(t, err)

	srv := &jwksServer{}
	srv.set(oldSigner)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	v := jwtx.NewVerifierRS256WithSource(&jwtx.RemoteKeySource{URL: ts.URL}, jwtx.VerifyOptions{})

	oldToken, err := oldSigner.Sign(jwtx.Claims{jwtx.ClaimSubject: "a"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), oldToken)
	require.NoError(t, err)
	require.Equal(t, int32(1), srv.fetches.Load())

	srv.set(newSigner)
	newToken, err := newSigner.Sign(jwtx.Claims{jwtx.ClaimSubject: "b"}, time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), newToken)
	require.NoError(t, err)
	require.Equal(t, "b", claims.Subject())
	require.Equal(t, int32(2), srv.fetches.Load())

	t.Run("forged token costs exactly one refetch", func(t *testing.T) {
		forger, err := jwtx.NewSignerRS256FromKey("new", newRSAKey(t), "")
		require.NoError(t, err)
		forged, err := forger.Sign(jwtx.Claims{jwtx.ClaimSubject: "mallory"}, time.Minute)
		require.NoError(t, err)

		before := srv.fetches.Load()
		_, err = v.Verify(context.Background(), forged)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
		require.Equal(t, before+1, srv.fetches.Load())
	})
}

func TestRemoteVerifierFailsClosed(t *testing.T) {
	signer, err := jwtx.NewSignerRS256FromKey("k1", newRSAKey(t), "")
	require.NoError(t, err)
	token, err := signer.Sign(jwtx.Claims{jwtx.ClaimSubject: "alice"}, time.Minute)
	require.NoError(t, err)

	t.Run("server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		v := jwtx.NewVerifierRS256WithSource(&jwtx.RemoteKeySource{URL: ts.URL}, jwtx.VerifyOptions{})
		_, err := v.Verify(context.Background(), token)
		require.ErrorIs(t, err, jwtx.ErrKeyUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer ts.Close()
		defer close(release)

		var fetchErr atomic.Value
		v := jwtx.NewVerifierRS256WithSource(&jwtx.RemoteKeySource{URL: ts.URL, Timeout: 50 * time.Millisecond}, jwtx.VerifyOptions{})
		v.OnFetch = func(err error) {
			if err != nil {
				fetchErr.Store(err)
			}
		}

		_, err := v.Verify(context.Background(), token)
		require.ErrorIs(t, err, jwtx.ErrKeyUnavailable)
		require.NotNil(t, fetchErr.Load())
	})
}

func TestRemoteKeySourcePEM(t *testing.T) {
	key := newRSAKey(t)
	pemPub, err := cryptox.EncodeRSAPublicKey(&key.PublicKey)
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-pem-file")
		_, _ = w.Write(pemPub)
	}))
	defer ts.Close()

	src := &jwtx.RemoteKeySource{URL: ts.URL}
	pub, err := src.FetchKey(context.Background(), "")
	require.NoError(t, err)
	require.True(t, pub.Equal(&key.PublicKey))
}

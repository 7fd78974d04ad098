package jwtx

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// RS256Verifier validates RS256 tokens against a single cached public key.
//
// The key lives in an atomic pointer owned by the verifier. With a KeySource
// configured the key is fetched on first use, and a signature failure
// triggers exactly one refetch (to ride over key rotation) before the token
// is rejected. Concurrent refetches collapse into one request.
type RS256Verifier struct {
	key    atomic.Pointer[rsa.PublicKey]
	source KeySource
	opts   VerifyOptions
	group  singleflight.Group

	// OnFetch, when set, observes every key fetch and its outcome.
	OnFetch func(err error)
}

// NewVerifierRS256 creates a verifier pinned to pub.
func NewVerifierRS256(pub *rsa.PublicKey, opts VerifyOptions) *RS256Verifier {
	v := &RS256Verifier{opts: opts}
	v.key.Store(pub)
	return v
}

// NewVerifierRS256WithSource creates a verifier that loads its key from
// source lazily.
func NewVerifierRS256WithSource(source KeySource, opts VerifyOptions) *RS256Verifier {
	return &RS256Verifier{source: source, opts: opts}
}

func (v *RS256Verifier) Alg() string { return AlgorithmRS256 }

// SetKey publishes a new key to every goroutine using the verifier.
func (v *RS256Verifier) SetKey(pub *rsa.PublicKey) { v.key.Store(pub) }

// Key returns the currently cached key, or nil.
func (v *RS256Verifier) Key() *rsa.PublicKey { return v.key.Load() }

// Verify validates the JWT string and returns its parsed Claims.
func (v *RS256Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	key := v.key.Load()
	if key == nil {
		var err error
		if key, err = v.refresh(ctx, peekKID(token)); err != nil {
			return nil, err
		}
	}

	claims, kid, err := parseSigned(token, AlgorithmRS256, key)
	if errors.Is(err, ErrInvalidSig) && v.source != nil {
		fresh, ferr := v.refresh(ctx, kid)
		if ferr != nil {
			return nil, err
		}
		if fresh.Equal(key) {
			return nil, err
		}
		claims, _, err = parseSigned(token, AlgorithmRS256, fresh)
	}
	if err != nil {
		return nil, err
	}

	if err := checkClaims(claims, v.opts); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *RS256Verifier) refresh(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if v.source == nil {
		return nil, ErrKeyUnavailable
	}

	res, err, _ := v.group.Do("key:"+kid, func() (any, error) {
		pub, err := v.source.FetchKey(ctx, kid)
		if v.OnFetch != nil {
			v.OnFetch(err)
		}
		if err != nil {
			return nil, err
		}
		v.key.Store(pub)
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	return res.(*rsa.PublicKey), nil
}

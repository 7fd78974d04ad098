package jwtx

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrUnknownKey is returned when a kid is not part of the key set.
var ErrUnknownKey = errors.New("jwtx: unknown key id")

type keyEntry struct {
	kid       string
	pub       *rsa.PublicKey
	addedAt   time.Time
	retiredAt time.Time
}

// KeySet holds the public keys published via JWKS. Retired keys stay
// verifiable until pruned so tokens signed before a rotation keep working.
type KeySet struct {
	mu   sync.RWMutex
	keys []keyEntry
}

func NewKeySet() *KeySet { return &KeySet{} }

// Add registers pub under kid, replacing any previous key with that id.
func (k *KeySet) Add(kid string, pub *rsa.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.keys = slices.DeleteFunc(k.keys, func(e keyEntry) bool { return e.kid == kid })
	k.keys = append(k.keys, keyEntry{kid: kid, pub: pub, addedAt: time.Now()})
}

// Get returns the key for kid.
func (k *KeySet) Get(kid string) (*rsa.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, e := range k.keys {
		if e.kid == kid {
			return e.pub, true
		}
	}
	return nil, false
}

// Newest returns the most recently added key that has not been retired.
func (k *KeySet) Newest() (string, *rsa.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	for i := len(k.keys) - 1; i >= 0; i-- {
		if k.keys[i].retiredAt.IsZero() {
			return k.keys[i].kid, k.keys[i].pub, true
		}
	}
	return "", nil, false
}

// Retire marks kid as no longer used for signing.
func (k *KeySet) Retire(kid string, at time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i := range k.keys {
		if k.keys[i].kid == kid && k.keys[i].retiredAt.IsZero() {
			k.keys[i].retiredAt = at
		}
	}
}

// Prune drops keys retired before cutoff and reports how many were removed.
func (k *KeySet) Prune(cutoff time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	before := len(k.keys)
	k.keys = slices.DeleteFunc(k.keys, func(e keyEntry) bool {
		return !e.retiredAt.IsZero() && e.retiredAt.Before(cutoff)
	})
	return before - len(k.keys)
}

// Len returns the number of keys, retired ones included.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// IsReady reports whether at least one signing key is available.
func (k *KeySet) IsReady() bool {
	_, _, ok := k.Newest()
	return ok
}

// PublicJWKS renders every key for the /.well-known/jwks.json endpoint,
// newest first.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := JWKS{Keys: make([]JWK, 0, len(k.keys))}
	for i := len(k.keys) - 1; i >= 0; i-- {
		out.Keys = append(out.Keys, NewRSAJWK(k.keys[i].kid, AlgorithmRS256, k.keys[i].pub))
	}
	return out
}

// ResetFromJWKS replaces the key set with the RSA keys in jwks.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	entries := make([]keyEntry, 0, len(jwks.Keys))
	now := time.Now()
	for i := len(jwks.Keys) - 1; i >= 0; i-- {
		j := jwks.Keys[i]
		pub, err := j.RSAPublicKey()
		if err != nil {
			return err
		}
		entries = append(entries, keyEntry{kid: j.Kid, pub: pub, addedAt: now})
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = entries
	return nil
}

// FetchKey makes a KeySet usable as a KeySource for verifiers running in the
// same process. An empty kid resolves to the newest key.
func (k *KeySet) FetchKey(_ context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		if _, pub, ok := k.Newest(); ok {
			return pub, nil
		}
		return nil, ErrUnknownKey
	}
	if pub, ok := k.Get(kid); ok {
		return pub, nil
	}
	return nil, ErrUnknownKey
}

// Verifier returns an RS256 verifier that selects the key by the token's kid
// header. Tokens without a kid are checked against the newest key.
func (k *KeySet) Verifier(opts VerifyOptions) Verifier {
	return &keySetVerifier{keys: k, opts: opts}
}

type keySetVerifier struct {
	keys *KeySet
	opts VerifyOptions
}

func (v *keySetVerifier) Alg() string { return AlgorithmRS256 }

func (v *keySetVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	pub, err := v.keys.FetchKey(ctx, peekKID(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	claims, _, err := parseSigned(token, AlgorithmRS256, pub)
	if err != nil {
		return nil, err
	}
	if err := checkClaims(claims, v.opts); err != nil {
		return nil, err
	}
	return claims, nil
}

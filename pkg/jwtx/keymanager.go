package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

// DefaultRSABits is the size of keys generated by the KeyManager.
const DefaultRSABits = 2048

// KeyManager owns the active RS256 signing key and the published key set.
// Rotate swaps in a fresh key while the previous one stays in the key set
// for verification until PruneRetired drops it.
type KeyManager struct {
	issuer  string
	bits    int
	keys    *KeySet
	retain  time.Duration
	mu      sync.RWMutex
	current *RS256Signer
}

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	Issuer string

	// PrivateKeyPEM loads a fixed key instead of generating one.
	PrivateKeyPEM []byte

	// RSABits is the size of generated keys. Defaults to DefaultRSABits.
	RSABits int

	// RetainRetired is how long a rotated-out key stays in the JWKS.
	RetainRetired time.Duration
}

// NewKeyManager loads or generates the first signing key.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}
	bits := opts.RSABits
	if bits == 0 {
		bits = DefaultRSABits
	}
	if bits < cryptox.MinRSABits {
		return nil, fmt.Errorf("jwtx: RSA key size must be at least %d bits", cryptox.MinRSABits)
	}

	km := &KeyManager{
		issuer: opts.Issuer,
		bits:   bits,
		keys:   NewKeySet(),
		retain: opts.RetainRetired,
	}

	if len(opts.PrivateKeyPEM) > 0 {
		key, err := cryptox.ParseRSAPrivateKey(opts.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("jwtx: load signing key: %w", err)
		}
		if err := km.install(key); err != nil {
			return nil, err
		}
		return km, nil
	}

	if _, err := km.Rotate(); err != nil {
		return nil, err
	}
	return km, nil
}

// Signer returns the signer for the current key.
func (km *KeyManager) Signer() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.current == nil {
		return nil
	}
	return km.current
}

// KeyManager is itself a Signer that always uses the current key, so
// services holding it keep working across rotations.
func (km *KeyManager) Alg() string { return AlgorithmRS256 }

func (km *KeyManager) KID() string {
	if s := km.Signer(); s != nil {
		return s.KID()
	}
	return ""
}

func (km *KeyManager) Sign(claims Claims, expiresIn time.Duration) (string, error) {
	s := km.Signer()
	if s == nil {
		return "", ErrKeyUnavailable
	}
	return s.Sign(claims, expiresIn)
}

// KeySet exposes the published keys.
func (km *KeyManager) KeySet() *KeySet { return km.keys }

// JWKS renders the published keys.
func (km *KeyManager) JWKS() JWKS { return km.keys.PublicJWKS() }

// IsReady reports whether a signing key is loaded.
func (km *KeyManager) IsReady() bool { return km.Signer() != nil && km.keys.IsReady() }

// Verifier returns an RS256 verifier that resolves keys from the key set by
// kid, so tokens signed with retired keys still verify.
func (km *KeyManager) Verifier(opts VerifyOptions) Verifier {
	if opts.Issuer == "" {
		opts.Issuer = km.issuer
	}
	return km.keys.Verifier(opts)
}

// Rotate generates a new signing key and retires the current one. It returns
// the kid of the new key.
func (km *KeyManager) Rotate() (string, error) {
	pemKey, err := cryptox.GenerateRSAKey(km.bits)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate signing key: %w", err)
	}
	key, err := cryptox.ParseRSAPrivateKey(pemKey)
	if err != nil {
		return "", err
	}
	if err := km.install(key); err != nil {
		return "", err
	}
	return km.Signer().KID(), nil
}

// PruneRetired removes retired keys older than the retention window.
func (km *KeyManager) PruneRetired(now time.Time) int {
	return km.keys.Prune(now.Add(-km.retain))
}

func (km *KeyManager) install(key *rsa.PrivateKey) error {
	kid, err := newKeyID()
	if err != nil {
		return err
	}
	signer, err := NewSignerRS256FromKey(kid, key, km.issuer)
	if err != nil {
		return err
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if km.current != nil {
		km.keys.Retire(km.current.KID(), time.Now())
	}
	km.keys.Add(kid, signer.PublicKey())
	km.current = signer
	return nil
}

func newKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key id: %w", err)
	}
	return "authz-" + token, nil
}

package jwtx

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// RS256Signer implements Signer using RSA SHA-256.
type RS256Signer struct {
	kid    string
	issuer string
	key    *rsa.PrivateKey
	now    func() time.Time
}

// NewSignerRS256 loads a PEM encoded RSA private key (PKCS1 or PKCS8).
func NewSignerRS256(kid string, pemKey []byte, issuer string) (*RS256Signer, error) {
	key, err := cryptox.ParseRSAPrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	return NewSignerRS256FromKey(kid, key, issuer)
}

// NewSignerRS256FromKey wraps an already parsed RSA key.
func NewSignerRS256FromKey(kid string, key *rsa.PrivateKey, issuer string) (*RS256Signer, error) {
	if key == nil {
		return nil, errors.New("jwtx: nil RSA key")
	}
	if key.N.BitLen() < cryptox.MinRSABits {
		return nil, errors.New("jwtx: RSA key too small")
	}
	return &RS256Signer{kid: kid, issuer: issuer, key: key, now: time.Now}, nil
}

func (s *RS256Signer) Alg() string { return AlgorithmRS256 }
func (s *RS256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *RS256Signer) Sign(claims Claims, expiresIn time.Duration) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(stamp(claims, s.issuer, expiresIn, s.now())))
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	return t.SignedString(s.key)
}

// PublicKey returns the verification half of the key pair.
func (s *RS256Signer) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// PublicJWK returns a JWK for inclusion in a JWKS. This is what you'll
// publish so others can verify your tokens.
func (s *RS256Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, AlgorithmRS256, &s.key.PublicKey)
}

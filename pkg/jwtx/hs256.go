package jwtx

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACSecretSize is the smallest shared secret accepted for HS256.
const MinHMACSecretSize = 32

// HS256 signs and verifies with a shared secret. It implements both Signer
// and Verifier.
type HS256 struct {
	kid    string
	issuer string
	secret []byte
	opts   VerifyOptions
	now    func() time.Time
}

// NewHS256 builds a MAC signer/verifier. Verification uses opts; the issuer
// stamped on new tokens is opts.Issuer.
func NewHS256(kid string, secret []byte, opts VerifyOptions) (*HS256, error) {
	if len(secret) < MinHMACSecretSize {
		return nil, errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &HS256{kid: kid, issuer: opts.Issuer, secret: s, opts: opts, now: time.Now}, nil
}

func (h *HS256) Alg() string { return AlgorithmHS256 }
func (h *HS256) KID() string { return h.kid }

func (h *HS256) Sign(claims Claims, expiresIn time.Duration) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(stamp(claims, h.issuer, expiresIn, h.now())))
	if h.kid != "" {
		t.Header["kid"] = h.kid
	}
	return t.SignedString(h.secret)
}

func (h *HS256) Verify(_ context.Context, token string) (Claims, error) {
	claims, _, err := parseSigned(token, AlgorithmHS256, h.secret)
	if err != nil {
		return nil, err
	}
	if err := checkClaims(claims, h.opts); err != nil {
		return nil, err
	}
	return claims, nil
}

package jwtx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Alg() string
	Verify(ctx context.Context, token string) (Claims, error)
}

// VerifyOptions captures common expectations used by verifiers.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// RequireExpiry rejects tokens whose exp claim is missing or in the past.
	RequireExpiry bool

	// Leeway allows small clock skew when validating exp.
	Leeway time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

func (o VerifyOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

var (
	ErrMalformed      = errors.New("jwtx: malformed token")
	ErrInvalidSig     = errors.New("jwtx: invalid signature")
	ErrKeyUnavailable = errors.New("jwtx: verification key unavailable")
	ErrIssuer         = errors.New("jwtx: issuer mismatch")
	ErrExpired        = errors.New("jwtx: token expired")
)

// parseSigned checks the signature of token with key and returns its raw
// claims. Claim validation is left to checkClaims so callers control expiry
// enforcement.
func parseSigned(token string, alg string, key any) (Claims, string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithPaddingAllowed(),
		jwt.WithoutClaimsValidation(),
	)

	var kid string
	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ = t.Header["kid"].(string)
		return key, nil
	})
	if err != nil {
		return nil, kid, classifyParseError(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, kid, ErrMalformed
	}
	return Claims(mc), kid, nil
}

// peekKID extracts the kid header without checking the signature.
func peekKID(token string) string {
	parsed, _, err := jwt.NewParser(jwt.WithPaddingAllowed()).ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	kid, _ := parsed.Header["kid"].(string)
	return kid
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSig, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidSig, err)
	}
}

func checkClaims(c Claims, opts VerifyOptions) error {
	if opts.Issuer != "" && c.Issuer() != opts.Issuer {
		return ErrIssuer
	}
	if !opts.RequireExpiry {
		return nil
	}

	exp, ok := c.ExpiresAt()
	if !ok {
		return ErrExpired
	}
	if opts.now().After(exp.Add(opts.Leeway)) {
		return ErrExpired
	}
	return nil
}

package jwtx

import "time"

// Supported JWT signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmHS256 = "HS256"
)

// Signer turns a claim map into a compact signed JWT.
type Signer interface {
	Alg() string
	KID() string

	// Sign adds iat, exp (now + expiresIn), iss (when configured) and jti to
	// a copy of claims and returns header.payload.signature.
	Sign(claims Claims, expiresIn time.Duration) (string, error)
}

package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// CredentialSize is the entropy behind every authorization code, access
// token and refresh token.
const CredentialSize = TokenSize256

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// CredentialGenerator produces unguessable opaque credentials. Services take
// one as a dependency so tests can make issued values predictable.
type CredentialGenerator func() (string, error)

// GenerateToken creates a cryptographically secure random token of the specified byte length.
// The token is returned as a base64url-encoded string (URL-safe, no padding).
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCredential returns CredentialSize random bytes encoded in base62.
// The output only contains [0-9A-Za-z], so it is safe in query strings,
// form bodies and redis keys without escaping.
func GenerateCredential() (string, error) {
	buf := make([]byte, CredentialSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate credential: %w", err)
	}
	return encodeBase62(buf), nil
}

// encodeBase62 keeps leading zero bytes so every credential has a stable
// minimum length.
func encodeBase62(b []byte) string {
	n := new(big.Int).SetBytes(b)
	base := big.NewInt(int64(len(base62Alphabet)))
	mod := new(big.Int)

	out := make([]byte, 0, len(b)*4/3+2)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, base62Alphabet[mod.Int64()])
	}
	for _, v := range b {
		if v != 0 {
			break
		}
		out = append(out, base62Alphabet[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token.
// Stores key codes, tokens and session tokens by fingerprint so a leaked
// database never yields usable credentials.
//
// The fingerprint is returned as a base64url-encoded string (43 chars).
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

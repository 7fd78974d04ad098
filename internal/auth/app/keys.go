package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// Keys is the signing setup the rest of the application is wired with.
type Keys struct {
	Signer   jwtx.Signer
	Verifier jwtx.Verifier

	// Publisher serves the JWKS. Nil in hs256 mode.
	Publisher interface{ JWKS() jwtx.JWKS }

	// Rotator is set when keys are generated in memory and can be rotated.
	Rotator service.KeyRotator

	Ready func() bool
}

// InitKeys builds the signer and verifier for the configured signing mode.
//
// In rs256 mode a KeyManager holds the key: loaded from SigningKeyFile when
// set, generated otherwise. Generated keys can be rotated by housekeeping;
// a loaded key is fixed. In hs256 mode everything is signed with the shared
// secret and there is nothing to publish.
//
// With TrustedJWKSURL set, session tokens signed by that issuer are
// accepted as well; their keys are fetched on demand.
func InitKeys(cfg Config, logger *slog.Logger) (*Keys, error) {
	opts := jwtx.VerifyOptions{
		Issuer:        cfg.Issuer,
		RequireExpiry: true,
		Leeway:        cfg.VerifyLeeway,
	}

	var keys *Keys
	switch cfg.SigningMode {
	case SigningHS256:
		h, err := jwtx.NewHS256("hs256", []byte(cfg.SigningSecret), opts)
		if err != nil {
			return nil, err
		}
		keys = &Keys{Signer: h, Verifier: h, Ready: func() bool { return true }}
		logger.Info("signing with shared secret", "alg", h.Alg())

	case SigningRS256:
		var pemKey []byte
		if cfg.SigningKeyFile != "" {
			raw, err := os.ReadFile(cfg.SigningKeyFile)
			if err != nil {
				return nil, fmt.Errorf("read signing key: %w", err)
			}
			pemKey = raw
		}

		km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
			Issuer:        cfg.Issuer,
			PrivateKeyPEM: pemKey,
			RSABits:       cfg.RSABits,
			RetainRetired: cfg.KeyRetention,
		})
		if err != nil {
			return nil, err
		}
		keys = &Keys{
			Signer:    km,
			Verifier:  km.Verifier(opts),
			Publisher: km,
			Ready:     km.IsReady,
		}
		if pemKey == nil {
			keys.Rotator = km
		}
		logger.Info("signing with rsa key", "alg", km.Alg(), "kid", km.KID(), "from_file", pemKey != nil)

	default:
		return nil, fmt.Errorf("unknown signing mode %q", cfg.SigningMode)
	}

	if cfg.TrustedJWKSURL != "" {
		remote := jwtx.NewVerifierRS256WithSource(&jwtx.RemoteKeySource{URL: cfg.TrustedJWKSURL}, jwtx.VerifyOptions{
			Issuer:        cfg.TrustedIssuer,
			RequireExpiry: true,
			Leeway:        cfg.VerifyLeeway,
		})
		keys.Verifier = &chainVerifier{verifiers: []jwtx.Verifier{keys.Verifier, remote}}
		logger.Info("accepting session tokens from trusted issuer", "issuer", cfg.TrustedIssuer, "jwks_url", cfg.TrustedJWKSURL)
	}

	return keys, nil
}

// chainVerifier accepts a token if any verifier does. The first error is
// returned when all of them fail, since the local verifier's error is the
// most useful one.
type chainVerifier struct {
	verifiers []jwtx.Verifier
}

func (c *chainVerifier) Alg() string { return c.verifiers[0].Alg() }

func (c *chainVerifier) Verify(ctx context.Context, token string) (jwtx.Claims, error) {
	var first error
	for _, v := range c.verifiers {
		claims, err := v.Verify(ctx, token)
		if err == nil {
			return claims, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = errors.New("no verifier configured")
	}
	return nil, first
}

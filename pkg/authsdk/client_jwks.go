package authsdk

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}
	return &jwks, nil
}

// Verifier returns an RS256 verifier backed by the server's JWKS endpoint.
// Keys are fetched on first use and refetched once after a rotation.
func (c *SDKClient) Verifier(issuer string) *jwtx.RS256Verifier {
	src := &jwtx.RemoteKeySource{
		URL:     c.url("/.well-known/jwks.json"),
		Client:  c.HTTPClient,
		Timeout: 5 * time.Second,
	}
	return jwtx.NewVerifierRS256WithSource(src, jwtx.VerifyOptions{Issuer: issuer, RequireExpiry: true})
}

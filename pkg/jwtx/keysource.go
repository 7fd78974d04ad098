package jwtx

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

// KeySource resolves the public key used to verify tokens. kid may be empty
// when the token carries no key id.
type KeySource interface {
	FetchKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context, kid string) (*rsa.PublicKey, error)

func (f KeySourceFunc) FetchKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	return f(ctx, kid)
}

const (
	defaultFetchTimeout = 5 * time.Second
	maxKeyDocumentSize  = 1 << 20
)

// RemoteKeySource downloads a verification key over HTTP. The document may
// be a JWKS (the key matching kid, or the first RSA key) or a PEM public key.
type RemoteKeySource struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func (r *RemoteKeySource) FetchKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/x-pem-file")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwtx: fetch key: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwtx: fetch key: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("jwtx: read key: %w", err)
	}
	return parseKeyDocument(body, kid)
}

func parseKeyDocument(body []byte, kid string) (*rsa.PublicKey, error) {
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		return cryptox.ParseRSAPublicKey(trimmed)
	}

	var set JWKS
	if err := json.Unmarshal(trimmed, &set); err != nil {
		return nil, fmt.Errorf("jwtx: decode jwks: %w", err)
	}
	jwk, ok := set.Find(kid)
	if !ok && kid != "" {
		// Unknown kid: fall back to the first key rather than failing outright.
		jwk, ok = set.Find("")
	}
	if !ok {
		return nil, errors.New("jwtx: no RSA key in jwks")
	}
	return jwk.RSAPublicKey()
}

package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to an authz server on behalf of one OAuth client.
// ClientSecret is empty for public clients.
type SDKClient struct {
	BaseURL      string
	HTTPClient   *http.Client
	ClientID     string
	ClientSecret string
}

// NewSDKClient creates a client with a 10 second request timeout.
func NewSDKClient(baseURL, clientID, clientSecret string) *SDKClient {
	return &SDKClient{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// WithoutRedirects returns a copy whose HTTP client reports redirects
// instead of following them, for driving /oauth2/authorize.
func (c *SDKClient) WithoutRedirects() *SDKClient {
	cp := *c
	hc := *c.HTTPClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	cp.HTTPClient = &hc
	return &cp
}

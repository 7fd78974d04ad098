package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// ClientCredentials are the client_id and client_secret presented with a
// request. The transport fills them from the Basic header or the form, and
// rejects requests that use both.
type ClientCredentials struct {
	ID     string
	Secret string
}

// ClientAuthenticator resolves the client a request claims to come from.
type ClientAuthenticator struct {
	Clients store.Clients
}

// Authenticate loads the client and checks its secret. Public clients pass
// without a secret; they are bound by redirect URI and code ownership
// instead. A confidential client without a matching secret, an unknown
// client and a disabled client all fail with ErrInvalidClient.
//
// When creds carry no client id, Authenticate returns nil and no error
// unless required is set.
func (a *ClientAuthenticator) Authenticate(ctx context.Context, creds ClientCredentials, required bool) (*domain.Client, error) {
	if creds.ID == "" {
		if required || creds.Secret != "" {
			return nil, ErrInvalidClient
		}
		return nil, nil
	}

	c, err := a.Clients.GetClientByID(ctx, creds.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !c.Enabled {
		slogx.FromContext(ctx).Info("disabled client presented", "client_id", c.ID)
		return nil, ErrInvalidClient
	}

	if c.IsPublic() {
		if creds.Secret != "" {
			return nil, ErrInvalidClient
		}
		return &c, nil
	}
	if creds.Secret == "" || cryptox.VerifyPassword(creds.Secret, c.SecretHash) != nil {
		slogx.FromContext(ctx).Info("client authentication failed", "client_id", c.ID)
		return nil, ErrInvalidClient
	}
	return &c, nil
}

package store

import (
	"context"
	"errors"
)

// Overlay serves clients and users from Durable and codes, tokens and SSO
// sessions from Ephemeral.
type Overlay struct {
	Durable   Store
	Ephemeral Store
}

// NewOverlay returns durable itself when both sides are the same store.
func NewOverlay(durable, ephemeral Store) Store {
	if ephemeral == nil || ephemeral == durable {
		return durable
	}
	return &Overlay{Durable: durable, Ephemeral: ephemeral}
}

func (o *Overlay) Users() Users                           { return o.Durable.Users() }
func (o *Overlay) Clients() Clients                       { return o.Durable.Clients() }
func (o *Overlay) AuthorizationCodes() AuthorizationCodes { return o.Ephemeral.AuthorizationCodes() }
func (o *Overlay) AccessTokens() AccessTokens             { return o.Ephemeral.AccessTokens() }
func (o *Overlay) SSOSessions() SSOSessions               { return o.Ephemeral.SSOSessions() }

func (o *Overlay) Ping(ctx context.Context) error {
	return errors.Join(o.Durable.Ping(ctx), o.Ephemeral.Ping(ctx))
}

func (o *Overlay) Close() error {
	return errors.Join(o.Ephemeral.Close(), o.Durable.Close())
}

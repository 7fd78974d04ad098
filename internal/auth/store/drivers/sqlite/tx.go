package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/authz/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the outer DB stays open.
func (t *txStore) Close() error { return nil }

// Ping is a no-op, the connection is already held by the transaction.
func (t *txStore) Ping(context.Context) error { return nil }

func (t *txStore) Users() store.Users     { return &usersRepo{q: t.tx} }
func (t *txStore) Clients() store.Clients { return &clientsRepo{q: t.tx} }
func (t *txStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{q: t.tx}
}
func (t *txStore) AccessTokens() store.AccessTokens { return &accessTokensRepo{q: t.tx} }
func (t *txStore) SSOSessions() store.SSOSessions   { return &ssoSessionsRepo{q: t.tx} }

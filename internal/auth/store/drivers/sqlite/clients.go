package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
)

type clientsRepo struct {
	q querier
}

const clientColumns = `id, name, secret_hash, redirect_uri, redirect_pattern, logout_uri, logout_pattern,
    access_token_ttl_ms, refresh_token_ttl_ms, scopes, enabled,
    allow_authorization_code, allow_refresh_token, allow_login_token, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) UpsertClient(ctx context.Context, c domain.Client) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO clients (`+clientColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name                     = excluded.name,
    secret_hash              = excluded.secret_hash,
    redirect_uri             = excluded.redirect_uri,
    redirect_pattern         = excluded.redirect_pattern,
    logout_uri               = excluded.logout_uri,
    logout_pattern           = excluded.logout_pattern,
    access_token_ttl_ms      = excluded.access_token_ttl_ms,
    refresh_token_ttl_ms     = excluded.refresh_token_ttl_ms,
    scopes                   = excluded.scopes,
    enabled                  = excluded.enabled,
    allow_authorization_code = excluded.allow_authorization_code,
    allow_refresh_token      = excluded.allow_refresh_token,
    allow_login_token        = excluded.allow_login_token,
    updated_at               = excluded.updated_at`,
		c.ID, c.Name, mapStringNull(c.SecretHash),
		c.RedirectURI, c.RedirectPattern, c.LogoutURI, c.LogoutPattern,
		durationMillis(c.AccessTokenTTL), durationMillis(c.RefreshTokenTTL),
		joinScopes(c.Scopes), boolInt(c.Enabled),
		boolInt(c.AllowAuthorizationCode), boolInt(c.AllowRefreshToken), boolInt(c.AllowLoginToken),
		toMillis(c.CreatedAt), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *clientsRepo) DeleteClient(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	return err
}

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		c                      domain.Client
		secret                 sql.NullString
		accessTTL, refreshTTL  int64
		scopes                 string
		enabled, code, ref, lt int
		createdAt, updatedAt   int64
	)
	err := row.Scan(
		&c.ID, &c.Name, &secret, &c.RedirectURI, &c.RedirectPattern, &c.LogoutURI, &c.LogoutPattern,
		&accessTTL, &refreshTTL, &scopes, &enabled,
		&code, &ref, &lt, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Client{}, err
	}
	c.SecretHash = mapNullString(secret)
	c.AccessTokenTTL = millisDuration(accessTTL)
	c.RefreshTokenTTL = millisDuration(refreshTTL)
	c.Scopes = splitScopes(scopes)
	c.Enabled = enabled != 0
	c.AllowAuthorizationCode = code != 0
	c.AllowRefreshToken = ref != 0
	c.AllowLoginToken = lt != 0
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

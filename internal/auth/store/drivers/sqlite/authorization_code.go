package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

type authorizationCodesRepo struct {
	q querier
}

const codeColumns = `client_id, user_id, session_id, redirect_uri, scopes, params, expires_in_ms, created_at`

func (r *authorizationCodesRepo) Save(ctx context.Context, c domain.AuthorizationCode) error {
	params, err := encodeParams(c.Params)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
INSERT INTO authorization_codes (code_hash, `+codeColumns+`, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cryptox.FingerprintToken(c.Code),
		c.ClientID, c.UserID, c.SessionID, c.RedirectURI, joinScopes(c.Scopes), params,
		durationMillis(c.ExpiresIn), toMillis(c.CreatedAt), toMillis(c.ExpiresAt()),
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) Load(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM authorization_codes WHERE code_hash = ?`,
		cryptox.FingerprintToken(code),
	)
	return scanCode(row, code)
}

// RemoveAndLoad relies on DELETE ... RETURNING so the read and the delete
// are one statement.
func (r *authorizationCodesRepo) RemoveAndLoad(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	row := r.q.QueryRowContext(ctx,
		`DELETE FROM authorization_codes WHERE code_hash = ? RETURNING `+codeColumns,
		cryptox.FingerprintToken(code),
	)
	return scanCode(row, code)
}

func (r *authorizationCodesRepo) Remove(ctx context.Context, code string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM authorization_codes WHERE code_hash = ?`, cryptox.FingerprintToken(code))
	return err
}

func (r *authorizationCodesRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanCode(row rowScanner, code string) (domain.AuthorizationCode, error) {
	var (
		c                    domain.AuthorizationCode
		scopes, params       string
		expiresIn, createdAt int64
	)
	err := row.Scan(&c.ClientID, &c.UserID, &c.SessionID, &c.RedirectURI, &scopes, &params, &expiresIn, &createdAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	if c.Params, err = decodeParams(params); err != nil {
		return domain.AuthorizationCode{}, err
	}
	c.Code = code
	c.Scopes = splitScopes(scopes)
	c.ExpiresIn = millisDuration(expiresIn)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

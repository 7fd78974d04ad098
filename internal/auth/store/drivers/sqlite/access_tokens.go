package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

type accessTokensRepo struct {
	q querier
}

const tokenColumns = `client_id, user_id, session_id, scopes, params, expires_in_ms, refresh_expires_in_ms, created_at`

func (r *accessTokensRepo) Save(ctx context.Context, t domain.AccessToken) error {
	params, err := encodeParams(t.Params)
	if err != nil {
		return err
	}

	var refreshHash sql.NullString
	if t.RefreshToken != "" {
		refreshHash = mapStringNull(cryptox.FingerprintToken(t.RefreshToken))
	}

	purgeAt := t.ExpiresAt()
	if t.HasRefresh() {
		if refreshEnd := t.CreatedAt.Add(t.RefreshExpiresIn); refreshEnd.After(purgeAt) {
			purgeAt = refreshEnd
		}
	}

	_, err = r.q.ExecContext(ctx, `
INSERT INTO access_tokens (token_hash, refresh_hash, `+tokenColumns+`, purge_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cryptox.FingerprintToken(t.Token), refreshHash,
		t.ClientID, t.UserID, t.SessionID, joinScopes(t.Scopes), params,
		durationMillis(t.ExpiresIn), durationMillis(t.RefreshExpiresIn), toMillis(t.CreatedAt),
		toMillis(purgeAt),
	)
	return mapConstraint(err)
}

func (r *accessTokensRepo) Load(ctx context.Context, token string) (domain.AccessToken, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE token_hash = ?`,
		cryptox.FingerprintToken(token),
	)
	t, err := scanToken(row)
	if err != nil {
		return domain.AccessToken{}, err
	}
	t.Token = token
	return t, nil
}

func (r *accessTokensRepo) RemoveAndLoadByRefresh(ctx context.Context, refresh string) (domain.AccessToken, error) {
	row := r.q.QueryRowContext(ctx,
		`DELETE FROM access_tokens WHERE refresh_hash = ? RETURNING `+tokenColumns,
		cryptox.FingerprintToken(refresh),
	)
	t, err := scanToken(row)
	if err != nil {
		return domain.AccessToken{}, err
	}
	t.RefreshToken = refresh
	return t, nil
}

func (r *accessTokensRepo) Remove(ctx context.Context, token string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM access_tokens WHERE token_hash = ?`, cryptox.FingerprintToken(token))
	return err
}

// Evict rekeys the row under its refresh fingerprint, which is unique, so
// the access token no longer matches any token_hash.
func (r *accessTokensRepo) Evict(ctx context.Context, token string) error {
	hash := cryptox.FingerprintToken(token)
	res, err := r.q.ExecContext(ctx,
		`UPDATE access_tokens SET token_hash = 'evicted:' || refresh_hash WHERE token_hash = ? AND refresh_hash IS NOT NULL`,
		hash,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	_, err = r.q.ExecContext(ctx, `DELETE FROM access_tokens WHERE token_hash = ?`, hash)
	return err
}

func (r *accessTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM access_tokens WHERE purge_at < ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanToken(row rowScanner) (domain.AccessToken, error) {
	var (
		t                               domain.AccessToken
		scopes, params                  string
		expiresIn, refreshIn, createdAt int64
	)
	err := row.Scan(&t.ClientID, &t.UserID, &t.SessionID, &scopes, &params, &expiresIn, &refreshIn, &createdAt)
	if err != nil {
		return domain.AccessToken{}, mapNotFound(err)
	}
	if t.Params, err = decodeParams(params); err != nil {
		return domain.AccessToken{}, err
	}
	t.Scopes = splitScopes(scopes)
	t.ExpiresIn = millisDuration(expiresIn)
	t.RefreshExpiresIn = millisDuration(refreshIn)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

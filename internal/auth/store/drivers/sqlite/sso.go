package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
)

type ssoSessionsRepo struct {
	q querier
}

func (r *ssoSessionsRepo) SaveSession(ctx context.Context, s domain.SSOSession) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO sso_sessions (id, user_id, username, token_hash, token_sid, expires_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Username, s.TokenHash, s.TokenSID, toMillis(s.ExpiresAt), toMillis(s.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *ssoSessionsRepo) LoadSession(ctx context.Context, username, tokenHash string) (domain.SSOSession, error) {
	var (
		s                    domain.SSOSession
		expiresAt, createdAt int64
	)
	err := r.q.QueryRowContext(ctx, `
SELECT id, user_id, username, token_hash, token_sid, expires_at, created_at
FROM sso_sessions WHERE username = ? AND token_hash = ?`,
		username, tokenHash,
	).Scan(&s.ID, &s.UserID, &s.Username, &s.TokenHash, &s.TokenSID, &expiresAt, &createdAt)
	if err != nil {
		return domain.SSOSession{}, mapNotFound(err)
	}
	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (r *ssoSessionsRepo) SaveLogin(ctx context.Context, l domain.SSOLogin) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO sso_logins (id, session_id, client_id, logout_uri, login_at, initial)
VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.SessionID, l.ClientID, l.LogoutURI, toMillis(l.LoginAt), boolInt(l.Initial),
	)
	return mapConstraint(err)
}

func (r *ssoSessionsRepo) ListLogins(ctx context.Context, sessionID string) ([]domain.SSOLogin, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id, session_id, client_id, logout_uri, login_at, initial
FROM sso_logins WHERE session_id = ? ORDER BY login_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var logins []domain.SSOLogin
	for rows.Next() {
		var (
			l       domain.SSOLogin
			loginAt int64
			initial int
		)
		if err := rows.Scan(&l.ID, &l.SessionID, &l.ClientID, &l.LogoutURI, &loginAt, &initial); err != nil {
			return nil, err
		}
		l.LoginAt = fromMillis(loginAt)
		l.Initial = initial != 0
		logins = append(logins, l)
	}
	return logins, rows.Err()
}

func (r *ssoSessionsRepo) RemoveSession(ctx context.Context, sessionID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM sso_logins WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `DELETE FROM sso_sessions WHERE id = ?`, sessionID)
	return err
}

func (r *ssoSessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := toMillis(now)
	if _, err := r.q.ExecContext(ctx, `
DELETE FROM sso_logins
WHERE session_id IN (SELECT id FROM sso_sessions WHERE expires_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM sso_sessions WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

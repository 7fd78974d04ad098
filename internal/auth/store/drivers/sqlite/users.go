package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, username, preferred_name, password_hash, totp_secret, disabled, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) UpsertUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    username       = excluded.username,
    preferred_name = excluded.preferred_name,
    password_hash  = excluded.password_hash,
    totp_secret    = excluded.totp_secret,
    disabled       = excluded.disabled,
    updated_at     = excluded.updated_at`,
		u.ID, u.Username, u.PreferredName, u.PasswordHash, mapStringNull(u.TOTPSecret),
		boolInt(u.Disabled), toMillis(u.CreatedAt), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *usersRepo) SetUserDisabled(ctx context.Context, id string, disabled bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET disabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(disabled), toMillis(time.Now()), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                    domain.User
		totp                 sql.NullString
		disabled             int
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PreferredName, &u.PasswordHash, &totp, &disabled, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.TOTPSecret = mapNullString(totp)
	u.Disabled = disabled != 0
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

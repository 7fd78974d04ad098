package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. It exposes one sub-repository per
// record type. Drivers may serve only some of them; Overlay composes a
// durable driver for clients and users with an ephemeral one for codes,
// tokens and sessions.
type Store interface {
	Users() Users
	Clients() Clients
	AuthorizationCodes() AuthorizationCodes
	AccessTokens() AccessTokens
	SSOSessions() SSOSessions

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

// Tx is a transactional store. The caller MUST call Commit or Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Transactional is implemented by drivers that support multi-step atomic
// writes, such as loading seed data.
type Transactional interface {
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername looks a user up by login name.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// UpsertUser inserts a user or replaces the record with the same id.
	UpsertUser(ctx context.Context, u domain.User) error

	SetUserDisabled(ctx context.Context, id string, disabled bool) error
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients returns all clients ordered by id.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// UpsertClient inserts a client or replaces the record with the same id.
	UpsertClient(ctx context.Context, c domain.Client) error

	DeleteClient(ctx context.Context, id string) error
}

// AuthorizationCodes keeps one-time codes. Records are keyed by the
// fingerprint of the code.
type AuthorizationCodes interface {
	Save(ctx context.Context, code domain.AuthorizationCode) error

	Load(ctx context.Context, code string) (domain.AuthorizationCode, error)

	// RemoveAndLoad deletes the code and returns it in a single atomic step.
	// Of any number of concurrent callers with the same code at most one
	// gets the record; the others get ErrNotFound.
	RemoveAndLoad(ctx context.Context, code string) (domain.AuthorizationCode, error)

	// Remove is idempotent.
	Remove(ctx context.Context, code string) error

	// DeleteExpired drops codes that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AccessTokens keeps issued tokens keyed by the fingerprints of the access
// and refresh token values.
type AccessTokens interface {
	Save(ctx context.Context, t domain.AccessToken) error

	Load(ctx context.Context, token string) (domain.AccessToken, error)

	// RemoveAndLoadByRefresh atomically consumes the record that owns the
	// refresh token, so a refresh token rotates at most once.
	RemoveAndLoadByRefresh(ctx context.Context, refresh string) (domain.AccessToken, error)

	// Remove is idempotent.
	Remove(ctx context.Context, token string) error

	// Evict stops the access token value from resolving while keeping the
	// record redeemable by its refresh token. Records without a refresh
	// token are removed. It is idempotent.
	Evict(ctx context.Context, token string) error

	// DeleteExpired drops records whose access and refresh lifetimes both
	// ended before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SSOSessions keeps login sessions and the client logins joined to them.
type SSOSessions interface {
	SaveSession(ctx context.Context, s domain.SSOSession) error

	// LoadSession finds the session of username created with the session
	// token whose fingerprint is tokenHash.
	LoadSession(ctx context.Context, username, tokenHash string) (domain.SSOSession, error)

	SaveLogin(ctx context.Context, l domain.SSOLogin) error

	// ListLogins returns the logins of a session, oldest first.
	ListLogins(ctx context.Context, sessionID string) ([]domain.SSOLogin, error)

	// RemoveSession deletes a session and its logins. It is idempotent.
	RemoveSession(ctx context.Context, sessionID string) error

	// DeleteExpired drops sessions that expired before now, with their logins.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Package redis keeps authorization codes, access tokens and SSO sessions in
// Redis. Clients and users are not served here; compose it with a durable
// driver through store.NewOverlay.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultConnectTries = 5

	// expiryGrace keeps expired codes readable for a while so the grant
	// can tell an expired code from an unknown one.
	expiryGrace = 5 * time.Minute
)

// ErrUnsupported is returned by the user and client repositories.
var ErrUnsupported = errors.New("redis: users and clients live in the durable store")

type Config struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ConnectTries bounds the startup ping attempts.
	ConnectTries uint
}

type Store struct {
	client goredis.UniversalClient
	prefix string
}

// NewStore connects to Redis, retrying the first ping with exponential
// backoff so the server can start alongside its Redis container.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ConnectTries == 0 {
		cfg.ConnectTries = DefaultConnectTries
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(cfg.ConnectTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("redis not reachable, retrying", "addr", cfg.Addr, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect to %s: %w", cfg.Addr, err)
	}

	return NewStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewStoreWithClient wraps an existing client, for example one pointed at
// miniredis in tests.
func NewStoreWithClient(client goredis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) Users() store.Users                           { return unsupportedUsers{} }
func (s *Store) Clients() store.Clients                       { return unsupportedClients{} }
func (s *Store) AuthorizationCodes() store.AuthorizationCodes { return &authorizationCodesRepo{s} }
func (s *Store) AccessTokens() store.AccessTokens             { return &accessTokensRepo{s} }
func (s *Store) SSOSessions() store.SSOSessions               { return &ssoSessionsRepo{s} }

func (s *Store) key(kind, id string) string { return s.prefix + kind + ":" + id }

func getJSON[T any](cmd *goredis.StringCmd) (T, error) {
	var out T
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return out, store.ErrNotFound
		}
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("redis: decode record: %w", err)
	}
	return out, nil
}

// ttlUntil is the time left until at plus the grace period, never below a
// second so the record is still written.
func ttlUntil(at time.Time) time.Duration {
	ttl := time.Until(at) + expiryGrace
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

type unsupportedUsers struct{}

func (unsupportedUsers) GetUserByID(context.Context, string) (domain.User, error) {
	return domain.User{}, ErrUnsupported
}

func (unsupportedUsers) GetUserByUsername(context.Context, string) (domain.User, error) {
	return domain.User{}, ErrUnsupported
}

func (unsupportedUsers) UpsertUser(context.Context, domain.User) error { return ErrUnsupported }

func (unsupportedUsers) SetUserDisabled(context.Context, string, bool) error { return ErrUnsupported }

type unsupportedClients struct{}

func (unsupportedClients) GetClientByID(context.Context, string) (domain.Client, error) {
	return domain.Client{}, ErrUnsupported
}

func (unsupportedClients) ListClients(context.Context) ([]domain.Client, error) {
	return nil, ErrUnsupported
}

func (unsupportedClients) UpsertClient(context.Context, domain.Client) error { return ErrUnsupported }

func (unsupportedClients) DeleteClient(context.Context, string) error { return ErrUnsupported }

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/idx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSeed = errors.New("invalid seed data")

// Seed is the set of clients and users loaded at startup. Entries are
// upserted, so a seed file can be applied on every boot.
type Seed struct {
	Clients []SeedClient `yaml:"clients"`
	Users   []SeedUser   `yaml:"users"`
}

type SeedClient struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Secret is hashed before it is stored. SecretHash is taken as is.
	// Neither makes a public client.
	Secret     string `yaml:"secret"`
	SecretHash string `yaml:"secret_hash"`

	RedirectURI     string `yaml:"redirect_uri"`
	RedirectPattern string `yaml:"redirect_pattern"`
	LogoutURI       string `yaml:"logout_uri"`
	LogoutPattern   string `yaml:"logout_pattern"`

	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`

	Scopes   []string `yaml:"scopes"`
	Disabled bool     `yaml:"disabled"`

	AllowAuthorizationCode bool `yaml:"allow_authorization_code"`
	AllowRefreshToken      bool `yaml:"allow_refresh_token"`
	AllowLoginToken        bool `yaml:"allow_login_token"`
}

type SeedUser struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	Name         string `yaml:"name"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	TOTPSecret   string `yaml:"totp_secret"`
	Disabled     bool   `yaml:"disabled"`
}

// ReadSeed decodes a YAML seed document. Unknown fields are rejected.
func ReadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Seed
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSeedFile reads and decodes the seed file at path.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return ReadSeed(f)
}

func (s *Seed) validate() error {
	clientIDs := make(map[string]struct{}, len(s.Clients))
	for i, c := range s.Clients {
		if c.ID == "" {
			return fmt.Errorf("%w: clients[%d] has no id", ErrInvalidSeed, i)
		}
		if _, dup := clientIDs[c.ID]; dup {
			return fmt.Errorf("%w: duplicate client %q", ErrInvalidSeed, c.ID)
		}
		clientIDs[c.ID] = struct{}{}
	}

	usernames := make(map[string]struct{}, len(s.Users))
	for i, u := range s.Users {
		if u.Username == "" {
			return fmt.Errorf("%w: users[%d] has no username", ErrInvalidSeed, i)
		}
		if u.Password == "" && u.PasswordHash == "" {
			return fmt.Errorf("%w: user %q has no password", ErrInvalidSeed, u.Username)
		}
		if _, dup := usernames[u.Username]; dup {
			return fmt.Errorf("%w: duplicate user %q", ErrInvalidSeed, u.Username)
		}
		usernames[u.Username] = struct{}{}
	}
	return nil
}

// Apply upserts every client and user in one transaction. Users without an
// id keep the id of an existing user with the same username, or get a new
// one.
func (s *Seed) Apply(ctx context.Context, db store.Transactional) error {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	clients := make([]domain.Client, 0, len(s.Clients))
	for _, sc := range s.Clients {
		c, err := sc.toDomain(now)
		if err != nil {
			return err
		}
		clients = append(clients, c)
	}

	err := db.WithTx(ctx, func(tx store.Tx) error {
		for _, c := range clients {
			if err := tx.Clients().UpsertClient(ctx, c); err != nil {
				return fmt.Errorf("seed client %q: %w", c.ID, err)
			}
		}
		for _, su := range s.Users {
			u, err := su.toDomain(ctx, tx.Users(), now)
			if err != nil {
				return err
			}
			if err := tx.Users().UpsertUser(ctx, u); err != nil {
				return fmt.Errorf("seed user %q: %w", u.Username, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Info("seed data applied", "clients", len(s.Clients), "users", len(s.Users))
	return nil
}

func (sc SeedClient) toDomain(now time.Time) (domain.Client, error) {
	hash := sc.SecretHash
	if sc.Secret != "" {
		var err error
		if hash, err = cryptox.HashPassword(sc.Secret); err != nil {
			return domain.Client{}, fmt.Errorf("hash secret of client %q: %w", sc.ID, err)
		}
	}
	name := sc.Name
	if name == "" {
		name = sc.ID
	}
	return domain.Client{
		ID:                     sc.ID,
		Name:                   name,
		SecretHash:             hash,
		RedirectURI:            sc.RedirectURI,
		RedirectPattern:        sc.RedirectPattern,
		LogoutURI:              sc.LogoutURI,
		LogoutPattern:          sc.LogoutPattern,
		AccessTokenTTL:         sc.AccessTokenTTL,
		RefreshTokenTTL:        sc.RefreshTokenTTL,
		Scopes:                 sc.Scopes,
		Enabled:                !sc.Disabled,
		AllowAuthorizationCode: sc.AllowAuthorizationCode,
		AllowRefreshToken:      sc.AllowRefreshToken,
		AllowLoginToken:        sc.AllowLoginToken,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

func (su SeedUser) toDomain(ctx context.Context, users store.Users, now time.Time) (domain.User, error) {
	id := su.ID
	createdAt := now
	existing, err := users.GetUserByUsername(ctx, su.Username)
	switch {
	case err == nil:
		if id == "" {
			id = existing.ID
		}
		createdAt = existing.CreatedAt
	case errors.Is(err, store.ErrNotFound):
		if id == "" {
			id = idx.NewString()
		}
	default:
		return domain.User{}, err
	}

	hash := su.PasswordHash
	if su.Password != "" {
		if hash, err = cryptox.HashPassword(su.Password); err != nil {
			return domain.User{}, fmt.Errorf("hash password of user %q: %w", su.Username, err)
		}
	}
	name := su.Name
	if name == "" {
		name = su.Username
	}
	return domain.User{
		ID:            id,
		Username:      su.Username,
		PreferredName: name,
		PasswordHash:  hash,
		TOTPSecret:    su.TOTPSecret,
		Disabled:      su.Disabled,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}, nil
}

package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/internal/auth/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "authz.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := domain.User{ID: "u1", Username: "alice", PreferredName: "Alice", PasswordHash: "hash"}
	require.NoError(t, s.Users().UpsertUser(ctx, u))

	t.Run("lookup by id and username", func(t *testing.T) {
		got, err := s.Users().GetUserByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "alice", got.Username)
		require.False(t, got.HasTOTP())

		got, err = s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "u1", got.ID)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		u.PreferredName = "Al"
		u.TOTPSecret = "JBSWY3DPEHPK3PXP"
		require.NoError(t, s.Users().UpsertUser(ctx, u))

		got, err := s.Users().GetUserByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Al", got.PreferredName)
		require.True(t, got.HasTOTP())
	})

	t.Run("duplicate username", func(t *testing.T) {
		err := s.Users().UpsertUser(ctx, domain.User{ID: "u2", Username: "alice", PasswordHash: "x"})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("disable", func(t *testing.T) {
		require.NoError(t, s.Users().SetUserDisabled(ctx, "u1", true))
		got, err := s.Users().GetUserByID(ctx, "u1")
		require.NoError(t, err)
		require.True(t, got.Disabled)

		require.ErrorIs(t, s.Users().SetUserDisabled(ctx, "missing", true), store.ErrNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.Users().GetUserByUsername(ctx, "bob")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestClients(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := domain.Client{
		ID:                "web",
		Name:              "Web",
		SecretHash:        "secret-hash",
		RedirectURI:       "https://app.example/cb",
		RedirectPattern:   `https://app\.example/.*`,
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		Scopes:            []string{"openid", "profile"},
		Enabled:           true,
		AllowRefreshToken: true,
	}
	require.NoError(t, s.Clients().UpsertClient(ctx, c))
	require.NoError(t, s.Clients().UpsertClient(ctx, domain.Client{ID: "cli", Enabled: true}))

	got, err := s.Clients().GetClientByID(ctx, "web")
	require.NoError(t, err)
	require.Equal(t, c.RedirectPattern, got.RedirectPattern)
	require.Equal(t, 15*time.Minute, got.AccessTokenTTL)
	require.Equal(t, []string{"openid", "profile"}, got.Scopes)
	require.True(t, got.AllowRefreshToken)
	require.False(t, got.IsPublic())

	list, err := s.Clients().ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "cli", list[0].ID)
	require.True(t, list[0].IsPublic())

	require.NoError(t, s.Clients().DeleteClient(ctx, "cli"))
	_, err = s.Clients().GetClientByID(ctx, "cli")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuthorizationCodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	codes := s.AuthorizationCodes()
	now := time.Now().Truncate(time.Millisecond)

	code := domain.AuthorizationCode{
		Code:        "code-1",
		ClientID:    "web",
		UserID:      "u1",
		SessionID:   "sess-1",
		RedirectURI: "https://app.example/cb",
		Scopes:      []string{"openid"},
		Params:      domain.Params{{Key: "nonce", Value: "n-1"}},
		ExpiresIn:   time.Minute,
		CreatedAt:   now,
	}
	require.NoError(t, codes.Save(ctx, code))

	t.Run("load keeps the code", func(t *testing.T) {
		got, err := codes.Load(ctx, "code-1")
		require.NoError(t, err)
		require.Equal(t, "code-1", got.Code)
		require.Equal(t, "n-1", got.Params.Value("nonce"))
		require.Equal(t, now.UnixMilli(), got.CreatedAt.UnixMilli())
	})

	t.Run("remove and load is single use", func(t *testing.T) {
		got, err := codes.RemoveAndLoad(ctx, "code-1")
		require.NoError(t, err)
		require.Equal(t, "sess-1", got.SessionID)

		_, err = codes.RemoveAndLoad(ctx, "code-1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent consumers", func(t *testing.T) {
		code.Code = "code-race"
		require.NoError(t, codes.Save(ctx, code))

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := codes.RemoveAndLoad(ctx, "code-race"); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, codes.Remove(ctx, "never-saved"))
	})

	t.Run("delete expired", func(t *testing.T) {
		code.Code = "old"
		code.CreatedAt = now.Add(-time.Hour)
		require.NoError(t, codes.Save(ctx, code))
		code.Code = "fresh"
		code.CreatedAt = now
		require.NoError(t, codes.Save(ctx, code))

		n, err := codes.DeleteExpired(ctx, now)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		_, err = codes.Load(ctx, "fresh")
		require.NoError(t, err)
	})
}

func TestAccessTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tokens := s.AccessTokens()
	now := time.Now()

	tok := domain.AccessToken{
		Token:            "at-1",
		RefreshToken:     "rt-1",
		ClientID:         "web",
		UserID:           "u1",
		Scopes:           []string{"openid"},
		CreatedAt:        now,
		ExpiresIn:        time.Minute,
		RefreshExpiresIn: time.Hour,
	}
	require.NoError(t, tokens.Save(ctx, tok))

	t.Run("load by access token", func(t *testing.T) {
		got, err := tokens.Load(ctx, "at-1")
		require.NoError(t, err)
		require.Equal(t, "at-1", got.Token)
		require.Empty(t, got.RefreshToken)
		require.True(t, got.HasRefresh())
	})

	t.Run("client only tokens share the null refresh slot", func(t *testing.T) {
		for _, v := range []string{"cc-1", "cc-2"} {
			require.NoError(t, tokens.Save(ctx, domain.AccessToken{
				Token: v, ClientID: "svc", CreatedAt: now, ExpiresIn: time.Minute,
			}))
		}
		got, err := tokens.Load(ctx, "cc-2")
		require.NoError(t, err)
		require.True(t, got.IsClientOnly())
		require.False(t, got.HasRefresh())
	})

	t.Run("refresh consumes the record", func(t *testing.T) {
		got, err := tokens.RemoveAndLoadByRefresh(ctx, "rt-1")
		require.NoError(t, err)
		require.Equal(t, "u1", got.UserID)
		require.Equal(t, "rt-1", got.RefreshToken)

		_, err = tokens.RemoveAndLoadByRefresh(ctx, "rt-1")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = tokens.Load(ctx, "at-1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired access with live refresh survives sweep", func(t *testing.T) {
		require.NoError(t, tokens.Save(ctx, domain.AccessToken{
			Token: "at-2", RefreshToken: "rt-2", UserID: "u1",
			CreatedAt: now.Add(-10 * time.Minute), ExpiresIn: time.Minute, RefreshExpiresIn: time.Hour,
		}))
		require.NoError(t, tokens.Save(ctx, domain.AccessToken{
			Token: "at-3", UserID: "u1",
			CreatedAt: now.Add(-10 * time.Minute), ExpiresIn: time.Minute,
		}))

		n, err := tokens.DeleteExpired(ctx, now)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		_, err = tokens.Load(ctx, "at-2")
		require.NoError(t, err)
		_, err = tokens.Load(ctx, "at-3")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("evict keeps the refresh record", func(t *testing.T) {
		require.NoError(t, tokens.Save(ctx, domain.AccessToken{
			Token: "at-4", RefreshToken: "rt-4", UserID: "u1",
			CreatedAt: now, ExpiresIn: time.Minute, RefreshExpiresIn: time.Hour,
		}))
		require.NoError(t, tokens.Evict(ctx, "at-4"))
		require.NoError(t, tokens.Evict(ctx, "at-4"))

		_, err := tokens.Load(ctx, "at-4")
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := tokens.RemoveAndLoadByRefresh(ctx, "rt-4")
		require.NoError(t, err)
		require.Equal(t, "u1", got.UserID)
	})

	t.Run("evict removes tokens without refresh", func(t *testing.T) {
		require.NoError(t, tokens.Save(ctx, domain.AccessToken{
			Token: "at-5", ClientID: "svc", CreatedAt: now, ExpiresIn: time.Minute,
		}))
		require.NoError(t, tokens.Evict(ctx, "at-5"))

		_, err := tokens.Load(ctx, "at-5")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestSSOSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sso := s.SSOSessions()
	now := time.Now().Truncate(time.Millisecond)

	sess := domain.SSOSession{
		ID: "s1", UserID: "u1", Username: "alice", TokenHash: "th", TokenSID: "sid",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	require.NoError(t, sso.SaveSession(ctx, sess))

	t.Run("second session with the same token conflicts", func(t *testing.T) {
		dup := sess
		dup.ID = "s2"
		require.ErrorIs(t, sso.SaveSession(ctx, dup), store.ErrAlreadyExists)

		got, err := sso.LoadSession(ctx, "alice", "th")
		require.NoError(t, err)
		require.Equal(t, "s1", got.ID)
	})

	t.Run("logins are listed oldest first", func(t *testing.T) {
		require.NoError(t, sso.SaveLogin(ctx, domain.SSOLogin{ID: "l2", SessionID: "s1", ClientID: "b", LoginAt: now.Add(time.Second)}))
		require.NoError(t, sso.SaveLogin(ctx, domain.SSOLogin{ID: "l1", SessionID: "s1", ClientID: "a", LoginAt: now, Initial: true}))

		logins, err := sso.ListLogins(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, logins, 2)
		require.Equal(t, "a", logins[0].ClientID)
		require.True(t, logins[0].Initial)
		require.False(t, logins[1].Initial)
	})

	t.Run("remove session drops logins", func(t *testing.T) {
		require.NoError(t, sso.RemoveSession(ctx, "s1"))
		require.NoError(t, sso.RemoveSession(ctx, "s1"))

		_, err := sso.LoadSession(ctx, "alice", "th")
		require.ErrorIs(t, err, store.ErrNotFound)
		logins, err := sso.ListLogins(ctx, "s1")
		require.NoError(t, err)
		require.Empty(t, logins)
	})

	t.Run("delete expired", func(t *testing.T) {
		old := sess
		old.ID, old.TokenHash, old.ExpiresAt = "s-old", "th-old", now.Add(-time.Minute)
		require.NoError(t, sso.SaveSession(ctx, old))
		require.NoError(t, sso.SaveLogin(ctx, domain.SSOLogin{ID: "l-old", SessionID: "s-old", LoginAt: now}))

		n, err := sso.DeleteExpired(ctx, now)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
	})
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Clients().UpsertClient(ctx, domain.Client{ID: "tmp"}))
		return store.ErrAlreadyExists
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = s.Clients().GetClientByID(ctx, "tmp")
	require.ErrorIs(t, err, store.ErrNotFound)
}

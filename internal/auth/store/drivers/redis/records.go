package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/domain"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyTypeCode       = "code"
	keyTypeToken      = "token"
	keyTypeRefresh    = "refresh"
	keyTypeEvicted    = "token_evicted"
	keyTypeSession    = "sso"
	keyTypeSessionIdx = "sso_idx"
	keyTypeLogins     = "sso_logins"
)

type storedCode struct {
	ClientID    string        `json:"client_id,omitempty"`
	UserID      string        `json:"user_id"`
	SessionID   string        `json:"session_id,omitempty"`
	RedirectURI string        `json:"redirect_uri,omitempty"`
	Scopes      []string      `json:"scopes,omitempty"`
	Params      domain.Params `json:"params,omitempty"`
	ExpiresIn   int64         `json:"expires_in_ms"`
	CreatedAt   int64         `json:"created_at"`
}

type authorizationCodesRepo struct{ s *Store }

func (r *authorizationCodesRepo) codeKey(code string) string {
	return r.s.key(keyTypeCode, cryptox.FingerprintToken(code))
}

func (r *authorizationCodesRepo) Save(ctx context.Context, c domain.AuthorizationCode) error {
	data, err := json.Marshal(storedCode{
		ClientID:    c.ClientID,
		UserID:      c.UserID,
		SessionID:   c.SessionID,
		RedirectURI: c.RedirectURI,
		Scopes:      c.Scopes,
		Params:      c.Params,
		ExpiresIn:   c.ExpiresIn.Milliseconds(),
		CreatedAt:   c.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	ok, err := r.s.client.SetNX(ctx, r.codeKey(c.Code), data, ttlUntil(c.ExpiresAt())).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *authorizationCodesRepo) Load(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	rec, err := getJSON[storedCode](r.s.client.Get(ctx, r.codeKey(code)))
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	return rec.toDomain(code), nil
}

// RemoveAndLoad uses GETDEL, so concurrent callers race on a single command.
func (r *authorizationCodesRepo) RemoveAndLoad(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	rec, err := getJSON[storedCode](r.s.client.GetDel(ctx, r.codeKey(code)))
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	return rec.toDomain(code), nil
}

func (r *authorizationCodesRepo) Remove(ctx context.Context, code string) error {
	return r.s.client.Del(ctx, r.codeKey(code)).Err()
}

// DeleteExpired is a no-op; keys carry their own TTL.
func (r *authorizationCodesRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (c storedCode) toDomain(code string) domain.AuthorizationCode {
	return domain.AuthorizationCode{
		Code:        code,
		ClientID:    c.ClientID,
		UserID:      c.UserID,
		SessionID:   c.SessionID,
		RedirectURI: c.RedirectURI,
		Scopes:      c.Scopes,
		Params:      c.Params,
		ExpiresIn:   time.Duration(c.ExpiresIn) * time.Millisecond,
		CreatedAt:   time.UnixMilli(c.CreatedAt).UTC(),
	}
}

type storedToken struct {
	TokenHash        string        `json:"token_hash"`
	RefreshHash      string        `json:"refresh_hash,omitempty"`
	ClientID         string        `json:"client_id,omitempty"`
	UserID           string        `json:"user_id,omitempty"`
	SessionID        string        `json:"session_id,omitempty"`
	Scopes           []string      `json:"scopes,omitempty"`
	Params           domain.Params `json:"params,omitempty"`
	ExpiresIn        int64         `json:"expires_in_ms"`
	RefreshExpiresIn int64         `json:"refresh_expires_in_ms,omitempty"`
	CreatedAt        int64         `json:"created_at"`
}

type accessTokensRepo struct{ s *Store }

// Save writes the token record and, when a refresh token was issued, a
// refresh key pointing at it. Both live until the later of the two expiries.
func (r *accessTokensRepo) Save(ctx context.Context, t domain.AccessToken) error {
	rec := storedToken{
		TokenHash:        cryptox.FingerprintToken(t.Token),
		ClientID:         t.ClientID,
		UserID:           t.UserID,
		SessionID:        t.SessionID,
		Scopes:           t.Scopes,
		Params:           t.Params,
		ExpiresIn:        t.ExpiresIn.Milliseconds(),
		RefreshExpiresIn: t.RefreshExpiresIn.Milliseconds(),
		CreatedAt:        t.CreatedAt.UnixMilli(),
	}
	if t.RefreshToken != "" {
		rec.RefreshHash = cryptox.FingerprintToken(t.RefreshToken)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	purgeAt := t.ExpiresAt()
	if t.HasRefresh() {
		if end := t.CreatedAt.Add(t.RefreshExpiresIn); end.After(purgeAt) {
			purgeAt = end
		}
	}
	ttl := ttlUntil(purgeAt)

	_, err = r.s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.s.key(keyTypeToken, rec.TokenHash), data, ttl)
		if rec.RefreshHash != "" {
			pipe.Set(ctx, r.s.key(keyTypeRefresh, rec.RefreshHash), rec.TokenHash, ttl)
		}
		return nil
	})
	return err
}

func (r *accessTokensRepo) Load(ctx context.Context, token string) (domain.AccessToken, error) {
	rec, err := getJSON[storedToken](r.s.client.Get(ctx, r.s.key(keyTypeToken, cryptox.FingerprintToken(token))))
	if err != nil {
		return domain.AccessToken{}, err
	}
	t := rec.toDomain()
	t.Token = token
	return t, nil
}

// RemoveAndLoadByRefresh claims the refresh key with GETDEL; only the
// caller that gets the pointer goes on to take the token record.
func (r *accessTokensRepo) RemoveAndLoadByRefresh(ctx context.Context, refresh string) (domain.AccessToken, error) {
	tokenHash, err := r.s.client.GetDel(ctx, r.s.key(keyTypeRefresh, cryptox.FingerprintToken(refresh))).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.AccessToken{}, store.ErrNotFound
		}
		return domain.AccessToken{}, err
	}
	rec, err := getJSON[storedToken](r.s.client.GetDel(ctx, r.s.key(keyTypeToken, tokenHash)))
	if errors.Is(err, store.ErrNotFound) {
		rec, err = getJSON[storedToken](r.s.client.GetDel(ctx, r.s.key(keyTypeEvicted, tokenHash)))
	}
	if err != nil {
		return domain.AccessToken{}, err
	}
	t := rec.toDomain()
	t.RefreshToken = refresh
	return t, nil
}

func (r *accessTokensRepo) Remove(ctx context.Context, token string) error {
	rec, err := getJSON[storedToken](r.s.client.GetDel(ctx, r.s.key(keyTypeToken, cryptox.FingerprintToken(token))))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.RefreshHash == "" {
		return nil
	}
	return r.s.client.Del(ctx, r.s.key(keyTypeRefresh, rec.RefreshHash)).Err()
}

// evictScript renames the token record out of the access token keyspace.
// RENAME keeps the TTL. A record that is already gone is left alone.
var evictScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('RENAME', KEYS[1], KEYS[2])
return 1
`)

// Evict moves a record with a refresh token to the evicted keyspace, where
// only RemoveAndLoadByRefresh finds it. Other records are removed.
func (r *accessTokensRepo) Evict(ctx context.Context, token string) error {
	tokenHash := cryptox.FingerprintToken(token)
	tokenKey := r.s.key(keyTypeToken, tokenHash)

	rec, err := getJSON[storedToken](r.s.client.Get(ctx, tokenKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.RefreshHash == "" {
		return r.s.client.Del(ctx, tokenKey).Err()
	}
	return evictScript.Run(ctx, r.s.client, []string{tokenKey, r.s.key(keyTypeEvicted, tokenHash)}).Err()
}

// DeleteExpired is a no-op; keys carry their own TTL.
func (r *accessTokensRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (t storedToken) toDomain() domain.AccessToken {
	return domain.AccessToken{
		ClientID:         t.ClientID,
		UserID:           t.UserID,
		SessionID:        t.SessionID,
		Scopes:           t.Scopes,
		Params:           t.Params,
		ExpiresIn:        time.Duration(t.ExpiresIn) * time.Millisecond,
		RefreshExpiresIn: time.Duration(t.RefreshExpiresIn) * time.Millisecond,
		CreatedAt:        time.UnixMilli(t.CreatedAt).UTC(),
	}
}

type storedSession struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	TokenHash string `json:"token_hash"`
	TokenSID  string `json:"token_sid,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	CreatedAt int64  `json:"created_at"`
}

type storedLogin struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id,omitempty"`
	LogoutURI string `json:"logout_uri,omitempty"`
	LoginAt   int64  `json:"login_at"`
	Initial   bool   `json:"initial,omitempty"`
}

type ssoSessionsRepo struct{ s *Store }

func (r *ssoSessionsRepo) indexKey(username, tokenHash string) string {
	return r.s.key(keyTypeSessionIdx, username+":"+tokenHash)
}

// SaveSession writes the session record and then claims the (username,
// token) index with SETNX, so two concurrent logins with the same token
// create one session and the index never points at a missing record. The
// loser removes the record it wrote.
func (r *ssoSessionsRepo) SaveSession(ctx context.Context, s domain.SSOSession) error {
	data, err := json.Marshal(storedSession{
		ID:        s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		TokenHash: s.TokenHash,
		TokenSID:  s.TokenSID,
		ExpiresAt: s.ExpiresAt.UnixMilli(),
		CreatedAt: s.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	ttl := ttlUntil(s.ExpiresAt)
	sessionKey := r.s.key(keyTypeSession, s.ID)

	if err := r.s.client.Set(ctx, sessionKey, data, ttl).Err(); err != nil {
		return err
	}
	ok, err := r.s.client.SetNX(ctx, r.indexKey(s.Username, s.TokenHash), s.ID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		if err := r.s.client.Del(ctx, sessionKey).Err(); err != nil {
			return err
		}
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *ssoSessionsRepo) LoadSession(ctx context.Context, username, tokenHash string) (domain.SSOSession, error) {
	id, err := r.s.client.Get(ctx, r.indexKey(username, tokenHash)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.SSOSession{}, store.ErrNotFound
		}
		return domain.SSOSession{}, err
	}
	rec, err := getJSON[storedSession](r.s.client.Get(ctx, r.s.key(keyTypeSession, id)))
	if err != nil {
		return domain.SSOSession{}, err
	}
	return domain.SSOSession{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Username:  rec.Username,
		TokenHash: rec.TokenHash,
		TokenSID:  rec.TokenSID,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
	}, nil
}

func (r *ssoSessionsRepo) SaveLogin(ctx context.Context, l domain.SSOLogin) error {
	sessionKey := r.s.key(keyTypeSession, l.SessionID)
	ttl, err := r.s.client.PTTL(ctx, sessionKey).Result()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return store.ErrNotFound
	}

	data, err := json.Marshal(storedLogin{
		ID:        l.ID,
		ClientID:  l.ClientID,
		LogoutURI: l.LogoutURI,
		LoginAt:   l.LoginAt.UnixMilli(),
		Initial:   l.Initial,
	})
	if err != nil {
		return err
	}

	loginsKey := r.s.key(keyTypeLogins, l.SessionID)
	_, err = r.s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, loginsKey, data)
		pipe.PExpire(ctx, loginsKey, ttl)
		return nil
	})
	return err
}

func (r *ssoSessionsRepo) ListLogins(ctx context.Context, sessionID string) ([]domain.SSOLogin, error) {
	items, err := r.s.client.LRange(ctx, r.s.key(keyTypeLogins, sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	logins := make([]domain.SSOLogin, 0, len(items))
	for _, item := range items {
		var rec storedLogin
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, err
		}
		logins = append(logins, domain.SSOLogin{
			ID:        rec.ID,
			SessionID: sessionID,
			ClientID:  rec.ClientID,
			LogoutURI: rec.LogoutURI,
			LoginAt:   time.UnixMilli(rec.LoginAt).UTC(),
			Initial:   rec.Initial,
		})
	}
	sort.SliceStable(logins, func(i, j int) bool { return logins[i].LoginAt.Before(logins[j].LoginAt) })
	return logins, nil
}

func (r *ssoSessionsRepo) RemoveSession(ctx context.Context, sessionID string) error {
	rec, err := getJSON[storedSession](r.s.client.GetDel(ctx, r.s.key(keyTypeSession, sessionID)))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	keys := []string{r.s.key(keyTypeLogins, sessionID)}
	if err == nil {
		keys = append(keys, r.indexKey(rec.Username, rec.TokenHash))
	}
	return r.s.client.Del(ctx, keys...).Err()
}

// DeleteExpired is a no-op; keys carry their own TTL.
func (r *ssoSessionsRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

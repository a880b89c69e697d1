package tokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "fieldauth"

// putScript inserts the token hash only if absent, indexes it under its user
// and sets an absolute expiry on the key, all in one atomic step.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], KEYS[1])
return 1
`)

// revokeScript revokes KEYS[1] unless it is gone or already revoked. With
// ARGV[1] set only a token of that type is revoked. It returns 1 on change.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 or redis.call('HGET', KEYS[1], 'revoked') == '1' then
	return 0
end
if ARGV[1] and redis.call('HGET', KEYS[1], 'token_type') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 1
`)

// purgeScript re-checks the purge criterion on the server before deleting.
var purgeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'revoked', 'expires_at')
if not v[2] then
	redis.call('SREM', KEYS[2], KEYS[1])
	return 0
end
if v[1] == '1' or (ARGV[2] == '0' and tonumber(v[2]) < tonumber(ARGV[1])) then
	redis.call('DEL', KEYS[1])
	redis.call('SREM', KEYS[2], KEYS[1])
	return 1
end
return 0
`)

// RedisStore keeps each token in a hash at <prefix>:token:<hash> with a
// per-user set <prefix>:user:<id>. Keys expire at expires_at+retention as a
// backstop; the sweep still performs the authoritative purge. Durability is
// that of the server's persistence settings (appendfsync always is expected
// in production).
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	timeout   time.Duration
	batch     int
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Prefix    string
	Retention time.Duration
	Timeout   time.Duration
	Batch     int
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.Batch <= 0 {
		opts.Batch = DefaultPurgeBatch
	}
	return &RedisStore{
		client:    client,
		prefix:    opts.Prefix,
		retention: opts.Retention,
		timeout:   opts.Timeout,
		batch:     opts.Batch,
	}
}

func (s *RedisStore) tokenKey(hash string) string { return s.prefix + ":token:" + hash }
func (s *RedisStore) userKey(userID string) string { return s.prefix + ":user:" + userID }

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) Put(ctx context.Context, t *models.Token) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields := encodeRedisToken(t)
	argv := make([]any, 0, len(fields)+1)
	argv = append(argv, t.ExpiresAt.Add(s.retention).UnixMilli())
	argv = append(argv, fields...)

	n, err := putScript.Run(ctx, s.client, []string{s.tokenKey(t.Hash), s.userKey(t.UserID)}, argv...).Int()
	if err != nil {
		return classifyRedis("put token", err)
	}
	if n == 0 {
		return common.ErrDuplicateToken
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, hash string) (models.Token, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.client.HGetAll(ctx, s.tokenKey(hash)).Result()
	if err != nil {
		return models.Token{}, false, classifyRedis("get token", err)
	}
	if len(m) == 0 {
		return models.Token{}, false, nil
	}
	t, err := decodeRedisToken(hash, m)
	if err != nil {
		return models.Token{}, false, err
	}
	return t, true, nil
}

func (s *RedisStore) Revoke(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := revokeScript.Run(ctx, s.client, []string{s.tokenKey(hash)}).Int()
	if err != nil {
		return false, classifyRedis("revoke token", err)
	}
	return n == 1, nil
}

func (s *RedisStore) RevokeByUser(ctx context.Context, userID string) (int, error) {
	return s.revokeUser(ctx, "revoke user tokens", userID)
}

func (s *RedisStore) RevokeByUserAndType(ctx context.Context, userID string, typ models.TokenType) (int, error) {
	return s.revokeUser(ctx, "revoke user tokens by type", userID, string(typ))
}

func (s *RedisStore) revokeUser(ctx context.Context, op, userID string, argv ...any) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	keys, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, classifyRedis(op, err)
	}
	n := 0
	for _, key := range keys {
		changed, err := revokeScript.Run(ctx, s.client, []string{key}, argv...).Int()
		if err != nil {
			return n, classifyRedis(op, err)
		}
		n += changed
	}
	return n, nil
}

// Purge walks token keys with SCAN, batch by batch, and lets purgeScript
// decide atomically per key.
func (s *RedisStore) Purge(ctx context.Context, before time.Time, revokedOnly bool) (int, error) {
	only := "0"
	if revokedOnly {
		only = "1"
	}
	cutoff := before.UnixMilli()

	removed := 0
	var cursor uint64
	for {
		keys, next, err := s.scanBatch(ctx, cursor)
		if err != nil {
			return removed, err
		}
		for _, key := range keys {
			n, err := s.purgeKey(ctx, key, cutoff, only)
			if err != nil {
				return removed, err
			}
			removed += n
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (s *RedisStore) scanBatch(ctx context.Context, cursor uint64) ([]string, uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":token:*", int64(s.batch)).Result()
	if err != nil {
		return nil, 0, classifyRedis("purge tokens", err)
	}
	return keys, next, nil
}

func (s *RedisStore) purgeKey(ctx context.Context, key string, cutoff int64, only string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	userID, err := s.client.HGet(ctx, key, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, classifyRedis("purge tokens", err)
	}
	n, err := purgeScript.Run(ctx, s.client, []string{key, s.userKey(userID)}, cutoff, only).Int()
	if err != nil {
		return 0, classifyRedis("purge tokens", err)
	}
	return n, nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]models.Token, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	userKey := s.userKey(userID)
	keys, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, classifyRedis("list user tokens", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, classifyRedis("list user tokens", err)
	}

	out := make([]models.Token, 0, len(keys))
	var stale []any
	prefixLen := len(s.tokenKey(""))
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			stale = append(stale, keys[i])
			continue
		}
		t, err := decodeRedisToken(keys[i][prefixLen:], m)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if len(stale) > 0 {
		// keys expired by TTL leave dangling set members
		_ = s.client.SRem(ctx, userKey, stale...).Err()
	}
	sortByIssued(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeRedisToken(t *models.Token) []any {
	revoked := "0"
	if t.Revoked {
		revoked = "1"
	}
	return []any{
		"id", t.ID,
		"user_id", t.UserID,
		"token_type", string(t.Type),
		"issued_at", strconv.FormatInt(t.IssuedAt.UnixMilli(), 10),
		"expires_at", strconv.FormatInt(t.ExpiresAt.UnixMilli(), 10),
		"revoked", revoked,
		"origin_ip", t.OriginIP,
		"user_agent", t.UserAgent,
	}
}

func decodeRedisToken(hash string, m map[string]string) (models.Token, error) {
	issued, err := strconv.ParseInt(m["issued_at"], 10, 64)
	if err != nil {
		return models.Token{}, fmt.Errorf("decode token %s: issued_at: %w", hash, err)
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return models.Token{}, fmt.Errorf("decode token %s: expires_at: %w", hash, err)
	}
	typ, err := models.ParseTokenType(m["token_type"])
	if err != nil {
		return models.Token{}, fmt.Errorf("decode token %s: %w", hash, err)
	}
	return models.Token{
		ID:        m["id"],
		Hash:      hash,
		UserID:    m["user_id"],
		Type:      typ,
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		Revoked:   m["revoked"] == "1",
		OriginIP:  m["origin_ip"],
		UserAgent: m["user_agent"],
	}, nil
}

// classifyRedis maps every client failure to StoreUnavailable: a redis error
// here is either a network problem or a server refusing work.
func classifyRedis(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return common.Unavailable(op, err)
}

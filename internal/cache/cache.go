// Package cache — Redis-кэш отображаемых данных авторов поверх каталога
// пользователей. Ошибки Redis не ломают выдачу: кэш пропускается, запрос
// уходит в каталог.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

const defaultPrefix = "forum:user:"

// UsersCache — storage.UserDirectory с read-through кэшированием в Redis.
type UsersCache struct {
	rdb    *redis.Client
	next   storage.UserDirectory
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

var _ storage.UserDirectory = (*UsersCache)(nil)

// NewRedisClient создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и выполняет fail-fast Ping.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}

// NewUsersCache оборачивает каталог next. Пустой prefix — "forum:user:".
func NewUsersCache(rdb *redis.Client, next storage.UserDirectory, ttl time.Duration, prefix string, log *slog.Logger) *UsersCache {
	if prefix == "" {
		prefix = defaultPrefix
	}

	if log == nil {
		log = slog.Default()
	}

	return &UsersCache{rdb: rdb, next: next, ttl: ttl, prefix: prefix, log: log}
}

func (c *UsersCache) key(id string) string { return c.prefix + id }

// UsersByIDs: HGETALL пачкой через pipeline, промахи — в каталог, найденное
// записывается обратно с TTL.
func (c *UsersCache) UsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	missing := c.lookup(ctx, ids, out)
	if len(missing) == 0 {
		return out, nil
	}

	found, err := c.next.UsersByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	for id, u := range found {
		out[id] = u
	}

	c.store(ctx, found)

	return out, nil
}

func (c *UsersCache) lookup(ctx context.Context, ids []string, out map[string]models.User) []string {
	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))

	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, c.key(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("users_cache_read_failed", "err", err)
		return ids
	}

	var missing []string
	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil || len(m) == 0 {
			missing = append(missing, ids[i])
			continue
		}

		out[ids[i]] = models.User{
			ID:          ids[i],
			Username:    m["username"],
			DisplayName: m["display_name"],
			Role:        models.Role(m["role"]),
			AvatarURL:   m["avatar_url"],
		}
	}

	return missing
}

func (c *UsersCache) store(ctx context.Context, users map[string]models.User) {
	if len(users) == 0 {
		return
	}

	pipe := c.rdb.TxPipeline()
	for id, u := range users {
		pipe.HSet(ctx, c.key(id), map[string]string{
			"username":     u.Username,
			"display_name": u.DisplayName,
			"role":         string(u.Role),
			"avatar_url":   u.AvatarURL,
		})
		pipe.Expire(ctx, c.key(id), c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("users_cache_write_failed", "err", err)
	}
}

// Invalidate удаляет записи пользователей из кэша.
func (c *UsersCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	return c.rdb.Del(ctx, keys...).Err()
}

package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AngelCh415/shopads/internal/models"
)

const keyNamespace = "shopads:token"

type cmdable interface {
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// RedisStore keeps the token record as a keyed secret with a TTL matching
// its remaining validity.
type RedisStore struct {
	store cmdable
	key   string
	clock func() time.Time
}

// OpenRedis parses url and verifies connectivity.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return raw, nil
}

func NewRedisStore(raw *redis.Client, session string) *RedisStore {
	return &RedisStore{store: raw, key: RedisKey(session), clock: time.Now}
}

func RedisKey(session string) string {
	if session == "" {
		session = "default"
	}
	return keyNamespace + ":" + session
}

func (s *RedisStore) Load(ctx context.Context) (*models.Credential, error) {
	v, err := s.store.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get token: %w", err)
	}
	return decodeRecord([]byte(v))
}

func (s *RedisStore) Save(ctx context.Context, c models.Credential) error {
	b, err := encodeRecord(c)
	if err != nil {
		return err
	}
	ttl := c.ExpiresAt.Sub(s.clock())
	if ttl < 0 {
		ttl = 0
	}
	if err := s.store.Set(ctx, s.key, string(b), ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.store.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares counters between server instances. Expiry is delegated to
// Redis, so SweepExpired has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisConfig configures the client created by NewRedisStoreFromConfig.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "sitegate:ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func NewRedisStoreFromConfig(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStore(client, cfg.Prefix)
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}

// Increment runs INCR and PEXPIREAT in one MULTI/EXEC so the counter never
// outlives its window.
func (s *RedisStore) Increment(ctx context.Context, key string, resetAt time.Time) (int64, error) {
	k := s.redisKey(key)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpireAt(ctx, k, resetAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", k, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Count returns the number of live counters under the store prefix.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// Clear removes every counter under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

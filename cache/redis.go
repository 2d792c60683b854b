package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "farmacias"

// RedisStore backs the cache with Redis. Keys are namespaced by a
// generation counter: Flush bumps the counter instead of scanning for
// keys, which makes invalidate-all a single atomic INCR. Entries of
// older generations become unreachable instantly and drain out through
// their own TTLs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) generation(ctx context.Context) (int64, error) {
	gen, err := s.client.Get(ctx, keyPrefix+":gen").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (s *RedisStore) fullKey(gen int64, key string) string {
	return fmt.Sprintf("%s:g%d:%s", keyPrefix, gen, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	gen, err := s.generation(ctx)
	if err != nil {
		return nil, false, err
	}

	value, err := s.client.Get(ctx, s.fullKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	gen, err := s.generation(ctx)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.fullKey(gen, key), value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	gen, err := s.generation(ctx)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, s.fullKey(gen, key)).Err()
}

func (s *RedisStore) Flush(ctx context.Context) error {
	return s.client.Incr(ctx, keyPrefix+":gen").Err()
}

// Count reports the server's key count. Entries from drained
// generations inflate it slightly until their TTLs pass; the figure is
// approximate by design.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	return s.client.DBSize(ctx).Result()
}

// SizeBytes reads used_memory from INFO.
func (s *RedisStore) SizeBytes(ctx context.Context) (int64, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	return parseUsedMemory(info)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseUsedMemory(info string) (int64, error) {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "used_memory:"); ok {
			return strconv.ParseInt(value, 10, 64)
		}
	}
	return 0, fmt.Errorf("used_memory not present in INFO reply")
}

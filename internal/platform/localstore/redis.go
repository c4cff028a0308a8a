package localstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces storefront keys in a shared redis.
const DefaultRedisPrefix = "storefront"

// RedisStore keeps each key as a plain redis string under prefix:key.
// Entries never expire; clearing is explicit.
type RedisStore struct {
	rc     *redis.Client
	prefix string
}

// NewRedisStore accepts the prefix with or without its trailing colon.
func NewRedisStore(rc *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rc: rc, prefix: strings.TrimRight(prefix, ":")}
}

// DialRedis connects and pings so misconfiguration fails at startup.
func DialRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rc, nil
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.rc == nil {
		return nil, false, errors.New("redis client is nil, cannot get")
	}
	v, err := s.rc.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if s.rc == nil {
		return errors.New("redis client is nil, cannot set")
	}
	if err := s.rc.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if s.rc == nil {
		return errors.New("redis client is nil, cannot delete")
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.rc.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.rc == nil {
		return nil
	}
	return s.rc.Close()
}

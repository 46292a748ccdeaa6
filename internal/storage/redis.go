package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed store. Useful when several processes on
// one install must share a session.
func NewRedis(cfg RedisConfig) (KV, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ferry:session:"
	}

	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(k string) string {
	return s.prefix + k
}

func (s *redisStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	// MGET reads every key at one point in time
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, wrap(DriverRedis, "get", keys, err)
	}

	for i, v := range vals {
		if str, ok := v.(string); ok {
			result[keys[i]] = str
		}
	}
	return result, nil
}

func (s *redisStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	return wrap(DriverRedis, "set", keysOf(values), err)
}

func (s *redisStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	if err := s.client.SetNX(ctx, s.key(key), value, 0).Err(); err != nil {
		return "", wrap(DriverRedis, "setnx", []string{key}, err)
	}

	stored, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		return "", wrap(DriverRedis, "setnx", []string{key}, err)
	}
	return stored, nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return wrap(DriverRedis, "delete", keys, s.client.Del(ctx, full...).Err())
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis with a TTL per key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "nextsignal"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) wrapKey(token string) string {
	return r.prefix + ":session:" + tokenKey(token)
}

func (r *RedisStore) Save(ctx context.Context, s *auth.Session, ttl time.Duration) error {
	data, err := sonic.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return r.client.Set(ctx, r.wrapKey(s.AccessToken), data, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, token string) (*auth.Session, error) {
	data, err := r.client.Get(ctx, r.wrapKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrSessionNotFound
		}
		return nil, err
	}

	var s auth.Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	return r.client.Unlink(ctx, r.wrapKey(token)).Err()
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+":session:*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/tnunamak/tokentorch/internal/api"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key identifies the snapshot; include the organization so several
	// accounts can share one server.
	Key string
	TTL time.Duration
}

// RedisStore shares one snapshot between every monitor pointed at the same
// server, so several machines cost a single API request per TTL.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Key == "" {
		return nil, errors.New("redis cache key cannot be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, key: cfg.Key, ttl: cfg.TTL}, nil
}

func (s *RedisStore) Read(ctx context.Context) (*Entry, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decode(data)
}

func (s *RedisStore) Write(ctx context.Context, usage *api.UsageResponse, fetchedAt time.Time) error {
	data, err := sonic.Marshal(Entry{Usage: usage, FetchedAt: fetchedAt})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

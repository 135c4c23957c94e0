// Package redisstore is a Redis-backed sessionstore.Store for deployments
// that run more than one gateway replica behind a shared session space.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/nevermined-io/weather-mcp-demo/gateway/sessionstore"
)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=weather-mcp:sessions:"`
	// TTL after which idle session records expire. ENV: SESSIONS_TTL
	TTL time.Duration `env:"SESSIONS_TTL,default=24h"`
}

// Store is a Redis implementation of sessionstore.Store.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ sessionstore.Store = (*Store)(nil)

// New builds a Store and verifies connectivity with a ping.
func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "weather-mcp:sessions:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: cl, keyPrefix: prefix, ttl: ttl}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode redis session store config: %w", err)
	}
	return New(cfg)
}

// Close releases the underlying Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(id string) string { return s.keyPrefix + id }

func (s *Store) Put(ctx context.Context, rec sessionstore.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (sessionstore.Record, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sessionstore.Record{}, sessionstore.ErrNotFound
		}
		return sessionstore.Record{}, fmt.Errorf("redis get: %w", err)
	}
	var rec sessionstore.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return sessionstore.Record{}, fmt.Errorf("unmarshal session record: %w", err)
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

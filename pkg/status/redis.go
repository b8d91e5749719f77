package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/entrhq/postpilot/pkg/post"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// DefaultRedisConfig returns a config for a local Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "postpilot:op:",
	}
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisStore keeps operations as JSON strings whose TTL is the remaining
// retention, so Redis evicts them on its own. Records outlive a restart of
// the coordinator.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisClock replaces time.Now.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

// NewRedisStore creates a store on client. A non-positive retention uses
// DefaultRetention.
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration, opts ...RedisOption) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if prefix == "" {
		prefix = DefaultRedisConfig().Prefix
	}
	s := &RedisStore{client: client, prefix: prefix, retention: retention, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, op post.Operation) error {
	ttl := s.retention - s.now().Sub(op.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("operation %s is already past retention", op.ID)
	}

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation %s: %w", op.ID, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(op.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store operation %s: %w", op.ID, err)
	}
	if ok {
		return nil
	}

	// The key can outlive retention by the coordinator's clock.
	_, err = s.Get(ctx, op.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.Put(ctx, op)
	case err != nil:
		return err
	}
	return ErrExists
}

func (s *RedisStore) Put(ctx context.Context, op post.Operation) error {
	ttl := s.retention - s.now().Sub(op.CreatedAt)
	if ttl <= 0 {
		return s.Delete(ctx, op.ID)
	}

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation %s: %w", op.ID, err)
	}
	if err := s.client.Set(ctx, s.key(op.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store operation %s: %w", op.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (post.Operation, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return post.Operation{}, ErrNotFound
	}
	if err != nil {
		return post.Operation{}, fmt.Errorf("failed to load operation %s: %w", id, err)
	}

	var op post.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return post.Operation{}, fmt.Errorf("failed to decode operation %s: %w", id, err)
	}
	if expired(op, s.now(), s.retention) {
		return post.Operation{}, ErrNotFound
	}
	return op, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete operation %s: %w", id, err)
	}
	return nil
}

// SweepExpired removes records Redis has not expired yet but that are past
// retention by the coordinator's clock.
func (s *RedisStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to load %s: %w", key, err)
		}

		var op post.Operation
		if err := json.Unmarshal(data, &op); err != nil || expired(op, now, s.retention) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete %s: %w", key, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan operations: %w", err)
	}
	return removed, nil
}

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ValkeyConfig holds configuration for connecting to Valkey.
type ValkeyConfig struct {
	Addr     string // host:port
	Password string // optional
	DB       int
	// KeyPrefix namespaces every key, e.g. "toolsite:".
	KeyPrefix string
	// DialTimeout bounds connecting and the startup ping. Zero means 5s.
	DialTimeout time.Duration
}

// ValkeyStore keeps download entries in Valkey (or Redis) so links survive
// restarts and are shared between replicas.
type ValkeyStore struct {
	rdb    *redis.Client
	prefix string
}

// NewValkeyStore connects and pings the server before returning, so a bad
// address fails at startup instead of on the first download.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Addr, err)
	}
	return &ValkeyStore{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

func (s *ValkeyStore) key(k string) string {
	return s.prefix + k
}

func (s *ValkeyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// go-redis treats 0 as "no expiry", matching the Store contract.
	return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return val, nil
}

func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *ValkeyStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*ValkeyStore)(nil)

// Package redisstore backs the catalog's Storage interface with Redis.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contentmirror/contentmirror/internal/xerrors"
)

// connectTimeout bounds the startup connectivity check.
const connectTimeout = 5 * time.Second

type Options struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every stored key, e.g. "contentmirror:".
	KeyPrefix string
}

// Store implements storage.Store on a Redis client.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection with a ping so a
// misconfigured backend fails at startup, not on first write.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, xerrors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(err, "redis ping failed")
	}

	return &Store{client: client, prefix: opts.KeyPrefix}, nil
}

// NewFromClient wraps an existing client, used by tests with miniredis.
func NewFromClient(client *redis.Client, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Wrapf(err, "redis get %s", key)
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return xerrors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return xerrors.Wrapf(err, "redis del %s", key)
	}
	return nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, xerrors.Wrapf(err, "redis exists %s", key)
	}
	return n > 0, nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// Package redisstore persists author name registries in Redis, one JSON
// string per author under "<prefix><author>".
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/quillmate/internal/registry"
	"github.com/MrWong99/quillmate/pkg/types"
)

// DefaultKeyPrefix namespaces registry keys.
const DefaultKeyPrefix = "quillmate:registry:"

// Client is the subset of [redis.Cmdable] the store uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

var (
	_ registry.Store = (*Store)(nil)
	_ Client         = (*redis.Client)(nil)
)

// Store is a Redis-backed [registry.Store]. All methods are safe for
// concurrent use.
type Store struct {
	client Client
	prefix string
	close  func() error
}

// Option configures a [Store].
type Option func(*Store)

// WithKeyPrefix replaces [DefaultKeyPrefix].
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New returns a Store on an existing client. The caller owns client.
func New(client Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultKeyPrefix, close: func() error { return nil }}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open connects to the Redis server at addr and verifies the connection.
func Open(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis registry: ping %s: %w", addr, err)
	}
	s := New(client, opts...)
	s.close = client.Close
	return s, nil
}

// Close closes the client opened by [Open].
func (s *Store) Close() error { return s.close() }

func (s *Store) key(authorID string) string { return s.prefix + authorID }

// Load implements [registry.Store].
func (s *Store) Load(ctx context.Context, authorID string) ([]types.TrackedName, error) {
	raw, err := s.client.Get(ctx, s.key(authorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []types.TrackedName{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis registry: load %q: %w: %w", authorID, registry.ErrRegistryUnavailable, err)
	}
	var names []types.TrackedName
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("redis registry: decode %q: %w: %w", authorID, registry.ErrRegistryUnavailable, err)
	}
	return registry.Clone(names), nil
}

// Save implements [registry.Store]. Registries never expire.
func (s *Store) Save(ctx context.Context, authorID string, names []types.TrackedName) error {
	payload, err := json.Marshal(registry.Clone(names))
	if err != nil {
		return fmt.Errorf("redis registry: encode %q: %w", authorID, err)
	}
	if err := s.client.Set(ctx, s.key(authorID), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis registry: save %q: %w: %w", authorID, registry.ErrRegistryUnavailable, err)
	}
	return nil
}

// Ping implements [registry.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis registry: ping: %w: %w", registry.ErrRegistryUnavailable, err)
	}
	return nil
}

// Package cache is the device-local persisted cache. Keys are namespaced
// under a prefix, values are opaque bytes, and every failure degrades to a
// miss so callers never depend on the cache for correctness.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// ErrMiss is returned by a Backend when the key has no value.
var ErrMiss = errors.New("cache: miss")

// Well-known keys, relative to the cache namespace.
const (
	KeySettings = "settings"
	KeyLastSync = "sync:last"
	KeyRewards  = "snapshot:rewards"
	KeyToken    = "session:token"
)

// BalanceKey is the snapshot key for a member's point balance.
func BalanceKey(memberID int64) string {
	return "snapshot:balance:" + strconv.FormatInt(memberID, 10)
}

// Backend is a raw key/value store. Keys passed to it are already namespaced.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Cache wraps a Backend with namespacing, optional sealing and a lock that
// keeps ClearAll from interleaving with reads and writes.
type Cache struct {
	mu      sync.RWMutex
	backend Backend
	prefix  string
	sealer  *Sealer
	logger  *slog.Logger
}

type Option func(*Cache)

// WithSealer encrypts values at rest.
func WithSealer(s *Sealer) Option {
	return func(c *Cache) { c.sealer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func New(backend Backend, prefix string, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		prefix:  strings.TrimSuffix(prefix, ":"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key joins the namespace prefix and parts with ":", skipping empty parts.
func (c *Cache) Key(parts ...string) string {
	var sb strings.Builder
	sb.WriteString(c.prefix)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}
	return sb.String()
}

// Get returns the value for key. Backend and decryption failures are logged
// and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := c.backend.Get(ctx, c.Key(key))
	if errors.Is(err, ErrMiss) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if c.sealer != nil {
		data, err = c.sealer.Open(data)
		if err != nil {
			c.logger.Warn("cache open failed", "key", key, "error", err)
			return nil, false
		}
	}
	return data, true
}

// Set stores value under key. The error is returned so callers that need all
// writes to land (sync) can tell; it is also logged.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sealer != nil {
		sealed, err := c.sealer.Seal(value)
		if err != nil {
			c.logger.Warn("cache seal failed", "key", key, "error", err)
			return err
		}
		value = sealed
	}
	if err := c.backend.Set(ctx, c.Key(key), value); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (c *Cache) Remove(ctx context.Context, key string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.backend.Delete(ctx, c.Key(key)); err != nil {
		c.logger.Warn("cache remove failed", "key", key, "error", err)
		return err
	}
	return nil
}

// ClearAll wipes every key in the namespace, including the last-sync marker.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.DeletePrefix(ctx, c.prefix+":"); err != nil {
		c.logger.Warn("cache clear failed", "error", err)
		return err
	}
	return nil
}

func (c *Cache) Close() error {
	return c.backend.Close()
}

// GetJSON decodes the value for key into v. A value that fails to decode is
// treated as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("cache decode failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data)
}

// Package cache memoises generator completions keyed by model and prompt.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
	"askdocs/internal/metrics"
)

// Store is a string key/value store with a miss signalled by ok=false.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Generator serves repeated prompts from Store. Store errors are logged and
// the call falls through to the wrapped generator.
type Generator struct {
	inner domain.Generator
	store Store
}

func New(inner domain.Generator, store Store) *Generator {
	return &Generator{inner: inner, store: store}
}

func (g *Generator) Name() string { return g.inner.Name() }

func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	key := Key(g.inner.Name(), prompt)
	log := logging.FromContext(ctx)

	if v, ok, err := g.store.Get(ctx, key); err != nil {
		log.Warn("completion cache read failed", "error", err)
	} else if ok {
		metrics.CacheTotal.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.CacheTotal.WithLabelValues("miss").Inc()

	out, err := g.inner.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if err := g.store.Set(ctx, key, out); err != nil {
		log.Warn("completion cache write failed", "error", err)
	}
	return out, nil
}

// Key derives a stable cache key from generator name and prompt.
func Key(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return "askdocs:completion:" + hex.EncodeToString(sum[:])
}

// MemoryStore is an unbounded in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

// RedisStore keeps completions in Redis with a fixed TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Join(errors.New("failed to ping redis"), err)
	}
	return &RedisStore{rdb: rdb, ttl: cfg.TTL}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, key, value, r.ttl).Err()
}

func (r *RedisStore) Close() error { return r.rdb.Close() }

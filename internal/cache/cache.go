// Package cache implements the tiered schema cache the registry consults
// before the KV store: an in-process Ristretto L1 in front of an optional
// shared Redis L2, trimmed from the teacher's tenant-aware Service down to
// the Get/Set/Delete surface the schema registry needs. Atom and ref reads
// do not go through it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Get when the key is absent from every tier.
var ErrMiss = errors.New("cache: miss")

// Service is the tiered cache surface consulted before a KV read.
type Service interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config configures the L1/L2 tiers.
type Config struct {
	L1MaxCost     int64
	L1NumCounters int64
	L1BufferItems int64

	L2Enabled  bool
	L2Addr     string
	L2Password string
	L2DB       int

	TTL time.Duration
}

// DefaultConfig returns Ristretto-only defaults with no Redis L2.
func DefaultConfig() Config {
	return Config{
		L1MaxCost:     1 << 26, // 64MiB
		L1NumCounters: 1e6,
		L1BufferItems: 64,
		TTL:           5 * time.Minute,
	}
}

type service struct {
	l1  *ristretto.Cache
	l2  *redis.Client
	ttl time.Duration
}

// New builds a Service from cfg. L2 is only dialed when cfg.L2Enabled.
func New(cfg Config) (Service, error) {
	var l2 *redis.Client
	if cfg.L2Enabled {
		l2 = redis.NewClient(&redis.Options{
			Addr:     cfg.L2Addr,
			Password: cfg.L2Password,
			DB:       cfg.L2DB,
		})
	}
	return newService(cfg, l2)
}

// newWithClient builds a Service around an already-constructed Redis
// client, letting tests inject a redismock client in place of a real
// connection.
func newWithClient(cfg Config, l2 *redis.Client) (Service, error) {
	return newService(cfg, l2)
}

func newService(cfg Config, l2 *redis.Client) (Service, error) {
	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.L1NumCounters,
		MaxCost:     cfg.L1MaxCost,
		BufferItems: cfg.L1BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &service{l1: l1, l2: l2, ttl: cfg.TTL}, nil
}

// Get resolves key from L1, falling back to L2 and populating L1 on a
// successful L2 hit.
func (s *service) Get(ctx context.Context, key string, dest any) error {
	if raw, ok := s.l1.Get(key); ok {
		return json.Unmarshal(raw.([]byte), dest)
	}

	if s.l2 == nil {
		return ErrMiss
	}

	raw, err := s.l2.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}

	s.l1.SetWithTTL(key, raw, int64(len(raw)), s.ttl)
	return json.Unmarshal(raw, dest)
}

// Set writes value to both tiers, JSON-encoded.
func (s *service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.l1.SetWithTTL(key, raw, int64(len(raw)), ttl)
	s.l1.Wait()

	if s.l2 != nil {
		if err := s.l2.Set(ctx, key, raw, ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key from both tiers.
func (s *service) Delete(ctx context.Context, key string) error {
	s.l1.Del(key)
	if s.l2 != nil {
		if err := s.l2.Del(ctx, key).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Close() error {
	s.l1.Close()
	if s.l2 != nil {
		return s.l2.Close()
	}
	return nil
}

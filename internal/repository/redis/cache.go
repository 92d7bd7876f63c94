// Package redis provides a read-through cache in front of benchmark storage,
// so repeat analyses of the same benchmark avoid database round-trips.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitegrader/sitegrader/internal/config"
	"github.com/sitegrader/sitegrader/internal/domain"
)

// Key prefixes.
const (
	prefixBenchmark = "benchmark:"
	prefixIndustry  = "benchmark-industry:"
)

// Cache wraps a Redis client.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Redis cache client and verifies connectivity.
func New(cfg config.RedisConfig, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// BenchmarkStore is the upstream storage the cache fronts.
type BenchmarkStore interface {
	QueryByIndustry(ctx context.Context, industry string) ([]domain.BenchmarkRecord, error)
	Get(ctx context.Context, id string) (*domain.BenchmarkRecord, error)
	Save(ctx context.Context, record *domain.BenchmarkRecord) error
}

// CachedBenchmarkStore is a read-through, write-through benchmark store.
// A nil cache degrades to the upstream store untouched.
type CachedBenchmarkStore struct {
	upstream BenchmarkStore
	cache    *Cache
}

// NewCachedBenchmarkStore wraps upstream with the cache.
func NewCachedBenchmarkStore(upstream BenchmarkStore, cache *Cache) *CachedBenchmarkStore {
	return &CachedBenchmarkStore{upstream: upstream, cache: cache}
}

// Get fetches a record, preferring the cache.
func (s *CachedBenchmarkStore) Get(ctx context.Context, id string) (*domain.BenchmarkRecord, error) {
	if s.cache != nil {
		if data, err := s.cache.client.Get(ctx, prefixBenchmark+id).Bytes(); err == nil {
			var record domain.BenchmarkRecord
			if json.Unmarshal(data, &record) == nil {
				return &record, nil
			}
		}
	}

	record, err := s.upstream.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheRecord(ctx, record)
	return record, nil
}

// QueryByIndustry fetches an industry's records, preferring the cache.
func (s *CachedBenchmarkStore) QueryByIndustry(ctx context.Context, industry string) ([]domain.BenchmarkRecord, error) {
	key := prefixIndustry + strings.ToLower(industry)

	if s.cache != nil {
		if data, err := s.cache.client.Get(ctx, key).Bytes(); err == nil {
			var records []domain.BenchmarkRecord
			if json.Unmarshal(data, &records) == nil {
				return records, nil
			}
		}
	}

	records, err := s.upstream.QueryByIndustry(ctx, industry)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(records) > 0 {
		if data, err := json.Marshal(records); err == nil {
			s.cache.client.Set(ctx, key, data, s.cache.ttl)
		}
	}
	return records, nil
}

// Save writes through to upstream and refreshes the record cache; the
// industry listing is invalidated rather than rebuilt.
func (s *CachedBenchmarkStore) Save(ctx context.Context, record *domain.BenchmarkRecord) error {
	if err := s.upstream.Save(ctx, record); err != nil {
		return err
	}
	s.cacheRecord(ctx, record)
	if s.cache != nil {
		s.cache.client.Del(ctx, prefixIndustry+strings.ToLower(record.Industry))
	}
	return nil
}

func (s *CachedBenchmarkStore) cacheRecord(ctx context.Context, record *domain.BenchmarkRecord) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(record); err == nil {
		s.cache.client.Set(ctx, prefixBenchmark+record.ID, data, s.cache.ttl)
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisCache is the L2 level. Every call runs through the circuit breaker so
// a dead redis degrades to cache misses instead of per-request timeouts.
type RedisCache struct {
	client  *redis.Client
	breaker *CircuitBreaker
	metrics *Metrics
}

func NewRedisCache(config *RedisConfig) *RedisCache {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisCache{
		client:  client,
		breaker: NewCircuitBreaker(nil),
		metrics: NewMetrics(),
	}
}

func (r *RedisCache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	err = r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return r.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		r.metrics.RecordError()
		if errors.Is(err, ErrBreakerOpen) {
			return ErrCacheDown
		}
		return fmt.Errorf("cache set: %w", err)
	}
	r.metrics.RecordSet()
	return nil
}

func (r *RedisCache) Get(key string, dest interface{}) error {
	var data string
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var getErr error
		data, getErr = r.client.Get(ctx, key).Result()
		if getErr == redis.Nil {
			// A miss is a healthy response; don't trip the breaker.
			data = ""
			return nil
		}
		return getErr
	})
	if err != nil {
		r.metrics.RecordError()
		if errors.Is(err, ErrBreakerOpen) {
			return ErrCacheDown
		}
		return fmt.Errorf("cache get: %w", err)
	}
	if data == "" {
		r.metrics.RecordMiss()
		return ErrCacheMiss
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		r.metrics.RecordError()
		return fmt.Errorf("unmarshal cached value: %w", err)
	}
	r.metrics.RecordHit()
	return nil
}

func (r *RedisCache) Delete(key string) error {
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return r.client.Del(ctx, key).Err()
	})
	if err != nil {
		r.metrics.RecordError()
		if errors.Is(err, ErrBreakerOpen) {
			return ErrCacheDown
		}
		return err
	}
	r.metrics.RecordDelete()
	return nil
}

func (r *RedisCache) DeletePattern(pattern string) error {
	return r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		keys, err := r.client.Keys(ctx, pattern).Result()
		if err != nil {
			return fmt.Errorf("keys for pattern %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			return nil
		}
		return r.client.Del(ctx, keys...).Err()
	})
}

func (r *RedisCache) Exists(key string) (bool, error) {
	var count int64
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var existsErr error
		count, existsErr = r.client.Exists(ctx, key).Result()
		return existsErr
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisCache) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()
	counters := r.metrics.Snapshot()

	return map[string]interface{}{
		"hits":          counters.Hits,
		"misses":        counters.Misses,
		"errors":        counters.Errors,
		"sets":          counters.Sets,
		"deletes":       counters.Deletes,
		"hit_rate":      r.metrics.HitRate(),
		"breaker":       r.breaker.Stats(),
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

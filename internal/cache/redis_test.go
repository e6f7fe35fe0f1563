package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()
	r := NewRedisCache(config)
	t.Cleanup(func() { r.Close() })

	return r, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	r, _ := newTestRedisCache(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := r.Set("k", payload{Name: "hello", Count: 7}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got payload
	if err := r.Get("k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "hello" || got.Count != 7 {
		t.Errorf("got %+v, want {hello 7}", got)
	}
}

func TestRedisCache_MissIsNotAnError(t *testing.T) {
	r, _ := newTestRedisCache(t)

	var dest string
	err := r.Get("absent", &dest)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("got %v, want ErrCacheMiss", err)
	}
	if r.breaker.State() != BreakerClosed {
		t.Error("a miss must not trip the breaker")
	}
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	r, mr := newTestRedisCache(t)

	if err := r.Set("ephemeral", "v", time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Second)

	var dest string
	if err := r.Get("ephemeral", &dest); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("got %v, want ErrCacheMiss after TTL", err)
	}
}

func TestRedisCache_Delete(t *testing.T) {
	r, _ := newTestRedisCache(t)

	if err := r.Set("k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := r.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var dest string
	if err := r.Get("k", &dest); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("got %v, want ErrCacheMiss after delete", err)
	}
}

func TestRedisCache_DeletePattern(t *testing.T) {
	r, _ := newTestRedisCache(t)

	for _, key := range []string{"search:u1:a", "search:u1:b", "search:u2:a"} {
		if err := r.Set(key, "v", time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := r.DeletePattern("search:u1:*"); err != nil {
		t.Fatalf("delete pattern: %v", err)
	}

	var dest string
	if err := r.Get("search:u1:a", &dest); !errors.Is(err, ErrCacheMiss) {
		t.Error("search:u1:a should be gone")
	}
	if err := r.Get("search:u2:a", &dest); err != nil {
		t.Errorf("search:u2:a should survive: %v", err)
	}
}

func TestRedisCache_BreakerShieldsDeadServer(t *testing.T) {
	mr := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()
	config.MaxRetries = 0
	config.DialTimeout = 100 * time.Millisecond
	config.ReadTimeout = 100 * time.Millisecond
	config.WriteTimeout = 100 * time.Millisecond
	r := NewRedisCache(config)
	defer r.Close()

	mr.Close()

	var dest string
	for i := 0; i < DefaultBreakerConfig().MaxFailures; i++ {
		if err := r.Get("k", &dest); err == nil {
			t.Fatal("expected error against dead server")
		}
	}

	if err := r.Get("k", &dest); !errors.Is(err, ErrCacheDown) {
		t.Errorf("got %v, want ErrCacheDown once the breaker opens", err)
	}
}

func TestRedisCache_StatsCounters(t *testing.T) {
	r, _ := newTestRedisCache(t)

	r.Set("k", "v", time.Minute)
	var dest string
	r.Get("k", &dest)
	r.Get("absent", &dest)

	stats := r.Stats()
	if stats["hits"].(int64) != 1 {
		t.Errorf("hits = %v, want 1", stats["hits"])
	}
	if stats["misses"].(int64) != 1 {
		t.Errorf("misses = %v, want 1", stats["misses"])
	}
	if stats["sets"].(int64) != 1 {
		t.Errorf("sets = %v, want 1", stats["sets"])
	}
}

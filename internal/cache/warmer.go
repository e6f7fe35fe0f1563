package cache

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// WarmupJob pre-loads one key. Load produces the value on demand so the
// warmer never caches stale snapshots taken at registration time.
type WarmupJob struct {
	Key      string
	Load     func(ctx context.Context) (interface{}, error)
	TTL      time.Duration
	Priority int
}

// Warmer re-populates configured keys on an interval. Nothing runs until
// Start is called, and Stop halts the loop; embedders opt in explicitly.
type Warmer struct {
	cache    Cache
	interval time.Duration

	mu      sync.Mutex
	jobs    []WarmupJob
	running bool
	stopCh  chan struct{}
}

func NewWarmer(cache Cache, interval time.Duration) *Warmer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Warmer{cache: cache, interval: interval}
}

func (w *Warmer) AddJob(job WarmupJob) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.jobs = append(w.jobs, job)
	sort.SliceStable(w.jobs, func(i, j int) bool {
		return w.jobs[i].Priority > w.jobs[j].Priority
	})
}

func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	log.Printf("cache warmer started (interval %s)", w.interval)

	go func() {
		w.RunOnce(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if w.cache.Health() == nil {
					w.RunOnce(ctx)
				}
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Warmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	log.Printf("cache warmer stopped")
}

// RunOnce warms every job in priority order.
func (w *Warmer) RunOnce(ctx context.Context) {
	w.mu.Lock()
	jobs := make([]WarmupJob, len(w.jobs))
	copy(jobs, w.jobs)
	w.mu.Unlock()

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		value, err := job.Load(ctx)
		if err != nil {
			log.Printf("warm %s: load failed: %v", job.Key, err)
			continue
		}
		if err := w.cache.Set(job.Key, value, job.TTL); err != nil {
			log.Printf("warm %s: set failed: %v", job.Key, err)
		}
	}
}

func (w *Warmer) Stats() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	return map[string]interface{}{
		"running":  w.running,
		"jobs":     len(w.jobs),
		"interval": w.interval.String(),
	}
}

package monitoring

import (
	"context"
	"sync"
	"time"
)

// StoreMetrics aggregates per-operation counters for the record store.
type StoreMetrics struct {
	mu             sync.RWMutex
	OperationCount int64            `json:"operation_count"`
	ErrorCount     int64            `json:"error_count"`
	Operations     map[string]int64 `json:"operations"`
	Errors         map[string]int64 `json:"errors"`
	StartTime      time.Time        `json:"start_time"`
	LastOperation  time.Time        `json:"last_operation"`
	totalDuration  time.Duration
}

func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		Operations: make(map[string]int64),
		Errors:     make(map[string]int64),
		StartTime:  time.Now(),
	}
}

func (m *StoreMetrics) Record(op string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OperationCount++
	m.totalDuration += duration
	m.LastOperation = time.Now()
	m.Operations[op]++
	if err != nil {
		m.ErrorCount++
		m.Errors[op]++
	}
}

// Snapshot returns a copy safe to serialize while operations continue.
func (m *StoreMetrics) Snapshot() StoreMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := StoreMetrics{
		OperationCount: m.OperationCount,
		ErrorCount:     m.ErrorCount,
		Operations:     make(map[string]int64, len(m.Operations)),
		Errors:         make(map[string]int64, len(m.Errors)),
		StartTime:      m.StartTime,
		LastOperation:  m.LastOperation,
	}
	for k, v := range m.Operations {
		snapshot.Operations[k] = v
	}
	for k, v := range m.Errors {
		snapshot.Errors[k] = v
	}
	return snapshot
}

func (m *StoreMetrics) AvgDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.OperationCount == 0 {
		return 0
	}
	return m.totalDuration / time.Duration(m.OperationCount)
}

type HealthCheckFunc func(ctx context.Context) error

type HealthCheck struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	LastRun time.Time `json:"last_run"`
}

type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]HealthCheckFunc)}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) Run(ctx context.Context) map[string]HealthCheck {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	funcs := make([]HealthCheckFunc, 0, len(h.checks))
	for name, fn := range h.checks {
		names = append(names, name)
		funcs = append(funcs, fn)
	}
	h.mu.RUnlock()

	results := make(map[string]HealthCheck, len(names))
	for i, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, message := "healthy", ""
		if err := funcs[i](checkCtx); err != nil {
			status = "unhealthy"
			message = err.Error()
		}
		cancel()

		results[name] = HealthCheck{
			Name:    name,
			Status:  status,
			Message: message,
			LastRun: time.Now(),
		}
	}
	return results
}

package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"tasktracker/internal/monitoring"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestWrapErr_Taxonomy(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"deadline exceeded", context.DeadlineExceeded, ErrTimeout},
		{"canceled", context.Canceled, ErrTimeout},
		{"duplicate key", gorm.ErrDuplicatedKey, ErrConflict},
		{"bad connection", driver.ErrBadConn, ErrUnavailable},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), ErrUnavailable},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := wrapErr(tc.in); !errors.Is(got, tc.want) {
				t.Errorf("wrapErr(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestWrapErr_TaxonomyPassesThrough(t *testing.T) {
	if wrapErr(nil) != nil {
		t.Error("Expected nil to pass through")
	}

	wrapped := fmt.Errorf("%w: email taken", ErrConflict)
	if got := wrapErr(wrapped); got != wrapped {
		t.Errorf("Expected taxonomy errors to pass through unchanged, got %v", got)
	}

	opaque := errors.New("something else entirely")
	if got := wrapErr(opaque); got != opaque {
		t.Errorf("Expected unclassified errors to pass through unchanged, got %v", got)
	}
}

func newRetryStore(t *testing.T, maxRetries int) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return &Store{
		db:         db,
		maxRetries: maxRetries,
		backoff:    time.Millisecond,
		metrics:    monitoring.NewStoreMetrics(),
	}
}

func TestWithRetry_TransientFailureRecovers(t *testing.T) {
	s := newRetryStore(t, 3)

	attempts := 0
	err := s.withRetry(context.Background(), "flaky_lookup", func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected recovery after transient failures, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_ExhaustedRetriesSurfaceUnavailable(t *testing.T) {
	s := newRetryStore(t, 2)

	attempts := 0
	err := s.withRetry(context.Background(), "dead_connection", func(tx *gorm.DB) error {
		attempts++
		return driver.ErrBadConn
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable after exhausting retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected initial attempt plus 2 retries, got %d attempts", attempts)
	}
}

func TestWithRetry_NonTransientNotRetried(t *testing.T) {
	s := newRetryStore(t, 3)

	attempts := 0
	err := s.withRetry(context.Background(), "bad_input", func(tx *gorm.DB) error {
		attempts++
		return validationErr("title is required")
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected a single attempt for a validation failure, got %d", attempts)
	}
}

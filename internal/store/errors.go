package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/gorm"
)

// Failure taxonomy surfaced by every store operation. Callers classify with
// errors.Is; only ErrTimeout and ErrUnavailable are worth retrying.
var (
	ErrValidation  = errors.New("invalid input")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrTimeout     = errors.New("operation timed out")
	ErrUnavailable = errors.New("store unavailable")
)

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// wrapErr maps driver and context failures onto the taxonomy. Errors already
// in the taxonomy pass through unchanged.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case isTransient(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// isTransient reports whether the failure is connection-level and eligible
// for a bounded retry with backoff.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, fragment := range []string{"connection refused", "connection reset", "broken pipe"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

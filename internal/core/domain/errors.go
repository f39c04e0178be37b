package domain

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when a deploy targets an app that already has an
// active deployment.
var ErrConflict = errors.New("deployment already active for app")

// ErrNotFound is returned when a status or logs lookup targets an app with no
// active deployment.
var ErrNotFound = errors.New("no active deployment for app")

// ErrPortExhausted is returned when the port pool has no free port. It is
// terminal for the deploy attempt, not retryable.
var ErrPortExhausted = errors.New("no free port in pool")

// ErrValidation is returned for malformed deploy input.
var ErrValidation = errors.New("invalid request")

// ErrCatalogUnavailable is returned when the catalog cannot be reached for any
// reason (auth, rate limit, network). It never affects deploy or stop.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// RuntimeError wraps a container engine failure. Diagnostic carries the
// engine's own error text unchanged.
type RuntimeError struct {
	Op         string
	Diagnostic string
	Err        error
}

func (e *RuntimeError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("runtime %s failed: %s", e.Op, e.Diagnostic)
	}
	return fmt.Sprintf("runtime %s failed: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

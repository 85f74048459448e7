package internal

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the sync engine can surface. No raw
// transport error crosses the controller boundary unclassified.
type ErrorKind int

const (
	// KindConfig means the backend is unreachable or misconfigured; fatal to
	// the session, no retry loop.
	KindConfig ErrorKind = iota
	// KindNotFound is expected control flow (lookup miss treated as the
	// create/empty path).
	KindNotFound
	// KindTransient covers timeouts and temporary remote failures; the user
	// may retry, background subscriptions reconnect silently.
	KindTransient
	// KindValidation is rejected input, caught before any remote call.
	KindValidation
	// KindConflict means the entity already exists; callers treat it as
	// idempotent success.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not found"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// SyncError wraps a remote or local failure with its classification and the
// operation that produced it.
type SyncError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the user may retry the operation.
func (e *SyncError) Retryable() bool {
	return e.Kind == KindTransient
}

func newSyncError(kind ErrorKind, op string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Err: err}
}

func newValidationError(op string, err error) *SyncError {
	return newSyncError(KindValidation, op, err)
}

// ErrorKindOf extracts the classification, defaulting to transient so an
// unclassified failure never becomes a silent fatal.
func ErrorKindOf(err error) ErrorKind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return KindTransient
}

// asSyncError returns the wrapped *SyncError, or wraps a bare error under the
// given op with the default classification.
func asSyncError(err error, op string) *SyncError {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}
	return newSyncError(ErrorKindOf(err), op, err)
}

package proto

import (
	"errors"
	"fmt"
)

// Error taxonomy for the storage engine. Callers classify failures with
// errors.Is against these sentinels; every wrapped error keeps its chain.
var (
	// ErrObjectMissing marks a folder or item that does not exist. Safe to
	// surface as "not found".
	ErrObjectMissing = errors.New("inventory object missing")

	// ErrSecurity marks a request for a structurally forbidden identifier,
	// such as the all-zero folder.
	ErrSecurity = errors.New("inventory security violation")

	// ErrUnrecoverable marks a request that would corrupt invariants if
	// honored. Never retried.
	ErrUnrecoverable = errors.New("unrecoverable inventory storage error")

	// ErrStorage wraps any backend failure: network, timeout, decode. The
	// general catch-all.
	ErrStorage = errors.New("inventory storage error")
)

// classifiedError files a failure under one sentinel while keeping the
// cause chain reachable, so errors.Is matches both the sentinel and
// whatever the cause already wrapped.
type classifiedError struct {
	sentinel error
	msg      string
	cause    error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *classifiedError) Unwrap() error { return e.cause }

func (e *classifiedError) Is(target error) bool { return target == e.sentinel }

// StorageError classifies cause under ErrStorage with a formatted
// message. A nil cause still produces a valid error.
func StorageError(cause error, format string, args ...interface{}) error {
	return &classifiedError{sentinel: ErrStorage, msg: fmt.Sprintf(format, args...), cause: cause}
}

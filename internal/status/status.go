// Package status defines the error taxonomy shared by the runtime.
//
// Every failure a caller can observe maps onto one of the sentinel errors
// below. Packages attach context with github.com/pkg/errors wrapping, so
// callers classify failures with errors.Is and still get a readable chain.
package status

import (
	"github.com/pkg/errors"
)

// Sentinel errors for the runtime.
var (
	// ErrInvalidHandle reports a stale, unknown, or already destroyed handle.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrInvalidArgument reports a shape/dtype/format mismatch detected
	// before any device work is enqueued.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflictingLockMode reports the same resource requested under
	// incompatible lock modes within one submission.
	ErrConflictingLockMode = errors.New("conflicting lock mode")

	// ErrOutOfMemory reports an allocator failure.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrDevice reports an asynchronous failure surfaced from a stream
	// operation, detected on the next synchronization.
	ErrDevice = errors.New("device error")
)

// InvalidHandlef wraps ErrInvalidHandle with a formatted message.
func InvalidHandlef(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidHandle, format, args...)
}

// InvalidArgumentf wraps ErrInvalidArgument with a formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// ConflictingLockModef wraps ErrConflictingLockMode with a formatted message.
func ConflictingLockModef(format string, args ...any) error {
	return errors.Wrapf(ErrConflictingLockMode, format, args...)
}

// OutOfMemoryf wraps ErrOutOfMemory with a formatted message.
func OutOfMemoryf(format string, args ...any) error {
	return errors.Wrapf(ErrOutOfMemory, format, args...)
}

// Devicef wraps ErrDevice with a formatted message.
func Devicef(format string, args ...any) error {
	return errors.Wrapf(ErrDevice, format, args...)
}

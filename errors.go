package tfs

import (
	"fmt"
	"syscall"
)

// DriverError is a wrapper around a POSIX errno code with an optional,
// more specific message. It is the error type the file operations of the
// public API return; New reports an invalid configuration as a plain
// wrapped error, and Close returns a multierror aggregate.
type DriverError struct {
	errno   syscall.Errno
	message string
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.errno.Error()
}

// Errno returns the POSIX error code this error represents.
func (e *DriverError) Errno() syscall.Errno {
	return e.errno
}

// Unwrap lets callers use errors.Is(err, someErrno) against the wrapped
// syscall.Errno.
func (e *DriverError) Unwrap() error {
	return e.errno
}

// NewDriverError creates a DriverError whose message is the errno's default
// description.
func NewDriverError(errno syscall.Errno) *DriverError {
	return &DriverError{errno: errno, message: errno.Error()}
}

// NewDriverErrorWithMessage creates a DriverError with a custom message
// prefixed by the errno's description.
func NewDriverErrorWithMessage(errno syscall.Errno, message string) *DriverError {
	return &DriverError{
		errno:   errno,
		message: fmt.Sprintf("%s: %s", errno.Error(), message),
	}
}

// NewDriverErrorFromError wraps an arbitrary error under an errno code.
func NewDriverErrorFromError(errno syscall.Errno, err error) *DriverError {
	if err == nil {
		return NewDriverError(errno)
	}
	return NewDriverErrorWithMessage(errno, err.Error())
}

package serial

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a ConnectionError.
type ErrorKind int

// Connection error kinds.
const (
	// Other is any failure not covered by a more specific kind
	Other ErrorKind = iota

	// Unsupported means the host exposes no serial port capability
	Unsupported

	// DeviceNotFound means no port matched or the selected port is gone
	DeviceNotFound

	// PermissionDenied means the OS refused access or the port is held by another process
	PermissionDenied
)

func (k ErrorKind) String() string {
	switch k {
	case Unsupported:
		return "serial not supported"
	case DeviceNotFound:
		return "device not found"
	case PermissionDenied:
		return "permission denied"
	default:
		return "connection failed"
	}
}

// ConnectionError is returned when a port cannot be discovered or opened.
type ConnectionError struct {
	Kind ErrorKind

	// Device is the port name or the VID:PID that was searched for
	Device string

	Err error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("connect %s: %s", e.Device, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is a ConnectionError of the given kind.
func IsConnectionError(err error, kind ErrorKind) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Kind == kind
}

// TimeoutError is returned by ReadLine when no complete line arrived in time.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("read timeout after %v", e.After)
}

// Timeout reports true so that callers can detect the condition without
// importing this package.
func (e *TimeoutError) Timeout() bool {
	return true
}

// IsTimeout returns true if err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

var (
	// ErrStreamClosed is returned when the stream ends before a newline arrived,
	// including when the transport is closed during a read.
	ErrStreamClosed = errors.New("stream closed")

	// ErrNotConnected is returned by writes on a closed transport.
	ErrNotConnected = errors.New("not connected")
)

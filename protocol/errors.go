package protocol

import (
	"errors"
	"fmt"
)

// ProtocolError is returned when the device answers with something other than
// the expected response, or when a command cannot be encoded.
type ProtocolError struct {
	// Operation is the command or phase that failed
	Operation string

	// Response is the raw line received from the device, if any
	Response string

	// Reason describes what was expected
	Reason string

	// Err is the transport error that prevented a response, if any
	Err error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Reason, e.Err)
	case e.Response != "" && e.Reason != "":
		return fmt.Sprintf("%s failed: %s (got %q)", e.Operation, e.Reason, e.Response)
	case e.Response != "":
		return fmt.Sprintf("%s failed: unexpected response %q", e.Operation, e.Response)
	default:
		return fmt.Sprintf("%s failed: %s", e.Operation, e.Reason)
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ScriptTooLargeError is returned when a script body exceeds MaxScriptSize
// bytes. No data is sent to the device in that case.
type ScriptTooLargeError struct {
	Size int
	Max  int
}

func (e *ScriptTooLargeError) Error() string {
	return fmt.Sprintf("script is %d bytes, maximum is %d", e.Size, e.Max)
}

// IsScriptTooLarge returns true if err is or wraps a ScriptTooLargeError.
func IsScriptTooLarge(err error) bool {
	var se *ScriptTooLargeError
	return errors.As(err, &se)
}

// RecordError describes a config stream line that could not be applied.
// The reader logs and skips these.
type RecordError struct {
	Line string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("bad record %q: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

package configurator

import (
	"errors"
	"fmt"
)

// ErrAlreadyConnected is returned by Connect when a connection is open.
var ErrAlreadyConnected = errors.New("already connected")

// ApplyError reports which change of a batch failed. Changes before Index
// were written but not saved.
type ApplyError struct {
	Index  int
	Change ChangeKey
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("change %d (%s): %v", e.Index+1, e.Change, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

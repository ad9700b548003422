// SPDX-License-Identifier: MIT

package backend

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrBackendNotFound   = errors.New("backend: backend not found")
	ErrInvalidIdentifier = errors.New("backend: invalid identifier")
	ErrTargetNotFound    = errors.New("backend: target not found")
	ErrOperationFailed   = errors.New("backend: operation failed")
)

// Error wraps a sentinel with the backend and operation that produced it.
type Error struct {
	Sentinel error
	Backend  string
	Op       string
	Err      error // nested lower-level error from the backend client
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("backend %q: %s: %v", e.Backend, e.Op, e.Sentinel)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Sentinel, e.Err}
	}
	return []error{e.Sentinel}
}

// IsCancelled reports whether err is a cancellation signal. Cancellation is
// never folded into the error taxonomy; it always propagates as-is.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// WrapOp tags a backend client failure as ErrOperationFailed. Cancellation
// passes through untouched so callers can distinguish it.
func WrapOp(backendName, op string, err error) error {
	if err == nil || IsCancelled(err) {
		return err
	}
	return &Error{Sentinel: ErrOperationFailed, Backend: backendName, Op: op, Err: err}
}

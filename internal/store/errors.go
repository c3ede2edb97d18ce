package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped in an EXECUTE StoreError when an update targets a
// row that does not exist.
var ErrNotFound = errors.New("row not found")

// ErrorKind categorizes store failures.
type ErrorKind string

const (
	// KindOpen covers opening the database, pragmas and migrations.
	KindOpen ErrorKind = "OPEN"

	// KindExecute covers statement preparation and execution.
	KindExecute ErrorKind = "EXECUTE"

	// KindParse covers decoding a stored row back into an entity.
	KindParse ErrorKind = "PARSE"
)

// StoreError is returned by every store operation that fails.
type StoreError struct {
	Kind ErrorKind
	Op   string // Operation name, e.g. "insert event"
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying driver or decoding error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func openError(op string, err error) *StoreError {
	return &StoreError{Kind: KindOpen, Op: op, Err: err}
}

func execError(op string, err error) *StoreError {
	return &StoreError{Kind: KindExecute, Op: op, Err: err}
}

func parseError(op string, err error) *StoreError {
	return &StoreError{Kind: KindParse, Op: op, Err: err}
}

// IsOpenError reports whether err is an OPEN StoreError.
// Uses errors.As to handle wrapped errors.
func IsOpenError(err error) bool {
	return hasKind(err, KindOpen)
}

// IsExecuteError reports whether err is an EXECUTE StoreError.
func IsExecuteError(err error) bool {
	return hasKind(err, KindExecute)
}

// IsParseError reports whether err is a PARSE StoreError.
func IsParseError(err error) bool {
	return hasKind(err, KindParse)
}

func hasKind(err error, kind ErrorKind) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

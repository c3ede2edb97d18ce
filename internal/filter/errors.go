package filter

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes filter failures.
type ErrorCode string

const (
	// ErrCodeInvalidFilter indicates a malformed filter source.
	ErrCodeInvalidFilter ErrorCode = "INVALID_FILTER"
)

// FilterError is returned by Compile when the source is not a well-formed
// filter expression.
type FilterError struct {
	Code ErrorCode

	// Path locates the offending element, e.g. "$.AND[1]".
	Path string

	Message string
}

// Error implements the error interface.
func (e *FilterError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidFilter reports whether err is an INVALID_FILTER error.
// Uses errors.As to handle wrapped errors.
func IsInvalidFilter(err error) bool {
	var fe *FilterError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodeInvalidFilter
	}
	return false
}

func invalidf(path, format string, args ...any) *FilterError {
	return &FilterError{
		Code:    ErrCodeInvalidFilter,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}

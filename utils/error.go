package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Failure taxonomy for the entry ingestion pipeline.
// Handlers map these to HTTP statuses; the workflow package never
// touches net/http.
var (
	// ErrNotFound: referenced project or entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited: weekly-edit throttle (one new entry per project/type per 7 days).
	ErrRateLimited = errors.New("rate limited")
	// ErrFrozen: edit window closed or opportunity locked by Won/Abandoned status.
	ErrFrozen = errors.New("frozen")
)

// ValidationError carries per-field messages for a rejected payload.
// For bulk rows the field already includes the 1-based row index.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("validation failed (%d problems)", len(e.Problems))
}

func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

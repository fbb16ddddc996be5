package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("booking not found")

// ErrConcurrentUpdate means a concurrent booking on the same practitioner
// slot or patient quota aborted this one. Nothing was written; resubmit.
var ErrConcurrentUpdate = errors.New("booking conflicts with a concurrent update, please retry")

// ConflictError reports the existing booking a candidate overlaps.
type ConflictError struct {
	ExistingID uuid.UUID
	Start      time.Time
	End        time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time slot overlaps booking %s (%s - %s)",
		e.ExistingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// ValidationError rejects a request before any pricing runs.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

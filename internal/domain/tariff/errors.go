package tariff

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is wrapped by every failed tariff resolution.
var ErrNotFound = errors.New("tariff not found")

// ErrCategoryNotFound is returned when a pathology category id or code is
// unknown.
var ErrCategoryNotFound = errors.New("pathology category not found")

// LookupError describes a resolution that matched zero rows, or more than one
// row (a broken rate table). It unwraps to ErrNotFound.
type LookupError struct {
	Year         int
	CategoryID   uuid.UUID
	Place        Place
	SessionIndex int
	Matches      int
}

func (e *LookupError) Error() string {
	if e.Matches > 1 {
		return fmt.Sprintf("tariff ambiguous: %d rows match year %d, category %s, place %s, session %d",
			e.Matches, e.Year, e.CategoryID, e.Place, e.SessionIndex)
	}
	return fmt.Sprintf("tariff not found for year %d, category %s, place %s, session %d",
		e.Year, e.CategoryID, e.Place, e.SessionIndex)
}

func (e *LookupError) Unwrap() error { return ErrNotFound }

package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Overlaps is the half-open interval test: touching intervals do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// localDay returns the bounds of t's calendar day in loc.
func localDay(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// localYear returns the bounds of t's calendar year in loc.
func localYear(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(t.In(loc).Year(), 1, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(1, 0, 0)
}

// OverlapValidator rejects bookings that overlap another non-cancelled
// booking of the same practitioner at the same practice. Only bookings
// starting on the candidate's local calendar date are compared.
type OverlapValidator struct {
	repo Repository
	loc  *time.Location
}

func NewOverlapValidator(repo Repository, loc *time.Location) *OverlapValidator {
	return &OverlapValidator{repo: repo, loc: loc}
}

func (v *OverlapValidator) Validate(ctx context.Context, candidate *Booking, excludeID uuid.UUID) error {
	from, to := localDay(candidate.Start, v.loc)
	others, err := v.repo.ListActiveForSlot(ctx, candidate.PractitionerID, candidate.PracticeID, from, to, excludeID)
	if err != nil {
		return fmt.Errorf("load bookings for overlap check: %w", err)
	}
	for _, o := range others {
		if Overlaps(o.Start, o.End(), candidate.Start, candidate.End()) {
			return &ConflictError{ExistingID: o.ID, Start: o.Start, End: o.End()}
		}
	}
	return nil
}

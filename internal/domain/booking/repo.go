package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	// Update rewrites every schedule and pricing field of b.
	Update(ctx context.Context, b *Booking) error
	// UpdateStatus writes status, cancel_reason and cancelled_at only.
	UpdateStatus(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Booking, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Booking, int, error)

	// ListActiveForSlot returns non-cancelled bookings of (practitioner,
	// practice) starting in [from, to), other than excludeID.
	ListActiveForSlot(ctx context.Context, practitionerID, practiceID uuid.UUID, from, to time.Time, excludeID uuid.UUID) ([]*Booking, error)
	// CountActiveByPrescription counts non-cancelled bookings on a
	// prescription, other than excludeID.
	CountActiveByPrescription(ctx context.Context, prescriptionID, excludeID uuid.UUID) (int, error)
	// CountActiveAnnual counts the patient's non-cancelled annual-coverage
	// bookings starting in [from, to), other than excludeID.
	CountActiveAnnual(ctx context.Context, patientID uuid.UUID, from, to time.Time, excludeID uuid.UUID) (int, error)
}

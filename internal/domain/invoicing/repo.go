package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// NextSequence returns the next free number for year. Callers hold the
	// year's reference lock.
	NextSequence(ctx context.Context, year int) (int, error)
	// Create stores inv and its booking links.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error)
	// InvoicedBookings returns which of ids are already linked to an invoice.
	InvoicedBookings(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidOn time.Time) (*Invoice, error)
	// MarkOverdue flips pending invoices due before asOf and returns how many
	// changed.
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

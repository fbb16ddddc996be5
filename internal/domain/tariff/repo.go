package tariff

import (
	"context"

	"github.com/google/uuid"
)

type CategoryRepository interface {
	List(ctx context.Context) ([]*Category, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Category, error)
	GetByCode(ctx context.Context, code string) (*Category, error)
	// Upsert inserts or relabels by code, filling c.ID either way.
	Upsert(ctx context.Context, c *Category) error
	// DeleteUnused removes categories no tariff row, booking or prescription
	// refers to.
	DeleteUnused(ctx context.Context) (int, error)
}

type RowRepository interface {
	// RowsFor returns every row of (year, category, place) ordered by
	// session_min.
	RowsFor(ctx context.Context, year int, categoryID uuid.UUID, place Place) ([]*Row, error)
	ListByYear(ctx context.Context, year int, place Place) ([]*Row, error)
	// Upsert keys on (year, category, place, session_min, session_max).
	Upsert(ctx context.Context, r *Row) error
	DeleteYear(ctx context.Context, year int, place Place) (int, error)
}

package tariff

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

type mockCategoryRepo struct {
	store map[uuid.UUID]*Category
}

func newMockCategoryRepo() *mockCategoryRepo {
	return &mockCategoryRepo{store: make(map[uuid.UUID]*Category)}
}

func (m *mockCategoryRepo) List(_ context.Context) ([]*Category, error) {
	var out []*Category
	for _, c := range m.store {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *mockCategoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Category, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return c, nil
}

func (m *mockCategoryRepo) GetByCode(_ context.Context, code string) (*Category, error) {
	for _, c := range m.store {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, ErrCategoryNotFound
}

func (m *mockCategoryRepo) Upsert(ctx context.Context, c *Category) error {
	if existing, err := m.GetByCode(ctx, c.Code); err == nil {
		existing.Label = c.Label
		c.ID, c.CreatedAt = existing.ID, existing.CreatedAt
		return nil
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockCategoryRepo) DeleteUnused(_ context.Context) (int, error) {
	return 0, nil
}

type mockRowRepo struct {
	rows      []*Row
	rowsCalls int
}

func newMockRowRepo() *mockRowRepo { return &mockRowRepo{} }

func (m *mockRowRepo) RowsFor(_ context.Context, year int, categoryID uuid.UUID, place Place) ([]*Row, error) {
	m.rowsCalls++
	var out []*Row
	for _, r := range m.rows {
		if r.Year == year && r.CategoryID == categoryID && r.Place == place {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionMin < out[j].SessionMin })
	return out, nil
}

func (m *mockRowRepo) ListByYear(_ context.Context, year int, place Place) ([]*Row, error) {
	var out []*Row
	for _, r := range m.rows {
		if r.Year == year && r.Place == place {
			out = append(out, r)
		}
	}
	return out, nil
}

func sameMax(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *mockRowRepo) Upsert(_ context.Context, r *Row) error {
	for i, existing := range m.rows {
		if existing.Year == r.Year && existing.CategoryID == r.CategoryID && existing.Place == r.Place &&
			existing.SessionMin == r.SessionMin && sameMax(existing.SessionMax, r.SessionMax) {
			r.ID = existing.ID
			m.rows[i] = r
			return nil
		}
	}
	r.ID = uuid.New()
	r.UpdatedAt = time.Now()
	m.rows = append(m.rows, r)
	return nil
}

func (m *mockRowRepo) DeleteYear(_ context.Context, year int, place Place) (int, error) {
	kept := m.rows[:0]
	n := 0
	for _, r := range m.rows {
		if r.Year == year && r.Place == place {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

// directTx runs fn without a transaction.
type directTx struct{ calls int }

func (d *directTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	d.calls++
	return fn(ctx)
}

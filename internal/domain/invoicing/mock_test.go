package invoicing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/internal/platform/audit"
)

// -- Mock Repository --

type mockRepo struct {
	store  map[uuid.UUID]*Invoice
	linked map[uuid.UUID]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Invoice), linked: make(map[uuid.UUID]uuid.UUID)}
}

func (m *mockRepo) NextSequence(_ context.Context, year int) (int, error) {
	prefix := fmt.Sprintf("FAC-%d-", year)
	highest := 0
	for _, inv := range m.store {
		if !strings.HasPrefix(inv.ReferenceNumber, prefix) {
			continue
		}
		var n int
		fmt.Sscanf(strings.TrimPrefix(inv.ReferenceNumber, prefix), "%d", &n)
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

func (m *mockRepo) Create(_ context.Context, inv *Invoice) error {
	for _, id := range inv.BookingIDs {
		if _, ok := m.linked[id]; ok {
			return ErrAlreadyInvoiced
		}
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	for _, id := range inv.BookingIDs {
		m.linked[id] = inv.ID
	}
	cp := *inv
	m.store[inv.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *mockRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	var out []*Invoice
	for _, inv := range m.store {
		if f.PatientID != nil && inv.PatientID != *f.PatientID {
			continue
		}
		if f.PractitionerID != nil && inv.PractitionerID != *f.PractitionerID {
			continue
		}
		if f.State != nil && inv.State != *f.State {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceNumber > out[j].ReferenceNumber })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) InvoicedBookings(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := m.linked[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockRepo) MarkPaid(_ context.Context, id uuid.UUID, paidOn time.Time) (*Invoice, error) {
	inv, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	inv.State = StatePaid
	inv.PaidDate = &paidOn
	cp := *inv
	return &cp, nil
}

func (m *mockRepo) MarkOverdue(_ context.Context, asOf time.Time) (int, error) {
	n := 0
	for _, inv := range m.store {
		if inv.State == StatePending && inv.DueDate.Before(asOf) {
			inv.State = StateOverdue
			n++
		}
	}
	return n, nil
}

// -- Mock Bookings --

type mockBookings map[uuid.UUID]*booking.Booking

func (m mockBookings) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*booking.Booking, error) {
	var out []*booking.Booking
	for _, id := range ids {
		b, ok := m[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, id)
		}
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

// -- Fake transaction runner --

type fakeTx struct {
	locks []string
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeTx) LockPartitions(_ context.Context, keys ...string) error {
	f.locks = append(f.locks, keys...)
	return nil
}

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, ev audit.Event) error {
	s.events = append(s.events, ev)
	return nil
}

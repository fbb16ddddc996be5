package booking

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/carehub/carehub/internal/domain/prescription"
	"github.com/carehub/carehub/internal/domain/tariff"
)

// -- Mock Repository --

type mockRepo struct {
	store map[uuid.UUID]*Booking
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Booking)}
}

func (m *mockRepo) Create(_ context.Context, b *Booking) error {
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.store[b.ID] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, b *Booking) error {
	if _, ok := m.store[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = time.Now()
	cp := *b
	m.store[b.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, b *Booking) error {
	stored, ok := m.store[b.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status, stored.CancelReason, stored.CancelledAt = b.Status, b.CancelReason, b.CancelledAt
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	b, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*Booking, error) {
	var out []*Booking
	for _, id := range ids {
		if b, ok := m.store[id]; ok {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Booking, int, error) {
	var out []*Booking
	for _, b := range m.store {
		if f.PracticeID != nil && b.PracticeID != *f.PracticeID {
			continue
		}
		if f.PatientID != nil && b.PatientID != *f.PatientID {
			continue
		}
		if len(f.PractitionerIDs) > 0 && !containsID(f.PractitionerIDs, b.PractitionerID) {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.From != nil && b.Start.Before(*f.From) {
			continue
		}
		if f.To != nil && !b.Start.Before(*f.To) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
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

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (m *mockRepo) ListActiveForSlot(_ context.Context, practitionerID, practiceID uuid.UUID, from, to time.Time, excludeID uuid.UUID) ([]*Booking, error) {
	var out []*Booking
	for _, b := range m.store {
		if b.PractitionerID == practitionerID && b.PracticeID == practiceID &&
			!b.Start.Before(from) && b.Start.Before(to) &&
			b.Status != StatusCancelled && b.ID != excludeID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockRepo) CountActiveByPrescription(_ context.Context, prescriptionID, excludeID uuid.UUID) (int, error) {
	n := 0
	for _, b := range m.store {
		if p := b.PrescriptionID(); p != nil && *p == prescriptionID && b.Status != StatusCancelled && b.ID != excludeID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) CountActiveAnnual(_ context.Context, patientID uuid.UUID, from, to time.Time, excludeID uuid.UUID) (int, error) {
	n := 0
	for _, b := range m.store {
		if b.PatientID == patientID && b.CoverageSource() == SourceAnnual &&
			!b.Start.Before(from) && b.Start.Before(to) &&
			b.Status != StatusCancelled && b.ID != excludeID {
			n++
		}
	}
	return n, nil
}

// -- Collaborator fakes --

type mockPrescriptions map[uuid.UUID]*prescription.Prescription

func (m mockPrescriptions) Get(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	p, ok := m[id]
	if !ok {
		return nil, prescription.ErrNotFound
	}
	return p, nil
}

// rateTable serves the 2025 office card of one category for every category
// id it knows, in any year it is keyed with.
type rateTable struct {
	rows map[uuid.UUID][]*tariff.Row
	year int
}

func newRateTable(year int, categories map[uuid.UUID]string) *rateTable {
	t := &rateTable{rows: make(map[uuid.UUID][]*tariff.Row), year: year}
	for id, code := range categories {
		for _, l := range tariff.RateCard2025() {
			if l.CategoryCode != code {
				continue
			}
			t.rows[id] = append(t.rows[id], &tariff.Row{
				Year: year, CategoryID: id, CategoryCode: code, Place: tariff.PlaceOffice,
				SessionMin: l.SessionMin, SessionMax: l.SessionMax,
				ProcedureCode: l.ProcedureCode, DossierCode: l.DossierCode,
				ProcedureFee: l.ProcedureFee, TravelFee: l.TravelFee, DossierFee: l.DossierFee,
				ReimbursementStandard: l.ReimbursementStandard, ReimbursementSpecial: l.ReimbursementSpecial,
				CopayStandard: l.CopayStandard, CopaySpecial: l.CopaySpecial,
			})
		}
	}
	return t
}

func (t *rateTable) Lookup(_ context.Context, year int, categoryID uuid.UUID, place tariff.Place, idx int) (*tariff.Row, error) {
	var match []*tariff.Row
	if year == t.year {
		for _, r := range t.rows[categoryID] {
			if r.Place == place && r.Covers(idx) {
				match = append(match, r)
			}
		}
	}
	if len(match) != 1 {
		return nil, &tariff.LookupError{Year: year, CategoryID: categoryID, Place: place, SessionIndex: idx, Matches: len(match)}
	}
	return match[0], nil
}

// fakeTx runs fn inline and records the partition locks taken.
type fakeTx struct {
	locks [][]string
	err   error
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

func (f *fakeTx) LockPartitions(_ context.Context, keys ...string) error {
	f.locks = append(f.locks, keys)
	return nil
}

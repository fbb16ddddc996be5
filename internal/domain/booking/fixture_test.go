package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/domain/prescription"
	"github.com/carehub/carehub/internal/platform/audit"
	"github.com/carehub/carehub/internal/platform/metrics"
)

type recordingSink struct {
	events []audit.Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, ev audit.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) actions() []string {
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Action)
	}
	return out
}

type fixture struct {
	svc          *Service
	repo         *mockRepo
	tx           *fakeTx
	rx           mockPrescriptions
	sink         *recordingSink
	metrics      *metrics.Metrics
	pc, fa       uuid.UUID
	practitioner uuid.UUID
	practice     uuid.UUID
	patient      uuid.UUID
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:         newMockRepo(),
		tx:           &fakeTx{},
		rx:           mockPrescriptions{},
		sink:         &recordingSink{},
		metrics:      metrics.New(prometheus.NewRegistry()),
		pc:           uuid.New(),
		fa:           uuid.New(),
		practitioner: uuid.New(),
		practice:     uuid.New(),
		patient:      uuid.New(),
		now:          time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Deps{
		Repo:          f.repo,
		Prescriptions: f.rx,
		Tariffs:       newRateTable(2025, map[uuid.UUID]string{f.pc: "PC", f.fa: "FA"}),
		Tx:            f.tx,
		Audit:         audit.NewDispatcher(zerolog.Nop(), f.metrics, f.sink),
		Logger:        zerolog.Nop(),
		Metrics:       f.metrics,
		Location:      time.UTC,
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

// at is a time on 10 March 2025, UTC.
func at(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

// annual is an office booking under annual coverage in category PC.
func (f *fixture) annual(start time.Time) Request {
	cat := f.pc
	return Request{
		PractitionerID:      f.practitioner,
		PracticeID:          f.practice,
		PatientID:           f.patient,
		Start:               start,
		Place:               "office",
		PathologyCategoryID: &cat,
	}
}

func (f *fixture) withPrescription(start time.Time, id uuid.UUID) Request {
	return Request{
		PractitionerID: f.practitioner,
		PracticeID:     f.practice,
		PatientID:      f.patient,
		Start:          start,
		Place:          "office",
		PrescriptionID: &id,
	}
}

func (f *fixture) addPrescription(max *int) uuid.UUID {
	id := uuid.New()
	f.rx[id] = &prescription.Prescription{
		ID:                  id,
		PatientID:           f.patient,
		PathologyCategoryID: f.fa,
		MaxSessions:         max,
		Active:              true,
	}
	return id
}

// daySlot returns the start of the n-th half-hour booking, one per day so
// bookings never overlap.
func daySlot(n int) time.Time {
	return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func (f *fixture) mustCreate(t *testing.T, req Request) *Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return b
}

func intPtr(n int) *int { return &n }

package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/internal/platform/audit"
	"github.com/carehub/carehub/internal/platform/metrics"
	"github.com/carehub/carehub/pkg/money"
)

// BookingSource loads the bookings to settle; booking.Service satisfies it.
type BookingSource interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*booking.Booking, error)
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockPartitions(ctx context.Context, keys ...string) error
}

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Service struct {
	repo     Repository
	bookings BookingSource
	tx       TxRunner
	audit    *audit.Dispatcher
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	loc      *time.Location
	now      func() time.Time
}

type Deps struct {
	Repo     Repository
	Bookings BookingSource
	Tx       TxRunner
	Audit    *audit.Dispatcher
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Location *time.Location
}

func NewService(d Deps) *Service {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     d.Repo,
		bookings: d.Bookings,
		tx:       d.Tx,
		audit:    d.Audit,
		logger:   d.Logger,
		metrics:  d.Metrics,
		tracer:   otel.Tracer("carehub/invoicing"),
		loc:      loc,
		now:      time.Now,
	}
}

// today is the practice-local calendar date, as a UTC midnight.
func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(field, v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, invalid("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// settle loads the bookings and runs the cancellation policy. Without an
// explicit reason a single cancelled booking is judged on the reason stored
// when it was cancelled.
func (s *Service) settle(ctx context.Context, ids []uuid.UUID, reason string) ([]*booking.Booking, decimal.Decimal, string, error) {
	var items []*booking.Booking
	if len(ids) > 0 {
		var err error
		if items, err = s.bookings.ListByIDs(ctx, ids); err != nil {
			return nil, decimal.Decimal{}, "", err
		}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" && len(items) == 1 && items[0].CancelReason != nil {
		reason = *items[0].CancelReason
	}
	amount, desc := Settle(items, reason, s.now())
	return items, amount, desc, nil
}

// Preview settles the bookings without persisting anything.
func (s *Service) Preview(ctx context.Context, req Request) (*Preview, error) {
	ids := dedupe(req.BookingIDs)
	_, amount, desc, err := s.settle(ctx, ids, req.CancelReason)
	if err != nil {
		return nil, err
	}
	return &Preview{Amount: money.Format(amount), Description: desc, BookingIDs: ids}, nil
}

// Create settles the bookings and stores an invoice under the next yearly
// reference number. All bookings must share one patient and practitioner
// and none may already be invoiced.
func (s *Service) Create(ctx context.Context, req Request) (*Invoice, error) {
	ctx, span := s.tracer.Start(ctx, "invoicing.Create")
	defer span.End()

	ids := dedupe(req.BookingIDs)
	if len(ids) == 0 {
		return nil, s.fail(span, invalid("booking_ids is required"))
	}
	sending, err := parseDate("sending_date", req.SendingDate, s.today())
	if err != nil {
		return nil, s.fail(span, err)
	}
	due, err := parseDate("due_date", req.DueDate, sending.Add(DefaultPaymentTerm))
	if err != nil {
		return nil, s.fail(span, err)
	}
	if due.Before(sending) {
		return nil, s.fail(span, invalid("due_date must not precede sending_date"))
	}

	inv := &Invoice{
		State:       StatePending,
		SendingDate: sending,
		DueDate:     due,
		BookingIDs:  ids,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockPartitions(ctx, fmt.Sprintf("invoice-ref:%d", sending.Year())); err != nil {
			return err
		}
		taken, err := s.repo.InvoicedBookings(ctx, ids)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyInvoiced, taken[0])
		}
		items, amount, desc, err := s.settle(ctx, ids, req.CancelReason)
		if err != nil {
			return err
		}
		for _, b := range items[1:] {
			if b.PatientID != items[0].PatientID {
				return invalid("bookings belong to different patients")
			}
			if b.PractitionerID != items[0].PractitionerID {
				return invalid("bookings belong to different practitioners")
			}
		}
		inv.PatientID = items[0].PatientID
		inv.PractitionerID = items[0].PractitionerID
		inv.Amount = amount
		inv.Description = desc
		if d := strings.TrimSpace(req.Description); d != "" {
			inv.Description = d
		}

		seq, err := s.repo.NextSequence(ctx, sending.Year())
		if err != nil {
			return fmt.Errorf("next invoice number: %w", err)
		}
		inv.ReferenceNumber = FormatReference(sending.Year(), seq)
		return s.repo.Create(ctx, inv)
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	if s.metrics != nil {
		s.metrics.InvoicesCreated.Inc()
	}
	span.SetAttributes(
		attribute.String("invoice.id", inv.ID.String()),
		attribute.String("invoice.reference", inv.ReferenceNumber),
		attribute.Int("invoice.bookings", len(ids)),
	)
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("reference", inv.ReferenceNumber).
		Str("amount", money.Format(inv.Amount)).
		Msg("invoice created")
	s.notify(ctx, span, audit.ActionInvoiceCreated, nil, inv)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.Search(ctx, f, limit, offset)
}

// MarkPaid settles the invoice on paidOn (YYYY-MM-DD, today when empty).
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, paidOn string) (*Invoice, error) {
	ctx, span := s.tracer.Start(ctx, "invoicing.MarkPaid", trace.WithAttributes(attribute.String("invoice.id", id.String())))
	defer span.End()

	day, err := parseDate("paid_date", paidOn, s.today())
	if err != nil {
		return nil, s.fail(span, err)
	}
	var before, after *Invoice
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if before, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if before.State == StatePaid {
			return invalid("invoice %s is already paid", before.ReferenceNumber)
		}
		after, err = s.repo.MarkPaid(ctx, id, day)
		return err
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.notify(ctx, span, audit.ActionInvoicePaid, before, after)
	return after, nil
}

// MarkOverdue moves pending invoices whose due date has passed to overdue.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	n, err := s.repo.MarkOverdue(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	s.logger.Info().Int("count", n).Msg("overdue invoices flagged")
	return n, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var ve *ValidationError
	if errors.As(err, &ve) || errors.Is(err, ErrAlreadyInvoiced) || errors.Is(err, booking.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("invoice rejected")
	} else {
		s.logger.Error().Err(err).Msg("invoice failed")
	}
	return err
}

func (s *Service) notify(ctx context.Context, span trace.Span, action string, before, after *Invoice) {
	if s.audit == nil {
		return
	}
	var beforeSnap interface{}
	if before != nil {
		beforeSnap = before.ToResponse()
	}
	ev, err := audit.NewEvent(ctx, action, "invoice", after.ID, beforeSnap, after.ToResponse())
	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("build audit event")
		span.RecordError(err)
		return
	}
	if err := s.audit.Dispatch(ctx, ev); err != nil {
		span.RecordError(err)
		span.AddEvent("audit delivery failed")
	}
}

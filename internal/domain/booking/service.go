package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carehub/carehub/internal/domain/tariff"
	"github.com/carehub/carehub/internal/platform/audit"
	"github.com/carehub/carehub/internal/platform/db"
	"github.com/carehub/carehub/internal/platform/metrics"
)

// TxRunner is the transaction boundary of the pipeline; db.TxManager
// satisfies it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockPartitions(ctx context.Context, keys ...string) error
}

// TariffLookup resolves the rate row for a session; tariff.Resolver
// satisfies it.
type TariffLookup interface {
	Lookup(ctx context.Context, year int, categoryID uuid.UUID, place tariff.Place, sessionIndex int) (*tariff.Row, error)
}

type Service struct {
	repo      Repository
	validator *OverlapValidator
	coverage  *CoverageResolver
	tariffs   TariffLookup
	tx        TxRunner
	audit     *audit.Dispatcher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	loc       *time.Location
	now       func() time.Time
}

type Deps struct {
	Repo          Repository
	Prescriptions PrescriptionSource
	Tariffs       TariffLookup
	Tx            TxRunner
	Audit         *audit.Dispatcher
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
	Location      *time.Location
}

func NewService(d Deps) *Service {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      d.Repo,
		validator: NewOverlapValidator(d.Repo, loc),
		coverage:  NewCoverageResolver(d.Repo, d.Prescriptions, loc),
		tariffs:   d.Tariffs,
		tx:        d.Tx,
		audit:     d.Audit,
		logger:    d.Logger,
		metrics:   d.Metrics,
		tracer:    otel.Tracer("carehub/booking"),
		loc:       loc,
		now:       time.Now,
	}
}

// draft turns a request into an unpriced scheduled booking, checking the
// mandatory fields.
func (s *Service) draft(req Request) (*Booking, error) {
	switch {
	case req.PractitionerID == uuid.Nil:
		return nil, invalid("practitioner_id", "required")
	case req.PracticeID == uuid.Nil:
		return nil, invalid("practice_id", "required")
	case req.PatientID == uuid.Nil:
		return nil, invalid("patient_id", "required")
	case req.Start.IsZero():
		return nil, invalid("start", "required")
	case req.DurationMinutes < 0:
		return nil, invalid("duration_minutes", "must be positive")
	}
	place, err := tariff.ParsePlace(req.Place)
	if err != nil {
		return nil, invalid("place", "%s", err.Error())
	}
	mode := PaymentMode(req.PaymentMode)
	switch mode {
	case "":
		mode = PaymentTotal
	case PaymentTotal, PaymentThirdParty:
	default:
		return nil, invalid("payment_mode", "must be total or third_party")
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = DefaultDurationMinutes
	}
	return &Booking{
		PractitionerID:       req.PractitionerID,
		PracticeID:           req.PracticeID,
		PatientID:            req.PatientID,
		Start:                req.Start,
		DurationMinutes:      duration,
		Place:                place,
		Status:               StatusScheduled,
		SpecialReimbursement: req.SpecialReimbursement,
		PaymentMode:          mode,
		Note:                 req.Note,
	}, nil
}

// partitionKeys names the advisory locks guarding b's practitioner slot and
// patient quotas.
func (s *Service) partitionKeys(b *Booking, prescriptionID *uuid.UUID) []string {
	lt := b.Start.In(s.loc)
	keys := []string{
		fmt.Sprintf("slot:%s:%s:%s", b.PractitionerID, b.PracticeID, lt.Format("2006-01-02")),
		fmt.Sprintf("annual:%s:%d", b.PatientID, lt.Year()),
	}
	if prescriptionID != nil {
		keys = append(keys, fmt.Sprintf("rx:%s:%s", b.PatientID, *prescriptionID))
	}
	return keys
}

// price runs validate, coverage, tariff and pricing on b. The caller holds
// the partition locks.
func (s *Service) price(ctx context.Context, b *Booking, req Request, excludeID uuid.UUID) (*Resolution, error) {
	if err := s.validator.Validate(ctx, b, excludeID); err != nil {
		return nil, err
	}
	res, err := s.coverage.Resolve(ctx, Draft{
		PatientID:      b.PatientID,
		Start:          b.Start,
		PrescriptionID: req.PrescriptionID,
		CategoryID:     req.PathologyCategoryID,
	}, excludeID)
	if err != nil {
		return nil, err
	}
	row, err := s.tariffs.Lookup(ctx, b.Start.In(s.loc).Year(), res.CategoryID, b.Place, res.SessionIndex)
	if err != nil {
		return nil, err
	}
	idx := res.SessionIndex
	b.Coverage = res.Coverage
	b.SessionIndex = &idx
	*b = ApplyPricing(*b, row, req.SpecialReimbursement, res.IsOverAnnual)
	return res, nil
}

func (s *Service) Create(ctx context.Context, req Request) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Create")
	defer span.End()
	started := time.Now()

	b, err := s.draft(req)
	if err != nil {
		return nil, s.reject(ctx, span, "create", err)
	}

	var res *Resolution
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockPartitions(ctx, s.partitionKeys(b, req.PrescriptionID)...); err != nil {
			return err
		}
		var err error
		if res, err = s.price(ctx, b, req, uuid.Nil); err != nil {
			return err
		}
		return s.repo.Create(ctx, b)
	})
	s.observe("create", started)
	if err != nil {
		return nil, s.reject(ctx, span, "create", err)
	}

	s.accepted(span, "create", b)
	s.notify(ctx, span, audit.ActionBookingCreated, nil, b, res)
	return b, nil
}

// Update re-runs the whole pipeline on the new request; the booking itself
// is excluded from every sibling count.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req Request) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Update", trace.WithAttributes(attribute.String("booking.id", id.String())))
	defer span.End()
	started := time.Now()

	b, err := s.draft(req)
	if err != nil {
		return nil, s.reject(ctx, span, "update", err)
	}

	var (
		before *Booking
		res    *Resolution
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if before, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if before.Status == StatusCancelled {
			return invalid("status", "booking %s is cancelled and cannot be edited", id)
		}
		keys := append(s.partitionKeys(b, req.PrescriptionID), s.partitionKeys(before, before.PrescriptionID())...)
		if err := s.tx.LockPartitions(ctx, keys...); err != nil {
			return err
		}

		b.ID = before.ID
		b.Status = before.Status
		b.CancelReason, b.CancelledAt = before.CancelReason, before.CancelledAt
		b.CreatedAt = before.CreatedAt
		if res, err = s.price(ctx, b, req, id); err != nil {
			return err
		}
		return s.repo.Update(ctx, b)
	})
	s.observe("update", started)
	if err != nil {
		return nil, s.reject(ctx, span, "update", err)
	}

	s.accepted(span, "update", b)
	s.notify(ctx, span, audit.ActionBookingUpdated, before, b, res)
	return b, nil
}

// Cancel moves a scheduled booking to cancelled. The reason is kept for
// settlement.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Booking, error) {
	return s.transition(ctx, id, StatusCancelled, reason)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.transition(ctx, id, StatusCompleted, "")
}

func (s *Service) NoShow(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.transition(ctx, id, StatusNoShow, "")
}

var transitionActions = map[Status]string{
	StatusCancelled: audit.ActionBookingCancelled,
	StatusCompleted: audit.ActionBookingCompleted,
	StatusNoShow:    audit.ActionBookingNoShow,
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, reason string) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("booking.id", id.String()),
		attribute.String("booking.status", string(to)),
	))
	defer span.End()
	op := string(to)

	var before, after *Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusScheduled {
			return invalid("status", "booking %s is %s, only scheduled bookings can become %s", id, b.Status, to)
		}
		prior := *b
		before = &prior

		b.Status = to
		if to == StatusCancelled {
			now := s.now().UTC()
			b.CancelledAt = &now
			if reason != "" {
				b.CancelReason = &reason
			}
		}
		if err := s.repo.UpdateStatus(ctx, b); err != nil {
			return err
		}
		after = b
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, span, op, err)
	}

	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(op).Inc()
	}
	s.notify(ctx, span, transitionActions[to], before, after, nil)
	return after, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, f Filter, limit, offset int) ([]*Booking, int, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, invalid("to", "must be after from")
	}
	return s.repo.Search(ctx, f, limit, offset)
}

// ListByIDs returns the bookings found among ids; unknown ids are an error.
func (s *Service) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Booking, error) {
	items, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[uuid.UUID]bool, len(items))
	for _, b := range items {
		found[b.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	return items, nil
}

// reject normalises pipeline errors, counts and logs them.
func (s *Service) reject(ctx context.Context, span trace.Span, op string, err error) error {
	if errors.Is(err, db.ErrSerialization) {
		err = fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	reason := rejectReason(err)
	if s.metrics != nil {
		s.metrics.BookingsRejected.WithLabelValues(op, reason).Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	ev := s.logger.Warn()
	if reason == "error" {
		ev = s.logger.Error()
	}
	actor, _ := audit.ActorFromContext(ctx)
	ev.Err(err).Str("operation", op).Str("reason", reason).Str("request_id", actor.RequestID).Msg("booking rejected")
	return err
}

func rejectReason(err error) string {
	var (
		ce *ConflictError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, tariff.ErrNotFound):
		return "tariff_not_found"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) observe(op string, started time.Time) {
	if s.metrics != nil {
		s.metrics.PipelineDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	}
}

func (s *Service) accepted(span trace.Span, op string, b *Booking) {
	if s.metrics != nil {
		s.metrics.BookingsPriced.WithLabelValues(op, string(b.CoverageSource())).Inc()
	}
	span.SetAttributes(
		attribute.String("booking.id", b.ID.String()),
		attribute.String("booking.coverage", string(b.CoverageSource())),
		attribute.Int("booking.session_index", derefInt(b.SessionIndex)),
		attribute.Bool("booking.over_annual", b.IsOverAnnual),
		attribute.String("booking.procedure_code", b.ProcedureCode),
	)
}

// notify hands the committed change to the audit dispatcher. Delivery
// failures are logged and counted by the dispatcher and recorded on the
// span; the committed operation still succeeds.
func (s *Service) notify(ctx context.Context, span trace.Span, action string, before, after *Booking, res *Resolution) {
	if s.audit == nil {
		return
	}
	var beforeSnap, afterSnap interface{}
	if before != nil {
		beforeSnap = before.ToResponse()
	}
	if after != nil {
		afterSnap = after.ToResponse()
	}
	actions := []string{action}
	if res != nil && res.Exhausted != nil {
		actions = append(actions, audit.ActionCoverageFallback)
	}
	if res != nil && res.IsOverAnnual {
		actions = append(actions, audit.ActionOverAnnual)
	}

	events := make([]audit.Event, 0, len(actions))
	for _, a := range actions {
		ev, err := audit.NewEvent(ctx, a, "booking", after.ID, beforeSnap, afterSnap)
		if err != nil {
			s.logger.Error().Err(err).Str("action", a).Msg("build audit event")
			span.RecordError(err)
			continue
		}
		events = append(events, ev)
	}
	if err := s.audit.Dispatch(ctx, events...); err != nil {
		span.RecordError(err)
		span.AddEvent("audit delivery failed")
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CategoryChecker confirms a pathology category exists; the tariff category
// repository satisfies it.
type CategoryChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ValidationError is returned for requests the registry refuses to store.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Service struct {
	repo       Repository
	categories CategoryChecker
}

func NewService(repo Repository, categories CategoryChecker) *Service {
	return &Service{repo: repo, categories: categories}
}

func (s *Service) Create(ctx context.Context, req Request) (*Prescription, error) {
	if req.PatientID == uuid.Nil {
		return nil, invalid("patient_id is required")
	}
	p := &Prescription{PatientID: req.PatientID, Active: true}
	if err := s.apply(ctx, p, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}
	return p, nil
}

// Update replaces the mutable fields. The patient never changes.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req Request) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PatientID != uuid.Nil && req.PatientID != p.PatientID {
		return nil, invalid("patient_id cannot be changed")
	}
	if err := s.apply(ctx, p, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update prescription: %w", err)
	}
	return p, nil
}

func (s *Service) apply(ctx context.Context, p *Prescription, req Request) error {
	if req.PathologyCategoryID == uuid.Nil {
		return invalid("pathology_category_id is required")
	}
	if s.categories != nil {
		ok, err := s.categories.Exists(ctx, req.PathologyCategoryID)
		if err != nil {
			return err
		}
		if !ok {
			return invalid("unknown pathology_category_id %s", req.PathologyCategoryID)
		}
	}
	if req.MaxSessions != nil && *req.MaxSessions < 1 {
		return invalid("max_sessions must be at least 1")
	}
	if req.PrescribedOn == "" {
		return invalid("prescribed_on is required")
	}
	on, err := time.Parse(dateLayout, req.PrescribedOn)
	if err != nil {
		return invalid("prescribed_on must be a date (YYYY-MM-DD)")
	}

	p.PathologyCategoryID = req.PathologyCategoryID
	p.MaxSessions = req.MaxSessions
	p.PrescribedOn = on
	p.Note = req.Note
	if req.Active != nil {
		p.Active = *req.Active
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListByPatient(ctx, patientID, activeOnly, limit, offset)
}

// IsValidation reports whether err was produced by request validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

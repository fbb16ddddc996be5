package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carehub/carehub/internal/domain/prescription"
)

// AnnualQuota is the number of annual-coverage sessions a patient may have
// per calendar year before they are billed in full.
const AnnualQuota = 18

// PrescriptionSource is the prescription registry as seen by the engine.
type PrescriptionSource interface {
	Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
}

// Draft is the coverage-relevant part of a booking request.
type Draft struct {
	PatientID      uuid.UUID
	Start          time.Time
	PrescriptionID *uuid.UUID
	CategoryID     *uuid.UUID
}

// Resolution is the outcome of coverage resolution. CategoryID is the
// category to price with: the prescription's, or the explicit one.
type Resolution struct {
	Coverage     Coverage
	CategoryID   uuid.UUID
	SessionIndex int
	IsOverAnnual bool
	// Exhausted is set when a capped prescription was dropped in favour of
	// annual coverage.
	Exhausted *uuid.UUID
}

// CoverageResolver decides which quota a session counts against and its
// ordinal within that quota. Counts always come from the current
// non-cancelled siblings, never from stored counters.
type CoverageResolver struct {
	repo          Repository
	prescriptions PrescriptionSource
	loc           *time.Location
}

func NewCoverageResolver(repo Repository, prescriptions PrescriptionSource, loc *time.Location) *CoverageResolver {
	return &CoverageResolver{repo: repo, prescriptions: prescriptions, loc: loc}
}

func (r *CoverageResolver) Resolve(ctx context.Context, d Draft, excludeID uuid.UUID) (*Resolution, error) {
	var exhausted *uuid.UUID
	if d.PrescriptionID != nil {
		res, err := r.resolvePrescription(ctx, d, excludeID)
		if err != nil || res != nil {
			return res, err
		}
		exhausted = d.PrescriptionID
	}

	if d.CategoryID == nil || *d.CategoryID == uuid.Nil {
		if exhausted != nil {
			return nil, invalid("pathology_category_id", "prescription %s has no sessions left; a pathology category is required for annual coverage", *exhausted)
		}
		return nil, invalid("pathology_category_id", "required for annual coverage")
	}

	from, to := localYear(d.Start, r.loc)
	others, err := r.repo.CountActiveAnnual(ctx, d.PatientID, from, to, excludeID)
	if err != nil {
		return nil, fmt.Errorf("count annual sessions: %w", err)
	}
	count := others + 1
	return &Resolution{
		Coverage:     AnnualCoverage{CategoryID: *d.CategoryID},
		CategoryID:   *d.CategoryID,
		SessionIndex: count,
		IsOverAnnual: count > AnnualQuota,
		Exhausted:    exhausted,
	}, nil
}

// resolvePrescription returns nil, nil when the prescription's cap is
// reached and resolution should fall through to annual coverage.
func (r *CoverageResolver) resolvePrescription(ctx context.Context, d Draft, excludeID uuid.UUID) (*Resolution, error) {
	p, err := r.prescriptions.Get(ctx, *d.PrescriptionID)
	if err != nil {
		if errors.Is(err, prescription.ErrNotFound) {
			return nil, invalid("prescription_id", "prescription %s not found", *d.PrescriptionID)
		}
		return nil, fmt.Errorf("load prescription: %w", err)
	}
	if p.PatientID != d.PatientID {
		return nil, invalid("prescription_id", "prescription %s belongs to another patient", p.ID)
	}
	if !p.Active {
		return nil, invalid("prescription_id", "prescription %s is not active", p.ID)
	}

	used, err := r.repo.CountActiveByPrescription(ctx, p.ID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("count prescription sessions: %w", err)
	}
	if p.Exhausted(used) {
		return nil, nil
	}
	return &Resolution{
		Coverage:     PrescriptionCoverage{PrescriptionID: p.ID},
		CategoryID:   p.PathologyCategoryID,
		SessionIndex: used + 1,
	}, nil
}

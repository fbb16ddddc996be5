package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carehub/carehub/internal/domain/tariff"
	"github.com/carehub/carehub/pkg/money"
)

const DefaultDurationMinutes = 30

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type PaymentMode string

const (
	PaymentTotal      PaymentMode = "total"
	PaymentThirdParty PaymentMode = "third_party"
)

type CoverageSource string

const (
	SourcePrescription CoverageSource = "prescription"
	SourceAnnual       CoverageSource = "annual"
)

// Coverage says which quota a session is counted against. The only
// implementations are PrescriptionCoverage and AnnualCoverage.
type Coverage interface {
	Source() CoverageSource
	isCoverage()
}

// PrescriptionCoverage consumes a session of a prescription's quota. The
// category priced is the prescription's.
type PrescriptionCoverage struct {
	PrescriptionID uuid.UUID
}

func (PrescriptionCoverage) Source() CoverageSource { return SourcePrescription }
func (PrescriptionCoverage) isCoverage()            {}

// AnnualCoverage consumes a session of the patient's yearly quota.
type AnnualCoverage struct {
	CategoryID uuid.UUID
}

func (AnnualCoverage) Source() CoverageSource { return SourceAnnual }
func (AnnualCoverage) isCoverage()            {}

type Booking struct {
	ID                   uuid.UUID
	PractitionerID       uuid.UUID
	PracticeID           uuid.UUID
	PatientID            uuid.UUID
	Start                time.Time
	DurationMinutes      int
	Place                tariff.Place
	Status               Status
	Coverage             Coverage
	SessionIndex         *int
	IsOverAnnual         bool
	SpecialReimbursement bool
	PaymentMode          PaymentMode
	ProcedureCode        string
	DossierCode          *string
	ProcedureFee         decimal.Decimal
	Reimbursement        decimal.Decimal
	CoPay                decimal.Decimal
	Note                 *string
	CancelReason         *string
	CancelledAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (b *Booking) End() time.Time {
	return b.Start.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// PrescriptionID is set only for prescription coverage.
func (b *Booking) PrescriptionID() *uuid.UUID {
	if c, ok := b.Coverage.(PrescriptionCoverage); ok {
		id := c.PrescriptionID
		return &id
	}
	return nil
}

// CategoryID is set only for annual coverage.
func (b *Booking) CategoryID() *uuid.UUID {
	if c, ok := b.Coverage.(AnnualCoverage); ok {
		id := c.CategoryID
		return &id
	}
	return nil
}

func (b *Booking) CoverageSource() CoverageSource {
	if b.Coverage == nil {
		return ""
	}
	return b.Coverage.Source()
}

// Request is the create/update payload.
type Request struct {
	PractitionerID       uuid.UUID  `json:"practitioner_id"`
	PracticeID           uuid.UUID  `json:"practice_id"`
	PatientID            uuid.UUID  `json:"patient_id"`
	Start                time.Time  `json:"start"`
	DurationMinutes      int        `json:"duration_minutes"`
	Place                string     `json:"place"`
	PrescriptionID       *uuid.UUID `json:"prescription_id"`
	PathologyCategoryID  *uuid.UUID `json:"pathology_category_id"`
	SpecialReimbursement bool       `json:"special_reimbursement"`
	PaymentMode          string     `json:"payment_mode"`
	Note                 *string    `json:"note"`
}

type Response struct {
	ID                   uuid.UUID      `json:"id"`
	PractitionerID       uuid.UUID      `json:"practitioner_id"`
	PracticeID           uuid.UUID      `json:"practice_id"`
	PatientID            uuid.UUID      `json:"patient_id"`
	Start                time.Time      `json:"start"`
	End                  time.Time      `json:"end"`
	DurationMinutes      int            `json:"duration_minutes"`
	Place                tariff.Place   `json:"place"`
	Status               Status         `json:"status"`
	CoverageSource       CoverageSource `json:"coverage_source"`
	PrescriptionID       *uuid.UUID     `json:"prescription_id"`
	PathologyCategoryID  *uuid.UUID     `json:"pathology_category_id"`
	SessionIndex         *int           `json:"session_index"`
	IsOverAnnual         bool           `json:"is_over_annual"`
	SpecialReimbursement bool           `json:"special_reimbursement"`
	PaymentMode          PaymentMode    `json:"payment_mode"`
	ProcedureCode        string         `json:"procedure_code"`
	DossierCode          *string        `json:"dossier_code"`
	ProcedureFee         string         `json:"procedure_fee"`
	Reimbursement        string         `json:"reimbursement"`
	CoPay                string         `json:"co_pay"`
	Note                 *string        `json:"note,omitempty"`
	CancelReason         *string        `json:"cancel_reason,omitempty"`
	CancelledAt          *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func (b *Booking) ToResponse() Response {
	return Response{
		ID:                   b.ID,
		PractitionerID:       b.PractitionerID,
		PracticeID:           b.PracticeID,
		PatientID:            b.PatientID,
		Start:                b.Start,
		End:                  b.End(),
		DurationMinutes:      b.DurationMinutes,
		Place:                b.Place,
		Status:               b.Status,
		CoverageSource:       b.CoverageSource(),
		PrescriptionID:       b.PrescriptionID(),
		PathologyCategoryID:  b.CategoryID(),
		SessionIndex:         b.SessionIndex,
		IsOverAnnual:         b.IsOverAnnual,
		SpecialReimbursement: b.SpecialReimbursement,
		PaymentMode:          b.PaymentMode,
		ProcedureCode:        b.ProcedureCode,
		DossierCode:          b.DossierCode,
		ProcedureFee:         money.Format(b.ProcedureFee),
		Reimbursement:        money.Format(b.Reimbursement),
		CoPay:                money.Format(b.CoPay),
		Note:                 b.Note,
		CancelReason:         b.CancelReason,
		CancelledAt:          b.CancelledAt,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

// Filter narrows Search. Zero fields are ignored; the window is half-open
// [From, To) on start.
type Filter struct {
	PracticeID      *uuid.UUID
	PractitionerIDs []uuid.UUID
	PatientID       *uuid.UUID
	Status          *Status
	From            *time.Time
	To              *time.Time
}

package invoicing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carehub/carehub/pkg/money"
)

var (
	ErrNotFound = errors.New("invoice not found")
	// ErrAlreadyInvoiced is returned when a booking is already linked to an
	// invoice.
	ErrAlreadyInvoiced = errors.New("booking already invoiced")
)

type State string

const (
	StatePending State = "pending"
	StatePaid    State = "paid"
	StateOverdue State = "overdue"
)

func (s State) Valid() bool {
	return s == StatePending || s == StatePaid || s == StateOverdue
}

// DefaultPaymentTerm is the gap between sending and due dates when the
// request does not set one.
const DefaultPaymentTerm = 30 * 24 * time.Hour

type Invoice struct {
	ID              uuid.UUID
	ReferenceNumber string
	PatientID       uuid.UUID
	PractitionerID  uuid.UUID
	State           State
	Amount          decimal.Decimal
	Description     string
	SendingDate     time.Time
	DueDate         time.Time
	PaidDate        *time.Time
	BookingIDs      []uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FormatReference renders the yearly invoice number, e.g. FAC-2025-0007.
func FormatReference(year, seq int) string {
	return fmt.Sprintf("FAC-%d-%04d", year, seq)
}

const dateLayout = "2006-01-02"

// Request selects the bookings to settle. Dates are calendar dates; empty
// sending_date means today and empty due_date means sending_date + 30 days.
type Request struct {
	BookingIDs   []uuid.UUID `json:"booking_ids"`
	CancelReason string      `json:"cancel_reason"`
	SendingDate  string      `json:"sending_date"`
	DueDate      string      `json:"due_date"`
	Description  string      `json:"description"`
}

type Preview struct {
	Amount      string      `json:"amount"`
	Description string      `json:"description"`
	BookingIDs  []uuid.UUID `json:"booking_ids"`
}

type Response struct {
	ID              uuid.UUID   `json:"id"`
	ReferenceNumber string      `json:"reference_number"`
	PatientID       uuid.UUID   `json:"patient_id"`
	PractitionerID  uuid.UUID   `json:"practitioner_id"`
	State           State       `json:"state"`
	Amount          string      `json:"amount"`
	Description     string      `json:"description"`
	SendingDate     string      `json:"sending_date"`
	DueDate         string      `json:"due_date"`
	PaidDate        *string     `json:"paid_date"`
	BookingIDs      []uuid.UUID `json:"booking_ids"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (inv *Invoice) ToResponse() Response {
	resp := Response{
		ID:              inv.ID,
		ReferenceNumber: inv.ReferenceNumber,
		PatientID:       inv.PatientID,
		PractitionerID:  inv.PractitionerID,
		State:           inv.State,
		Amount:          money.Format(inv.Amount),
		Description:     inv.Description,
		SendingDate:     inv.SendingDate.Format(dateLayout),
		DueDate:         inv.DueDate.Format(dateLayout),
		BookingIDs:      inv.BookingIDs,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
	if inv.PaidDate != nil {
		d := inv.PaidDate.Format(dateLayout)
		resp.PaidDate = &d
	}
	return resp
}

type Filter struct {
	PatientID      *uuid.UUID
	PractitionerID *uuid.UUID
	State          *State
}

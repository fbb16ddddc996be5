package prescription

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("prescription not found")

// Prescription is a referral granting a patient sessions in one pathology
// category. MaxSessions nil means no fixed cap.
type Prescription struct {
	ID                  uuid.UUID `json:"id"`
	PatientID           uuid.UUID `json:"patient_id"`
	PathologyCategoryID uuid.UUID `json:"pathology_category_id"`
	MaxSessions         *int      `json:"max_sessions,omitempty"`
	PrescribedOn        time.Time `json:"prescribed_on"`
	Active              bool      `json:"active"`
	Note                *string   `json:"note,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Exhausted reports whether used sessions already reached the cap.
func (p *Prescription) Exhausted(used int) bool {
	return p.MaxSessions != nil && used >= *p.MaxSessions
}

// Request is the create/update payload; prescribed_on is a calendar date.
type Request struct {
	PatientID           uuid.UUID `json:"patient_id"`
	PathologyCategoryID uuid.UUID `json:"pathology_category_id"`
	MaxSessions         *int      `json:"max_sessions"`
	PrescribedOn        string    `json:"prescribed_on"`
	Active              *bool     `json:"active"`
	Note                *string   `json:"note"`
}

const dateLayout = "2006-01-02"

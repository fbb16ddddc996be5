package tariff

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carehub/carehub/pkg/money"
)

// Place of service. Rate cards differ between home visits and sessions at
// the practice.
type Place string

const (
	PlaceHome   Place = "home"
	PlaceOffice Place = "office"
)

func (p Place) Valid() bool {
	return p == PlaceHome || p == PlaceOffice
}

// ParsePlace accepts "home" or "office"; empty defaults to home.
func ParsePlace(s string) (Place, error) {
	if s == "" {
		return PlaceHome, nil
	}
	p := Place(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid place %q: must be home or office", s)
	}
	return p, nil
}

// Category is a care pathway such as "PC" (common pathology) or "FA"
// (acute pathology).
type Category struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// Row is one rate tier, valid for sessions SessionMin..SessionMax (nil max =
// open ended) of a category in a given year and place.
type Row struct {
	ID                    uuid.UUID       `json:"id"`
	Year                  int             `json:"year"`
	CategoryID            uuid.UUID       `json:"category_id"`
	CategoryCode          string          `json:"category_code"`
	Place                 Place           `json:"place"`
	SessionMin            int             `json:"session_min"`
	SessionMax            *int            `json:"session_max"`
	ProcedureCode         string          `json:"procedure_code"`
	DossierCode           string          `json:"dossier_code"`
	ProcedureFee          decimal.Decimal `json:"procedure_fee"`
	TravelFee             decimal.Decimal `json:"travel_fee"`
	DossierFee            decimal.Decimal `json:"dossier_fee"`
	ReimbursementStandard decimal.Decimal `json:"reimbursement_standard"`
	ReimbursementSpecial  decimal.Decimal `json:"reimbursement_special"`
	CopayStandard         decimal.Decimal `json:"copay_standard"`
	CopaySpecial          decimal.Decimal `json:"copay_special"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Covers reports whether sessionIndex falls inside the row's tier.
func (r *Row) Covers(sessionIndex int) bool {
	if sessionIndex < r.SessionMin {
		return false
	}
	return r.SessionMax == nil || *r.SessionMax >= sessionIndex
}

func (r *Row) tierLabel() string {
	if r.SessionMax == nil {
		return fmt.Sprintf("%d+", r.SessionMin)
	}
	return fmt.Sprintf("%d-%d", r.SessionMin, *r.SessionMax)
}

type RowResponse struct {
	ID                    uuid.UUID `json:"id"`
	Year                  int       `json:"year"`
	CategoryID            uuid.UUID `json:"category_id"`
	CategoryCode          string    `json:"category_code,omitempty"`
	Place                 Place     `json:"place"`
	SessionMin            int       `json:"session_min"`
	SessionMax            *int      `json:"session_max"`
	ProcedureCode         string    `json:"procedure_code"`
	DossierCode           *string   `json:"dossier_code"`
	ProcedureFee          string    `json:"procedure_fee"`
	TravelFee             string    `json:"travel_fee"`
	DossierFee            string    `json:"dossier_fee"`
	ReimbursementStandard string    `json:"reimbursement_standard"`
	ReimbursementSpecial  string    `json:"reimbursement_special"`
	CopayStandard         string    `json:"copay_standard"`
	CopaySpecial          string    `json:"copay_special"`
}

func (r *Row) ToResponse() RowResponse {
	resp := RowResponse{
		ID:                    r.ID,
		Year:                  r.Year,
		CategoryID:            r.CategoryID,
		CategoryCode:          r.CategoryCode,
		Place:                 r.Place,
		SessionMin:            r.SessionMin,
		SessionMax:            r.SessionMax,
		ProcedureCode:         r.ProcedureCode,
		ProcedureFee:          money.Format(r.ProcedureFee),
		TravelFee:             money.Format(r.TravelFee),
		DossierFee:            money.Format(r.DossierFee),
		ReimbursementStandard: money.Format(r.ReimbursementStandard),
		ReimbursementSpecial:  money.Format(r.ReimbursementSpecial),
		CopayStandard:         money.Format(r.CopayStandard),
		CopaySpecial:          money.Format(r.CopaySpecial),
	}
	if r.DossierCode != "" {
		code := r.DossierCode
		resp.DossierCode = &code
	}
	return resp
}

package booking

import (
	"github.com/carehub/carehub/internal/domain/tariff"
	"github.com/carehub/carehub/pkg/money"
)

// ApplyPricing returns b with every pricing field recomputed from row.
// The dossier fee and code apply to the first session only. Over the annual
// quota the patient bears the whole fee.
func ApplyPricing(b Booking, row *tariff.Row, special, overAnnual bool) Booking {
	first := b.SessionIndex != nil && *b.SessionIndex == 1

	fee := row.ProcedureFee.Add(row.TravelFee)
	if first {
		fee = fee.Add(row.DossierFee)
	}
	reimbursement, coPay := row.ReimbursementStandard, row.CopayStandard
	if special {
		reimbursement, coPay = row.ReimbursementSpecial, row.CopaySpecial
	}
	if overAnnual {
		reimbursement, coPay = money.Zero, fee
	}

	b.ProcedureFee = money.Round(fee)
	b.Reimbursement = money.Round(reimbursement)
	b.CoPay = money.Round(coPay)
	b.ProcedureCode = row.ProcedureCode
	b.DossierCode = nil
	if first && row.DossierCode != "" {
		code := row.DossierCode
		b.DossierCode = &code
	}
	b.SpecialReimbursement = special
	b.IsOverAnnual = overAnnual
	return b
}

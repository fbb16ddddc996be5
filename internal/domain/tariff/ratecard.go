package tariff

import (
	"github.com/carehub/carehub/pkg/money"
)

// DefaultCategories are the six pathways every rate card refers to.
func DefaultCategories() []Category {
	return []Category{
		{Code: "PC", Label: "Pathologie courante"},
		{Code: "FA", Label: "Pathologie aiguë"},
		{Code: "FB", Label: "Pathologie chronique"},
		{Code: "Lymph", Label: "Pathologie lourde"},
		{Code: "Pallia", Label: "Palliatif"},
		{Code: "E", Label: "Post-natal"},
	}
}

func intPtr(n int) *int { return &n }

// line builds a rate line from string cells using the same blank rules as
// the file importers.
func line(cat string, smin int, smax *int, code, dossier, fee, dossierFee, reimbStd, reimbSpecial, copayStd, copaySpecial string) RateLine {
	return RateLine{
		CategoryCode:          cat,
		SessionMin:            smin,
		SessionMax:            smax,
		ProcedureCode:         codeCell(code),
		DossierCode:           codeCell(dossier),
		ProcedureFee:          amountCellMust(fee),
		TravelFee:             money.Zero,
		DossierFee:            amountCellMust(dossierFee),
		ReimbursementStandard: amountCellMust(reimbStd),
		ReimbursementSpecial:  amountCellMust(reimbSpecial),
		CopayStandard:         amountCellMust(copayStd),
		CopaySpecial:          amountCellMust(copaySpecial),
	}
}

// RateCard2025 is the 2025 office rate card. Lymph stops at session 60 and
// Pallia carries no amounts; both are as published.
func RateCard2025() []RateLine {
	return []RateLine{
		line("PC", 1, intPtr(1), "567011", "567033", "30.80", "7.19", "31.74", "35.49", "6.25", "2.50"),
		line("PC", 2, intPtr(9), "567011", "", "30.80", "", "24.55", "28.30", "6.25", "2.50"),
		line("PC", 10, intPtr(18), "560011", "", "30.80", "", "24.55", "28.30", "6.25", "2.50"),
		line("PC", 19, nil, "560055", "", "30.80", "", "24.55", "28.30", "6.25", "2.50"),

		line("FA", 1, intPtr(1), "567276", "563076", "30.80", "32.86", "58.16", "61.66", "5.50", "2.00"),
		line("FA", 2, intPtr(60), "567276", "", "30.80", "", "25.20", "28.20", "5.60", "2.60"),
		line("FA", 61, intPtr(80), "563010", "", "30.80", "", "21.37", "24.87", "5.50", "2.00"),
		line("FA", 81, nil, "563054", "", "30.80", "", "25.62", "29.12", "5.18", "2.68"),

		line("FB", 1, intPtr(1), "563614", "563673", "30.80", "32.86", "58.16", "61.66", "5.50", "2.00"),
		line("FB", 2, intPtr(60), "563614", "", "30.80", "", "25.20", "28.20", "5.60", "2.60"),
		line("FB", 61, intPtr(80), "564270", "", "25.67", "", "21.37", "24.87", "5.50", "2.00"),
		line("FB", 81, nil, "563651", "", "30.80", "", "25.62", "29.12", "5.18", "2.68"),

		line("Lymph", 1, intPtr(1), "—", "—", "30.80", "32.86", "72.26", "75.99", "5.73", "2.00"),
		line("Lymph", 2, intPtr(60), "—", "", "30.80", "", "39.63", "43.13", "5.50", "2.00"),

		line("E", 1, intPtr(1), "560652", "560711", "30.80", "32.86", "59.78", "62.28", "3.88", "1.38"),
		line("E", 2, nil, "561013", "", "30.80", "", "29.42", "29.42", "1.38", "1.38"),

		line("Pallia", 1, nil, "564211", "", "", "", "", "", "", ""),
	}
}

package tariff

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/carehub/carehub/pkg/money"
)

// RateLine is one parsed rate-card line, before it is bound to a category id,
// year and place.
type RateLine struct {
	CategoryCode          string
	SessionMin            int
	SessionMax            *int
	ProcedureCode         string
	DossierCode           string
	ProcedureFee          decimal.Decimal
	TravelFee             decimal.Decimal
	DossierFee            decimal.Decimal
	ReimbursementStandard decimal.Decimal
	ReimbursementSpecial  decimal.Decimal
	CopayStandard         decimal.Decimal
	CopaySpecial          decimal.Decimal
}

// Columns of an import file, in template order. Matching is by header name,
// case-insensitive; only the first three are mandatory.
var Columns = []string{
	"category", "session_min", "session_max", "procedure_code", "dossier_code",
	"procedure_fee", "travel_fee", "dossier_fee",
	"reimbursement_standard", "reimbursement_special", "copay_standard", "copay_special",
}

var requiredColumns = []string{"category", "session_min", "procedure_code"}

// isBlank reports cells that mean "zero" for amounts and "no code" for codes.
func isBlank(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "—", "/":
		return true
	}
	return false
}

func codeCell(s string) string {
	if isBlank(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

func amountCell(s string) (decimal.Decimal, error) {
	if isBlank(s) {
		return money.Zero, nil
	}
	return money.Parse(s)
}

func amountCellMust(s string) decimal.Decimal {
	d, err := amountCell(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseFile dispatches on the file extension: .xlsx or .csv.
func ParseFile(name string, r io.Reader) ([]RateLine, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return ParseXLSX(r)
	case ".csv", "":
		return ParseCSV(r)
	default:
		return nil, fmt.Errorf("unsupported tariff file %q: expected .csv or .xlsx", name)
	}
}

func ParseCSV(r io.Reader) ([]RateLine, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseTable(records)
}

// ParseXLSX reads the first worksheet of a workbook.
func ParseXLSX(r io.Reader) ([]RateLine, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no worksheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return parseTable(rows)
}

func parseTable(records [][]string) ([]RateLine, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("tariff file is empty")
	}

	idx := make(map[string]int)
	for i, h := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("tariff file header is missing column %q", col)
		}
	}

	var lines []RateLine
	for n, rec := range records[1:] {
		cell := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if emptyRecord(rec) {
			continue
		}
		l, err := parseLine(cell)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("tariff file has no data rows")
	}
	return lines, nil
}

func emptyRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseLine(cell func(string) string) (RateLine, error) {
	l := RateLine{
		CategoryCode:  cell("category"),
		ProcedureCode: codeCell(cell("procedure_code")),
		DossierCode:   codeCell(cell("dossier_code")),
	}
	if l.CategoryCode == "" {
		return l, fmt.Errorf("category is required")
	}

	smin, err := strconv.Atoi(cell("session_min"))
	if err != nil || smin < 1 {
		return l, fmt.Errorf("session_min must be a positive integer, got %q", cell("session_min"))
	}
	l.SessionMin = smin
	if raw := cell("session_max"); !isBlank(raw) {
		smax, err := strconv.Atoi(raw)
		if err != nil || smax < smin {
			return l, fmt.Errorf("session_max must be an integer >= session_min, got %q", raw)
		}
		l.SessionMax = &smax
	}

	amounts := []struct {
		col string
		dst *decimal.Decimal
	}{
		{"procedure_fee", &l.ProcedureFee},
		{"travel_fee", &l.TravelFee},
		{"dossier_fee", &l.DossierFee},
		{"reimbursement_standard", &l.ReimbursementStandard},
		{"reimbursement_special", &l.ReimbursementSpecial},
		{"copay_standard", &l.CopayStandard},
		{"copay_special", &l.CopaySpecial},
	}
	for _, a := range amounts {
		d, err := amountCell(cell(a.col))
		if err != nil {
			return l, fmt.Errorf("%s: %w", a.col, err)
		}
		*a.dst = d
	}
	return l, nil
}

// CheckTiers verifies that the lines of each category do not overlap, which
// would make lookups ambiguous. Gaps are returned separately: a published
// card may legitimately stop at a ceiling.
func CheckTiers(lines []RateLine) (gaps []string, err error) {
	byCat := make(map[string][]RateLine)
	var order []string
	for _, l := range lines {
		if _, ok := byCat[l.CategoryCode]; !ok {
			order = append(order, l.CategoryCode)
		}
		byCat[l.CategoryCode] = append(byCat[l.CategoryCode], l)
	}

	for _, cat := range order {
		tiers := byCat[cat]
		sortLines(tiers)
		next := 1
		for i, t := range tiers {
			if t.SessionMin < next {
				return gaps, fmt.Errorf("category %s: tier starting at %d overlaps the previous tier", cat, t.SessionMin)
			}
			if t.SessionMin > next {
				gaps = append(gaps, fmt.Sprintf("%s: sessions %d-%d", cat, next, t.SessionMin-1))
			}
			if t.SessionMax == nil {
				if i != len(tiers)-1 {
					return gaps, fmt.Errorf("category %s: open-ended tier at %d is not the last one", cat, t.SessionMin)
				}
				next = -1
				break
			}
			next = *t.SessionMax + 1
		}
		if next > 0 {
			gaps = append(gaps, fmt.Sprintf("%s: sessions %d+", cat, next))
		}
	}
	return gaps, nil
}

func sortLines(ls []RateLine) {
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].SessionMin < ls[j].SessionMin })
}

// LineFromRow is the inverse of the import binding, used for exports.
func LineFromRow(r *Row) RateLine {
	return RateLine{
		CategoryCode:          r.CategoryCode,
		SessionMin:            r.SessionMin,
		SessionMax:            r.SessionMax,
		ProcedureCode:         r.ProcedureCode,
		DossierCode:           r.DossierCode,
		ProcedureFee:          r.ProcedureFee,
		TravelFee:             r.TravelFee,
		DossierFee:            r.DossierFee,
		ReimbursementStandard: r.ReimbursementStandard,
		ReimbursementSpecial:  r.ReimbursementSpecial,
		CopayStandard:         r.CopayStandard,
		CopaySpecial:          r.CopaySpecial,
	}
}

// WriteXLSX writes lines as a workbook that ParseXLSX reads back; with no
// lines it is an empty import template.
func WriteXLSX(w io.Writer, lines []RateLine) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, l := range lines {
		smax := ""
		if l.SessionMax != nil {
			smax = strconv.Itoa(*l.SessionMax)
		}
		row := []interface{}{
			l.CategoryCode, l.SessionMin, smax, l.ProcedureCode, l.DossierCode,
			money.Format(l.ProcedureFee), money.Format(l.TravelFee), money.Format(l.DossierFee),
			money.Format(l.ReimbursementStandard), money.Format(l.ReimbursementSpecial),
			money.Format(l.CopayStandard), money.Format(l.CopaySpecial),
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encode xlsx: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

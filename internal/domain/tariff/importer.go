package tariff

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/platform/audit"
	"github.com/carehub/carehub/internal/platform/metrics"
)

// TxRunner runs fn inside one database transaction; db.TxManager satisfies it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Invalidator drops cached tariff data once an import has committed.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type ImportOptions struct {
	Year  int
	Place Place
	// Reset deletes the year's rows for the place, and any category left
	// unreferenced, before loading.
	Reset bool
}

type ImportResult struct {
	ID                uuid.UUID `json:"id"`
	Year              int       `json:"year"`
	Place             Place     `json:"place"`
	Categories        int       `json:"categories"`
	Rows              int       `json:"rows"`
	DeletedRows       int       `json:"deleted_rows"`
	DeletedCategories int       `json:"deleted_categories"`
	Gaps              []string  `json:"gaps,omitempty"`
}

// Importer loads rate lines into the tariff table in a single transaction.
type Importer struct {
	categories CategoryRepository
	rows       RowRepository
	tx         TxRunner
	cache      Invalidator
	audit      *audit.Dispatcher
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewImporter(cats CategoryRepository, rows RowRepository, tx TxRunner, logger zerolog.Logger, m *metrics.Metrics) *Importer {
	return &Importer{categories: cats, rows: rows, tx: tx, logger: logger, metrics: m}
}

// WithCache registers a cache to invalidate after each committed import.
func (im *Importer) WithCache(c Invalidator) *Importer {
	im.cache = c
	return im
}

func (im *Importer) WithAudit(d *audit.Dispatcher) *Importer {
	im.audit = d
	return im
}

func (im *Importer) Import(ctx context.Context, opts ImportOptions, lines []RateLine) (*ImportResult, error) {
	if opts.Year < 2000 || opts.Year > 2100 {
		return nil, fmt.Errorf("year %d out of range", opts.Year)
	}
	if !opts.Place.Valid() {
		return nil, fmt.Errorf("invalid place %q", opts.Place)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no rate lines to import")
	}
	gaps, err := CheckTiers(lines)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{ID: uuid.New(), Year: opts.Year, Place: opts.Place, Gaps: gaps}
	err = im.tx.WithinTx(ctx, func(ctx context.Context) error {
		if opts.Reset {
			n, err := im.rows.DeleteYear(ctx, opts.Year, opts.Place)
			if err != nil {
				return fmt.Errorf("reset %d/%s: %w", opts.Year, opts.Place, err)
			}
			res.DeletedRows = n
			if n, err = im.categories.DeleteUnused(ctx); err != nil {
				return fmt.Errorf("remove orphan categories: %w", err)
			}
			res.DeletedCategories = n
		}

		byCode := make(map[string]uuid.UUID)
		for _, c := range DefaultCategories() {
			c := c
			if err := im.categories.Upsert(ctx, &c); err != nil {
				return fmt.Errorf("upsert category %s: %w", c.Code, err)
			}
			byCode[c.Code] = c.ID
			res.Categories++
		}

		for _, l := range lines {
			catID, ok := byCode[l.CategoryCode]
			if !ok {
				c, err := im.categories.GetByCode(ctx, l.CategoryCode)
				if err != nil {
					return fmt.Errorf("category %q: %w", l.CategoryCode, err)
				}
				catID = c.ID
				byCode[l.CategoryCode] = catID
			}
			row := bindLine(l, opts.Year, opts.Place, catID)
			if err := im.rows.Upsert(ctx, row); err != nil {
				return fmt.Errorf("upsert %s %s: %w", l.CategoryCode, row.tierLabel(), err)
			}
			res.Rows++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if im.cache != nil {
		im.cache.Invalidate(ctx)
	}
	if im.metrics != nil {
		im.metrics.TariffRowsImported.Add(float64(res.Rows))
	}
	for _, g := range gaps {
		im.logger.Warn().Int("year", opts.Year).Str("place", string(opts.Place)).Str("gap", g).Msg("rate card leaves sessions uncovered")
	}
	im.logger.Info().
		Int("year", res.Year).
		Str("place", string(res.Place)).
		Int("rows", res.Rows).
		Int("deleted_rows", res.DeletedRows).
		Bool("reset", opts.Reset).
		Msg("tariffs imported")

	if im.audit != nil {
		ev, err := audit.NewEvent(ctx, audit.ActionTariffsImported, "tariff_import", res.ID, nil, res)
		if err == nil {
			err = im.audit.Dispatch(ctx, ev)
		}
		if err != nil {
			im.logger.Error().Err(err).Str("import_id", res.ID.String()).Msg("tariff import audit failed")
		}
	}
	return res, nil
}

func bindLine(l RateLine, year int, place Place, categoryID uuid.UUID) *Row {
	return &Row{
		Year:                  year,
		CategoryID:            categoryID,
		CategoryCode:          l.CategoryCode,
		Place:                 place,
		SessionMin:            l.SessionMin,
		SessionMax:            l.SessionMax,
		ProcedureCode:         l.ProcedureCode,
		DossierCode:           l.DossierCode,
		ProcedureFee:          l.ProcedureFee,
		TravelFee:             l.TravelFee,
		DossierFee:            l.DossierFee,
		ReimbursementStandard: l.ReimbursementStandard,
		ReimbursementSpecial:  l.ReimbursementSpecial,
		CopayStandard:         l.CopayStandard,
		CopaySpecial:          l.CopaySpecial,
	}
}

package tariff

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resolver picks the single rate row that applies to a session.
type Resolver struct {
	rows   RowRepository
	tracer trace.Tracer
}

func NewResolver(rows RowRepository) *Resolver {
	return &Resolver{rows: rows, tracer: otel.Tracer("carehub/tariff")}
}

// Lookup returns the row of (year, category, place) whose tier contains
// sessionIndex. Zero or several matching rows yield a *LookupError; the
// resolver never falls back to a default row.
func (r *Resolver) Lookup(ctx context.Context, year int, categoryID uuid.UUID, place Place, sessionIndex int) (*Row, error) {
	ctx, span := r.tracer.Start(ctx, "tariff.Lookup", trace.WithAttributes(
		attribute.Int("tariff.year", year),
		attribute.String("tariff.category_id", categoryID.String()),
		attribute.String("tariff.place", string(place)),
		attribute.Int("tariff.session_index", sessionIndex),
	))
	defer span.End()

	rows, err := r.rows.RowsFor(ctx, year, categoryID, place)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load rows")
		return nil, err
	}

	row, err := pick(rows, sessionIndex)
	if err != nil {
		le := err.(*LookupError)
		le.Year, le.CategoryID, le.Place = year, categoryID, place
		span.SetStatus(codes.Error, le.Error())
		return nil, le
	}
	span.SetAttributes(attribute.String("tariff.procedure_code", row.ProcedureCode))
	return row, nil
}

func pick(rows []*Row, sessionIndex int) (*Row, error) {
	var match *Row
	n := 0
	if sessionIndex >= 1 {
		for _, row := range rows {
			if row.Covers(sessionIndex) {
				match = row
				n++
			}
		}
	}
	if n != 1 {
		return nil, &LookupError{SessionIndex: sessionIndex, Matches: n}
	}
	return match, nil
}

package tariff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	categories CategoryRepository
	rows       RowRepository
	resolver   *Resolver
	importer   *Importer
}

func NewService(cats CategoryRepository, rows RowRepository, resolver *Resolver, importer *Importer) *Service {
	return &Service{categories: cats, rows: rows, resolver: resolver, importer: importer}
}

func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.categories.List(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	return s.categories.GetByID(ctx, id)
}

// Exists reports whether a category id is known.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.categories.GetByID(ctx, id)
	if errors.Is(err, ErrCategoryNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ResolveCategory accepts either a category id or a category code.
func (s *Service) ResolveCategory(ctx context.Context, ref string) (*Category, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.categories.GetByID(ctx, id)
	}
	return s.categories.GetByCode(ctx, ref)
}

func (s *Service) Lookup(ctx context.Context, year int, categoryID uuid.UUID, place Place, sessionIndex int) (*Row, error) {
	if !place.Valid() {
		return nil, fmt.Errorf("invalid place %q", place)
	}
	return s.resolver.Lookup(ctx, year, categoryID, place, sessionIndex)
}

func (s *Service) ListRows(ctx context.Context, year int, place Place) ([]*Row, error) {
	if !place.Valid() {
		return nil, fmt.Errorf("invalid place %q", place)
	}
	return s.rows.ListByYear(ctx, year, place)
}

// Import loads lines, or the built-in 2025 rate card when lines is empty.
func (s *Service) Import(ctx context.Context, opts ImportOptions, lines []RateLine) (*ImportResult, error) {
	if len(lines) == 0 {
		lines = RateCard2025()
	}
	return s.importer.Import(ctx, opts, lines)
}

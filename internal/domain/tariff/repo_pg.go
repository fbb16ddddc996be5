package tariff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehub/carehub/internal/platform/db"
)

// =========== Category Repository ===========

type categoryRepoPG struct{ pool *pgxpool.Pool }

func NewCategoryRepoPG(pool *pgxpool.Pool) CategoryRepository { return &categoryRepoPG{pool: pool} }

func (r *categoryRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const catCols = `id, code, label, created_at`

func scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	if err := row.Scan(&c.ID, &c.Code, &c.Label, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *categoryRepoPG) List(ctx context.Context) ([]*Category, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+catCols+` FROM pathology_category ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *categoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	return scanCategory(r.conn(ctx).QueryRow(ctx, `SELECT `+catCols+` FROM pathology_category WHERE id = $1`, id))
}

func (r *categoryRepoPG) GetByCode(ctx context.Context, code string) (*Category, error) {
	return scanCategory(r.conn(ctx).QueryRow(ctx, `SELECT `+catCols+` FROM pathology_category WHERE code = $1`, code))
}

func (r *categoryRepoPG) Upsert(ctx context.Context, c *Category) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pathology_category (id, code, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET label = EXCLUDED.label
		RETURNING id, created_at`,
		uuid.New(), c.Code, c.Label).Scan(&c.ID, &c.CreatedAt)
}

func (r *categoryRepoPG) DeleteUnused(ctx context.Context) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM pathology_category c
		WHERE NOT EXISTS (SELECT 1 FROM tariff_row t WHERE t.category_id = c.id)
		  AND NOT EXISTS (SELECT 1 FROM booking b WHERE b.pathology_category_id = c.id)
		  AND NOT EXISTS (SELECT 1 FROM prescription p WHERE p.pathology_category_id = c.id)`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// =========== Row Repository ===========

type rowRepoPG struct{ pool *pgxpool.Pool }

func NewRowRepoPG(pool *pgxpool.Pool) RowRepository { return &rowRepoPG{pool: pool} }

func (r *rowRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const rowCols = `t.id, t.year, t.category_id, c.code, t.place, t.session_min, t.session_max,
	t.procedure_code, t.dossier_code, t.procedure_fee, t.travel_fee, t.dossier_fee,
	t.reimbursement_standard, t.reimbursement_special, t.copay_standard, t.copay_special,
	t.updated_at`

const rowFrom = ` FROM tariff_row t JOIN pathology_category c ON c.id = t.category_id`

func scanRow(row pgx.Row) (*Row, error) {
	var t Row
	err := row.Scan(&t.ID, &t.Year, &t.CategoryID, &t.CategoryCode, &t.Place, &t.SessionMin, &t.SessionMax,
		&t.ProcedureCode, &t.DossierCode, &t.ProcedureFee, &t.TravelFee, &t.DossierFee,
		&t.ReimbursementStandard, &t.ReimbursementSpecial, &t.CopayStandard, &t.CopaySpecial,
		&t.UpdatedAt)
	return &t, err
}

func collectRows(rows pgx.Rows) ([]*Row, error) {
	defer rows.Close()
	var items []*Row
	for rows.Next() {
		t, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *rowRepoPG) RowsFor(ctx context.Context, year int, categoryID uuid.UUID, place Place) ([]*Row, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rowCols+rowFrom+`
		WHERE t.year = $1 AND t.category_id = $2 AND t.place = $3
		ORDER BY t.session_min`, year, categoryID, place)
	if err != nil {
		return nil, fmt.Errorf("query tariff rows: %w", err)
	}
	return collectRows(rows)
}

func (r *rowRepoPG) ListByYear(ctx context.Context, year int, place Place) ([]*Row, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rowCols+rowFrom+`
		WHERE t.year = $1 AND t.place = $2
		ORDER BY c.code, t.session_min`, year, place)
	if err != nil {
		return nil, fmt.Errorf("query tariff rows: %w", err)
	}
	return collectRows(rows)
}

func (r *rowRepoPG) Upsert(ctx context.Context, t *Row) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO tariff_row (id, year, category_id, place, session_min, session_max,
			procedure_code, dossier_code, procedure_fee, travel_fee, dossier_fee,
			reimbursement_standard, reimbursement_special, copay_standard, copay_special)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (year, category_id, place, session_min, (COALESCE(session_max, -1)))
		DO UPDATE SET procedure_code = EXCLUDED.procedure_code,
			dossier_code = EXCLUDED.dossier_code,
			procedure_fee = EXCLUDED.procedure_fee,
			travel_fee = EXCLUDED.travel_fee,
			dossier_fee = EXCLUDED.dossier_fee,
			reimbursement_standard = EXCLUDED.reimbursement_standard,
			reimbursement_special = EXCLUDED.reimbursement_special,
			copay_standard = EXCLUDED.copay_standard,
			copay_special = EXCLUDED.copay_special,
			updated_at = NOW()
		RETURNING id, updated_at`,
		uuid.New(), t.Year, t.CategoryID, t.Place, t.SessionMin, t.SessionMax,
		t.ProcedureCode, t.DossierCode, t.ProcedureFee, t.TravelFee, t.DossierFee,
		t.ReimbursementStandard, t.ReimbursementSpecial, t.CopayStandard, t.CopaySpecial,
	).Scan(&t.ID, &t.UpdatedAt)
}

func (r *rowRepoPG) DeleteYear(ctx context.Context, year int, place Place) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM tariff_row WHERE year = $1 AND place = $2`, year, place)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

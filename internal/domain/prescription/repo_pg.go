package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehub/carehub/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const cols = `id, patient_id, pathology_category_id, max_sessions, prescribed_on, active, note,
	created_at, updated_at`

func scan(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.PathologyCategoryID, &p.MaxSessions, &p.PrescribedOn,
		&p.Active, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, patient_id, pathology_category_id, max_sessions, prescribed_on, active, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.PathologyCategoryID, p.MaxSessions, p.PrescribedOn, p.Active, p.Note,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM prescription WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE prescription SET pathology_category_id=$2, max_sessions=$3, prescribed_on=$4,
			active=$5, note=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.PathologyCategoryID, p.MaxSessions, p.PrescribedOn, p.Active, p.Note,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool, limit, offset int) ([]*Prescription, int, error) {
	where := ` WHERE patient_id = $1`
	if activeOnly {
		where += ` AND active`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription`+where, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM prescription`+where+`
		ORDER BY prescribed_on DESC, created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

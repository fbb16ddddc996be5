package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehub/carehub/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const cols = `id, practitioner_id, practice_id, patient_id, start_at, duration_minutes, place, status,
	prescription_id, pathology_category_id, session_index, is_over_annual, special_reimbursement,
	payment_mode, procedure_code, dossier_code, procedure_fee, reimbursement, co_pay,
	note, cancel_reason, cancelled_at, created_at, updated_at`

func scan(row pgx.Row) (*Booking, error) {
	var (
		b              Booking
		prescriptionID *uuid.UUID
		categoryID     *uuid.UUID
	)
	err := row.Scan(&b.ID, &b.PractitionerID, &b.PracticeID, &b.PatientID, &b.Start, &b.DurationMinutes,
		&b.Place, &b.Status, &prescriptionID, &categoryID, &b.SessionIndex, &b.IsOverAnnual,
		&b.SpecialReimbursement, &b.PaymentMode, &b.ProcedureCode, &b.DossierCode,
		&b.ProcedureFee, &b.Reimbursement, &b.CoPay,
		&b.Note, &b.CancelReason, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	switch {
	case prescriptionID != nil:
		b.Coverage = PrescriptionCoverage{PrescriptionID: *prescriptionID}
	case categoryID != nil:
		b.Coverage = AnnualCoverage{CategoryID: *categoryID}
	}
	return &b, nil
}

func collect(rows pgx.Rows) ([]*Booking, error) {
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO booking (id, practitioner_id, practice_id, patient_id, start_at, duration_minutes,
			place, status, prescription_id, pathology_category_id, session_index, is_over_annual,
			special_reimbursement, payment_mode, procedure_code, dossier_code, procedure_fee,
			reimbursement, co_pay, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING created_at, updated_at`,
		b.ID, b.PractitionerID, b.PracticeID, b.PatientID, b.Start, b.DurationMinutes,
		b.Place, b.Status, b.PrescriptionID(), b.CategoryID(), b.SessionIndex, b.IsOverAnnual,
		b.SpecialReimbursement, b.PaymentMode, b.ProcedureCode, b.DossierCode, b.ProcedureFee,
		b.Reimbursement, b.CoPay, b.Note,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *repoPG) Update(ctx context.Context, b *Booking) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE booking SET practitioner_id=$2, practice_id=$3, patient_id=$4, start_at=$5,
			duration_minutes=$6, place=$7, prescription_id=$8, pathology_category_id=$9,
			session_index=$10, is_over_annual=$11, special_reimbursement=$12, payment_mode=$13,
			procedure_code=$14, dossier_code=$15, procedure_fee=$16, reimbursement=$17, co_pay=$18,
			note=$19, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.PractitionerID, b.PracticeID, b.PatientID, b.Start,
		b.DurationMinutes, b.Place, b.PrescriptionID(), b.CategoryID(),
		b.SessionIndex, b.IsOverAnnual, b.SpecialReimbursement, b.PaymentMode,
		b.ProcedureCode, b.DossierCode, b.ProcedureFee, b.Reimbursement, b.CoPay,
		b.Note,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, b *Booking) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE booking SET status=$2, cancel_reason=$3, cancelled_at=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.Status, b.CancelReason, b.CancelledAt,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM booking WHERE id = $1`, id))
}

func (r *repoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM booking WHERE id = ANY($1) ORDER BY start_at`, ids)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Booking, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PracticeID != nil {
		where += fmt.Sprintf(` AND practice_id = $%d`, idx)
		args = append(args, *f.PracticeID)
		idx++
	}
	if len(f.PractitionerIDs) > 0 {
		where += fmt.Sprintf(` AND practitioner_id = ANY($%d)`, idx)
		args = append(args, f.PractitionerIDs)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND start_at >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND start_at < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + cols + ` FROM booking` + where +
		fmt.Sprintf(` ORDER BY start_at, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListActiveForSlot(ctx context.Context, practitionerID, practiceID uuid.UUID, from, to time.Time, excludeID uuid.UUID) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM booking
		WHERE practitioner_id = $1 AND practice_id = $2
		  AND start_at >= $3 AND start_at < $4
		  AND status <> 'cancelled' AND id <> $5
		ORDER BY start_at`, practitionerID, practiceID, from, to, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query slot bookings: %w", err)
	}
	return collect(rows)
}

func (r *repoPG) CountActiveByPrescription(ctx context.Context, prescriptionID, excludeID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking
		WHERE prescription_id = $1 AND status <> 'cancelled' AND id <> $2`,
		prescriptionID, excludeID).Scan(&n)
	return n, err
}

func (r *repoPG) CountActiveAnnual(ctx context.Context, patientID uuid.UUID, from, to time.Time, excludeID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking
		WHERE patient_id = $1 AND prescription_id IS NULL
		  AND start_at >= $2 AND start_at < $3
		  AND status <> 'cancelled' AND id <> $4`,
		patientID, from, to, excludeID).Scan(&n)
	return n, err
}

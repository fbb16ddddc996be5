package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehub/carehub/internal/platform/db"
)

const codeUniqueViolation = "23505"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

// The booking ids are aggregated so one row carries the whole invoice.
const cols = `i.id, i.reference_number, i.patient_id, i.practitioner_id, i.state, i.amount,
	i.description, i.sending_date, i.due_date, i.paid_date, i.created_at, i.updated_at,
	COALESCE((SELECT array_agg(ib.booking_id ORDER BY ib.booking_id)
		FROM invoice_booking ib WHERE ib.invoice_id = i.id), '{}')`

func scan(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.ReferenceNumber, &inv.PatientID, &inv.PractitionerID, &inv.State,
		&inv.Amount, &inv.Description, &inv.SendingDate, &inv.DueDate, &inv.PaidDate,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.BookingIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repoPG) NextSequence(ctx context.Context, year int) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(split_part(reference_number, '-', 3)::int), 0) + 1
		FROM invoice WHERE reference_number LIKE $1`,
		fmt.Sprintf("FAC-%d-%%", year)).Scan(&n)
	return n, err
}

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice (id, reference_number, patient_id, practitioner_id, state, amount,
			description, sending_date, due_date, paid_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		inv.ID, inv.ReferenceNumber, inv.PatientID, inv.PractitionerID, inv.State, inv.Amount,
		inv.Description, inv.SendingDate, inv.DueDate, inv.PaidDate,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_booking (invoice_id, booking_id)
		SELECT $1, unnest($2::uuid[])`, inv.ID, inv.BookingIDs)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return ErrAlreadyInvoiced
		}
		return fmt.Errorf("link invoice bookings: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM invoice i WHERE i.id = $1`, id))
}

func (r *repoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND i.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.PractitionerID != nil {
		where += fmt.Sprintf(` AND i.practitioner_id = $%d`, idx)
		args = append(args, *f.PractitionerID)
		idx++
	}
	if f.State != nil {
		where += fmt.Sprintf(` AND i.state = $%d`, idx)
		args = append(args, *f.State)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice i`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + cols + ` FROM invoice i` + where +
		fmt.Sprintf(` ORDER BY i.sending_date DESC, i.reference_number DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *repoPG) InvoicedBookings(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT booking_id FROM invoice_booking WHERE booking_id = ANY($1) ORDER BY booking_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID, paidOn time.Time) (*Invoice, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice SET state = 'paid', paid_date = $2, updated_at = NOW()
		WHERE id = $1`, id, paidOn)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *repoPG) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice SET state = 'overdue', updated_at = NOW()
		WHERE state = 'pending' AND due_date < $1`, asOf)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

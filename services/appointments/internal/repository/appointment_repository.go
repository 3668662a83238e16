package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

// DB is the slice of pgxpool.Pool the repositories need.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type AppointmentRepository interface {
	// CreateIfFree inserts the appointment unless it overlaps an existing one,
	// in which case it returns appointment.ErrConflict.
	CreateIfFree(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	UpdateIfFree(ctx context.Context, id int64, req appointment.BookingRequest) (*appointment.Appointment, error)
	GetByID(ctx context.Context, id int64) (*appointment.Appointment, error)
	ListRange(ctx context.Context, q appointment.RangeQuery) ([]appointment.Appointment, error)
	ListByUser(ctx context.Context, userID int64) ([]appointment.Appointment, error)
	Delete(ctx context.Context, id int64) (bool, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

type appointmentRepository struct {
	db DB
}

func NewAppointmentRepository(db DB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

// dayLockSpace namespaces the advisory locks taken per calendar day.
const dayLockSpace int32 = 0x501a

const appointmentCols = `a.id, a.user_id, u.name, u.email, a.title, a.description, a.start_time, a.end_time`

const selectAppointments = `SELECT ` + appointmentCols + ` FROM appointments a JOIN users u ON u.id = a.user_id`

const (
	lockDaySQL  = `SELECT pg_advisory_xact_lock($1, $2)`
	overlapSQL  = `SELECT EXISTS (SELECT 1 FROM appointments WHERE start_time < $2 AND end_time > $1 AND id <> $3)`
	insertSQL   = `INSERT INTO appointments (user_id, title, description, start_time, end_time) VALUES ($1,$2,$3,$4,$5) RETURNING id`
	updateSQL   = `UPDATE appointments SET user_id=$2, title=$3, description=$4, start_time=$5, end_time=$6, updated_at=now() WHERE id=$1`
	byIDSQL     = selectAppointments + ` WHERE a.id=$1`
	byUserSQL   = selectAppointments + ` WHERE a.user_id=$1 ORDER BY a.start_time ASC`
	deleteSQL   = `DELETE FROM appointments WHERE id=$1`
	userByIDSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`
)

func dayKey(d schedule.Date) int32 {
	t := d.At(0, 0).Time()
	return int32(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

func (r *appointmentRepository) CreateIfFree(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := lockAndCheck(ctx, tx, req, 0); err != nil {
		return nil, err
	}

	var id int64
	err = tx.QueryRow(ctx, insertSQL,
		req.UserID, req.Title, req.Description, req.StartTime.Time(), req.EndTime.Time(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	a, err := scanAppointment(tx.QueryRow(ctx, byIDSQL, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepository) UpdateIfFree(ctx context.Context, id int64, req appointment.BookingRequest) (*appointment.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := lockAndCheck(ctx, tx, req, id); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, updateSQL,
		id, req.UserID, req.Title, req.Description, req.StartTime.Time(), req.EndTime.Time(),
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, appointment.ErrNotFound
	}

	a, err := scanAppointment(tx.QueryRow(ctx, byIDSQL, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// lockAndCheck serialises writers for the request's day and fails with
// ErrConflict when another appointment, other than exclude, overlaps it.
// Appointments never span days, so a per-day lock covers every overlap.
func lockAndCheck(ctx context.Context, tx pgx.Tx, req appointment.BookingRequest, exclude int64) error {
	if _, err := tx.Exec(ctx, lockDaySQL, dayLockSpace, dayKey(req.StartTime.Date())); err != nil {
		return fmt.Errorf("lock day: %w", err)
	}
	var taken bool
	if err := tx.QueryRow(ctx, overlapSQL, req.StartTime.Time(), req.EndTime.Time(), exclude).Scan(&taken); err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if taken {
		return appointment.ErrConflict
	}
	return nil
}

func (r *appointmentRepository) GetByID(ctx context.Context, id int64) (*appointment.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAppointment(r.db.QueryRow(ctx, byIDSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListRange returns appointments starting inside the query window, earliest
// first. Zero bounds are left open.
func (r *appointmentRepository) ListRange(ctx context.Context, q appointment.RangeQuery) ([]appointment.Appointment, error) {
	var (
		where []string
		args  []any
	)
	if !q.StartDate.IsZero() {
		args = append(args, q.StartDate.Time())
		where = append(where, fmt.Sprintf("a.start_time >= $%d", len(args)))
	}
	if !q.EndDate.IsZero() {
		args = append(args, q.EndDate.Time())
		where = append(where, fmt.Sprintf("a.start_time <= $%d", len(args)))
	}
	if q.UserID > 0 {
		args = append(args, q.UserID)
		where = append(where, fmt.Sprintf("a.user_id = $%d", len(args)))
	}

	sql := selectAppointments
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY a.start_time ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *appointmentRepository) ListByUser(ctx context.Context, userID int64) ([]appointment.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, byUserSQL, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, deleteSQL, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *appointmentRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var ok bool
	err := r.db.QueryRow(ctx, userByIDSQL, userID).Scan(&ok)
	return ok, err
}

func collect(rows pgx.Rows) ([]appointment.Appointment, error) {
	defer rows.Close()

	out := make([]appointment.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*appointment.Appointment, error) {
	var (
		a          appointment.Appointment
		start, end time.Time
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.UserName, &a.UserEmail, &a.Title, &a.Description, &start, &end); err != nil {
		return nil, err
	}
	s, e := schedule.LocalTimeOf(start), schedule.LocalTimeOf(end)
	a.StartTime, a.EndTime = &s, &e
	return &a, nil
}

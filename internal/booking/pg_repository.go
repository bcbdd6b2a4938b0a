package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgLockNotAvailable  = "55P03"
	pgForeignKeyMissing = "23503"
)

const scheduleColumns = `id, dentist_id, schedule_date, start_at, end_at, capacity, available_slots, status, version, created_at, updated_at`

const bookingColumns = `id, reference_id, schedule_id, appointment_no, patient_name, patient_nic, patient_phone, patient_email, patient_address, status, created_at, updated_at`

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule

	err := row.Scan(
		&s.ID,
		&s.DentistID,
		&s.Date,
		&s.StartAt,
		&s.EndAt,
		&s.Capacity,
		&s.AvailableSlots,
		&s.Status,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking

	err := row.Scan(
		&b.ID,
		&b.ReferenceID,
		&b.ScheduleID,
		&b.AppointmentNumber,
		&b.Patient.Name,
		&b.Patient.NIC,
		&b.Patient.Phone,
		&b.Patient.Email,
		&b.Patient.Address,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	return &b, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// queryRower is satisfied by both the pool and a transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schedules

func (r *PgStore) CreateSchedule(ctx context.Context, s *Schedule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.ID, s.DentistID, s.Date, s.StartAt, s.EndAt, s.Capacity, s.AvailableSlots, s.Status, s.Version, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isPgCode(err, pgForeignKeyMissing) {
			return ErrDentistNotFound
		}
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *PgStore) GetScheduleByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

func (r *PgStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schedule delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM bookings WHERE schedule_id = $1
	`, id).Scan(&count); err != nil {
		return fmt.Errorf("count bookings for schedule: %w", err)
	}
	if count > 0 {
		return ErrScheduleHasBookings
	}

	tag, err := tx.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}

	return tx.Commit(ctx)
}

func (r *PgStore) UpcomingSchedules(ctx context.Context, after time.Time, limit int) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE start_at > $1
		  AND status = ANY($2)
		ORDER BY start_at
		LIMIT $3
	`, after, []string{string(ScheduleAvailable), string(ScheduleActive)}, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func collectSchedules(rows pgx.Rows) ([]Schedule, error) {
	var result []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// WithScheduleLock serializes all slot arithmetic for one schedule behind a
// row-level exclusive lock. NOWAIT turns lock contention into an immediate,
// retriable failure instead of queueing admissions behind each other.
func (r *PgStore) WithScheduleLock(ctx context.Context, scheduleID uuid.UUID, fn func(ctx context.Context, tx ScheduleTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin admission tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
		FOR UPDATE NOWAIT
	`, scheduleID)

	locked, err := scanSchedule(row)
	if err != nil {
		if isPgCode(err, pgLockNotAvailable) {
			return ErrScheduleBusy
		}
		return err
	}

	st := &pgScheduleTx{tx: tx, schedule: locked}
	if err := fn(ctx, st); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit admission tx: %w", err)
	}
	return nil
}

// Bookings

func (r *PgStore) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

// GetBookingByReferenceAndPhone backs unauthenticated self-service lookup.
// Both values must match so one patient cannot enumerate another's booking.
func (r *PgStore) GetBookingByReferenceAndPhone(ctx context.Context, referenceID, phone string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE reference_id = $1
		  AND patient_phone = $2
	`, referenceID, phone)
	return scanBooking(row)
}

func (r *PgStore) UpdateBookingContact(ctx context.Context, id uuid.UUID, patient PatientDetails) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET patient_name = $2,
		    patient_nic = $3,
		    patient_phone = $4,
		    patient_email = $5,
		    patient_address = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, patient.Name, patient.NIC, patient.Phone, patient.Email, patient.Address)
	return scanBooking(row)
}

func (r *PgStore) UpdateBookingStatus(ctx context.Context, id uuid.UUID, to BookingStatus) (*Booking, error) {
	return updateBookingStatus(ctx, r.pool, id, to)
}

func updateBookingStatus(ctx context.Context, q queryRower, id uuid.UUID, to BookingStatus) (*Booking, error) {
	row := q.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, to)
	return scanBooking(row)
}

// Sweep queries

func (r *PgStore) SchedulesDueAdvancement(ctx context.Context, now time.Time) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE start_at <= $1
		  AND status = ANY($2)
		ORDER BY start_at
	`, now, nonTerminalStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *PgStore) SchedulesForDay(ctx context.Context, day time.Time) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE schedule_date = $1::date
		  AND status = ANY($2)
		ORDER BY start_at
	`, day, nonTerminalStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func nonTerminalStatuses() []string {
	return []string{
		string(ScheduleAvailable),
		string(ScheduleActive),
		string(ScheduleOnGoing),
		string(ScheduleFull),
	}
}

func (r *PgStore) BookingsDueReminder(ctx context.Context, from, until time.Time) ([]ReminderBooking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.reference_id, b.schedule_id, b.appointment_no,
		       b.patient_name, b.patient_nic, b.patient_phone, b.patient_email, b.patient_address,
		       b.status, b.created_at, b.updated_at,
		       s.id, s.dentist_id, s.schedule_date, s.start_at, s.end_at,
		       s.capacity, s.available_slots, s.status, s.version, s.created_at, s.updated_at
		FROM bookings b
		JOIN schedules s ON s.id = b.schedule_id
		WHERE b.status = ANY($1)
		  AND s.status = ANY($2)
		  AND s.start_at >= $3
		  AND s.start_at < $4
		ORDER BY s.start_at
	`, []string{string(BookingPending), string(BookingActive)}, nonTerminalStatuses(), from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderBooking
	for rows.Next() {
		var item ReminderBooking
		b := &item.Booking
		s := &item.Schedule
		err := rows.Scan(
			&b.ID, &b.ReferenceID, &b.ScheduleID, &b.AppointmentNumber,
			&b.Patient.Name, &b.Patient.NIC, &b.Patient.Phone, &b.Patient.Email, &b.Patient.Address,
			&b.Status, &b.CreatedAt, &b.UpdatedAt,
			&s.ID, &s.DentistID, &s.Date, &s.StartAt, &s.EndAt,
			&s.Capacity, &s.AvailableSlots, &s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgStore) MonthlyBookingStats(ctx context.Context, from, until time.Time) (map[BookingStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM bookings
		WHERE created_at >= $1
		  AND created_at < $2
		GROUP BY status
	`, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[BookingStatus]int)
	for rows.Next() {
		var status BookingStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// pgScheduleTx is the lock-scoped view handed to WithScheduleLock callbacks.

type pgScheduleTx struct {
	tx       pgx.Tx
	schedule *Schedule
}

func (t *pgScheduleTx) Schedule() *Schedule {
	return t.schedule
}

func (t *pgScheduleTx) CountOccupyingBookings(ctx context.Context) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE schedule_id = $1
		  AND status = ANY($2)
	`, t.schedule.ID, []string{string(BookingPending), string(BookingActive)}).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count occupying bookings: %w", err)
	}
	return count, nil
}

func (t *pgScheduleTx) NextAppointmentNumber(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT min(candidate.n)
		FROM generate_series(1, $2) AS candidate(n)
		WHERE NOT EXISTS (
			SELECT 1
			FROM bookings
			WHERE schedule_id = $1
			  AND appointment_no = candidate.n
			  AND status = ANY($3)
		)
	`, t.schedule.ID, t.schedule.Capacity,
		[]string{string(BookingPending), string(BookingActive)}).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next appointment number: %w", err)
	}
	return n, nil
}

func (t *pgScheduleTx) CreateBooking(ctx context.Context, b *Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.ReferenceID, b.ScheduleID, b.AppointmentNumber,
		b.Patient.Name, b.Patient.NIC, b.Patient.Phone, b.Patient.Email, b.Patient.Address,
		b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *pgScheduleTx) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND schedule_id = $2`, id, t.schedule.ID)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (t *pgScheduleTx) UpdateBookingStatus(ctx context.Context, id uuid.UUID, to BookingStatus) (*Booking, error) {
	return updateBookingStatus(ctx, t.tx, id, to)
}

func (t *pgScheduleTx) UpdateOccupyingBookingsStatus(ctx context.Context, to BookingStatus) ([]Booking, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE schedule_id = $1
		  AND status = ANY($3)
		RETURNING `+bookingColumns+`
	`, t.schedule.ID, to, []string{string(BookingPending), string(BookingActive)})
	if err != nil {
		return nil, fmt.Errorf("update occupying bookings: %w", err)
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveSchedule writes the mutated slot count and status. The version predicate
// is a backstop behind the row lock: zero rows on a live schedule means
// someone else bumped the version and the whole unit of work must be retried.
func (t *pgScheduleTx) SaveSchedule(ctx context.Context, s *Schedule) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE schedules
		SET available_slots = $2,
		    status = $3,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $4
	`, s.ID, s.AvailableSlots, s.Status, s.Version)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

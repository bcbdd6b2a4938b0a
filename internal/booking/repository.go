package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrDentistNotFound  = errors.New("dentist not found")

	// Business rule violations. Stable: retrying will not help the caller.
	ErrScheduleFull        = errors.New("schedule is full")
	ErrScheduleNotBookable = errors.New("schedule is not accepting bookings")
	ErrScheduleHasBookings = errors.New("schedule still has bookings")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrInvalidBooking      = errors.New("invalid booking")

	// Transient contention. The caller may retry after a short backoff.
	ErrScheduleBusy    = errors.New("schedule is being booked, please retry")
	ErrVersionConflict = errors.New("schedule was modified concurrently, please retry")
)

// IsTransient reports whether an admission error is contention the caller may
// retry, as opposed to a stable business-rule rejection.
func IsTransient(err error) bool {
	return errors.Is(err, ErrScheduleBusy) || errors.Is(err, ErrVersionConflict)
}

// ScheduleTx exposes the operations permitted while the exclusive row lock on
// one schedule is held. Everything done through it commits or rolls back as
// one unit together with the locked schedule update.
type ScheduleTx interface {
	// Schedule returns the row as read under the lock.
	Schedule() *Schedule

	CountOccupyingBookings(ctx context.Context) (int, error)

	// NextAppointmentNumber returns the smallest appointment number on the
	// locked schedule not held by an occupying booking, so a number freed by a
	// cancellation is handed out again before the sequence grows.
	NextAppointmentNumber(ctx context.Context) (int, error)

	CreateBooking(ctx context.Context, b *Booking) error
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, to BookingStatus) (*Booking, error)

	// UpdateOccupyingBookingsStatus moves every PENDING/ACTIVE booking on the
	// locked schedule to the given status and returns the affected bookings.
	UpdateOccupyingBookingsStatus(ctx context.Context, to BookingStatus) ([]Booking, error)

	// SaveSchedule persists slot count and status with an optimistic version
	// check; a concurrent bump surfaces as ErrVersionConflict.
	SaveSchedule(ctx context.Context, s *Schedule) error
}

// ReminderBooking pairs a booking with its schedule for reminder dispatch.
type ReminderBooking struct {
	Booking  Booking
	Schedule Schedule
}

// Store contains all DB interactions needed by the service.
type Store interface {
	CreateSchedule(ctx context.Context, s *Schedule) error
	GetScheduleByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	UpcomingSchedules(ctx context.Context, after time.Time, limit int) ([]Schedule, error)

	// WithScheduleLock runs fn while holding an exclusive row lock on the
	// schedule. A lock that cannot be acquired immediately surfaces as
	// ErrScheduleBusy; fn returning an error rolls everything back.
	WithScheduleLock(ctx context.Context, scheduleID uuid.UUID, fn func(ctx context.Context, tx ScheduleTx) error) error

	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetBookingByReferenceAndPhone(ctx context.Context, referenceID, phone string) (*Booking, error)
	UpdateBookingContact(ctx context.Context, id uuid.UUID, patient PatientDetails) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, to BookingStatus) (*Booking, error)

	// Sweep queries
	SchedulesDueAdvancement(ctx context.Context, now time.Time) ([]Schedule, error)
	SchedulesForDay(ctx context.Context, day time.Time) ([]Schedule, error)
	BookingsDueReminder(ctx context.Context, from, until time.Time) ([]ReminderBooking, error)

	MonthlyBookingStats(ctx context.Context, from, until time.Time) (map[BookingStatus]int, error)
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-backend/internal/config"
)

// Notifier dispatches patient-facing email. All sends are best effort: the
// booking row is the source of truth and a failed send never rolls it back,
// so none of these return an error.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, b *Booking, s *Schedule)
	SendBookingCancellation(ctx context.Context, b *Booking, s *Schedule)
	SendAppointmentReminder(ctx context.Context, b *Booking, s *Schedule)
}

// Metrics is a pure observation sink; it never gates behavior.
type Metrics interface {
	BookingCreated(ctx context.Context)
	BookingRejected(ctx context.Context, reason string)
	AdmissionObserved(ctx context.Context, d time.Duration)
}

// ScheduleCache holds the short-lived upcoming-schedules listing. A miss or a
// cache failure just falls through to the store.
type ScheduleCache interface {
	GetUpcoming(ctx context.Context, limit int) ([]Schedule, bool)
	SetUpcoming(ctx context.Context, limit int, schedules []Schedule)
}

type Service struct {
	store    Store
	notifier Notifier
	metrics  Metrics
	cache    ScheduleCache
	cfg      config.Config
	log      zerolog.Logger
}

func NewService(store Store, notifier Notifier, metrics Metrics, cache ScheduleCache, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		cache:    cache,
		cfg:      cfg,
		log:      log,
	}
}

// CreateBooking admits one booking against a schedule.
//
// The unlocked read fails fast on schedules that are missing or already
// closed, so doomed requests never take the lock. Everything that decides the
// admission happens inside WithScheduleLock: re-validation, appointment number
// assignment, the insert and the slot decrement commit or roll back together.
func (s *Service) CreateBooking(ctx context.Context, scheduleID uuid.UUID, patient PatientDetails) (*Booking, error) {
	start := time.Now()

	if err := patient.Validate(); err != nil {
		s.metrics.BookingRejected(ctx, "invalid_patient")
		return nil, err
	}

	sched, err := s.store.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			s.metrics.BookingRejected(ctx, "not_found")
			return nil, err
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if err := CheckAdmission(sched); err != nil {
		s.metrics.BookingRejected(ctx, rejectionReason(err))
		return nil, err
	}

	var created *Booking

	err = s.store.WithScheduleLock(ctx, scheduleID, func(ctx context.Context, tx ScheduleTx) error {
		locked := tx.Schedule()

		// State may have moved between the unlocked read and lock acquisition.
		if err := CheckAdmission(locked); err != nil {
			return err
		}

		occupied, err := tx.CountOccupyingBookings(ctx)
		if err != nil {
			return err
		}
		if occupied >= locked.Capacity {
			return ErrScheduleFull
		}

		apptNo, err := tx.NextAppointmentNumber(ctx)
		if err != nil {
			return err
		}

		b := newBooking(locked.ID, apptNo, patient)
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}

		ConsumeSlot(locked)
		if err := tx.SaveSchedule(ctx, locked); err != nil {
			return err
		}

		created = b
		*sched = *locked
		return nil
	})

	if err != nil {
		s.metrics.BookingRejected(ctx, rejectionReason(err))
		return nil, err
	}

	s.metrics.BookingCreated(ctx)
	s.metrics.AdmissionObserved(ctx, time.Since(start))
	s.log.Info().
		Stringer("schedule_id", scheduleID).
		Str("reference_id", created.ReferenceID).
		Int("appointment_no", created.AppointmentNumber).
		Int("slots_left", sched.AvailableSlots).
		Msg("booking admitted")

	go s.notifier.SendBookingConfirmation(context.WithoutCancel(ctx), created, sched)

	return created, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrScheduleFull):
		return "full"
	case errors.Is(err, ErrScheduleNotBookable):
		return "not_bookable"
	case errors.Is(err, ErrScheduleBusy):
		return "lock_busy"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrScheduleNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.store.GetBookingByID(ctx, id)
}

// GetBookingByReferenceAndPhone serves unauthenticated patient lookup; both
// values must match the same row.
func (s *Service) GetBookingByReferenceAndPhone(ctx context.Context, referenceID, phone string) (*Booking, error) {
	if referenceID == "" || phone == "" {
		return nil, ErrBookingNotFound
	}
	return s.store.GetBookingByReferenceAndPhone(ctx, referenceID, phone)
}

func (s *Service) UpdateBooking(ctx context.Context, id uuid.UUID, patient PatientDetails) (*Booking, error) {
	if err := patient.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateBookingContact(ctx, id, patient)
}

// UpdateBookingStatus applies an administrative booking status change.
// A transition that frees a slot (an occupying booking moving to CANCELLED)
// runs under the schedule lock so the slot count stays consistent; a
// transition that would re-occupy a slot is rejected, and everything else is
// a plain row update.
func (s *Service) UpdateBookingStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*Booking, error) {
	to, err := ParseBookingStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckBookingTransition(current.Status, to); err != nil {
		return nil, err
	}

	if !(current.Status.Occupying() && !to.Occupying() && to == BookingCancelled) {
		return s.store.UpdateBookingStatus(ctx, id, to)
	}

	var updated *Booking
	err = s.store.WithScheduleLock(ctx, current.ScheduleID, func(ctx context.Context, tx ScheduleTx) error {
		b, err := tx.UpdateBookingStatus(ctx, id, to)
		if err != nil {
			return err
		}
		locked := tx.Schedule()
		if !locked.Status.AutoTerminal() {
			RestoreSlot(locked)
			if err := tx.SaveSchedule(ctx, locked); err != nil {
				return err
			}
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Stringer("booking_id", id).
		Str("status", string(to)).
		Msg("booking cancelled, slot restored")
	return updated, nil
}

// DeleteBooking removes a booking and, when the booking was still occupying a
// slot, restores the slot and reopens a FULL schedule.
func (s *Service) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	b, err := s.store.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}

	return s.store.WithScheduleLock(ctx, b.ScheduleID, func(ctx context.Context, tx ScheduleTx) error {
		if err := tx.DeleteBooking(ctx, b.ID); err != nil {
			return err
		}
		if b.Status.Occupying() {
			locked := tx.Schedule()
			RestoreSlot(locked)
			if err := tx.SaveSchedule(ctx, locked); err != nil {
				return err
			}
		}
		return nil
	})
}

// Schedule administration

func (s *Service) CreateSchedule(ctx context.Context, dentistID uuid.UUID, startAt, endAt time.Time, capacity int) (*Schedule, error) {
	sched, err := NewSchedule(dentistID, startAt, endAt, capacity)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteSchedule(ctx, id)
}

// UpdateScheduleStatus applies an administrative schedule transition.
// CANCELLED and UNAVAILABLE cascade: every PENDING/ACTIVE booking on the
// schedule is cancelled in the same transaction, and cancellation mail goes
// out best-effort after commit.
func (s *Service) UpdateScheduleStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*Schedule, error) {
	to, err := ParseScheduleStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	var (
		updated   *Schedule
		cancelled []Booking
	)

	err = s.store.WithScheduleLock(ctx, id, func(ctx context.Context, tx ScheduleTx) error {
		locked := tx.Schedule()
		if err := CheckAdminTransition(locked.Status, to); err != nil {
			return err
		}

		// An open schedule with no free slots is FULL, not AVAILABLE.
		if to == ScheduleAvailable && locked.AvailableSlots == 0 {
			locked.Status = ScheduleFull
		} else {
			locked.Status = to
		}

		if to == ScheduleCancelled || to == ScheduleUnavailable {
			affected, err := tx.UpdateOccupyingBookingsStatus(ctx, BookingCancelled)
			if err != nil {
				return err
			}
			cancelled = affected
		}

		if err := tx.SaveSchedule(ctx, locked); err != nil {
			return err
		}
		updated = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Stringer("schedule_id", id).
		Str("status", string(updated.Status)).
		Int("bookings_cancelled", len(cancelled)).
		Msg("schedule status updated")

	if len(cancelled) > 0 {
		go s.notifyCancelled(context.WithoutCancel(ctx), cancelled, updated)
	}

	return updated, nil
}

func (s *Service) notifyCancelled(ctx context.Context, bookings []Booking, sched *Schedule) {
	for i := range bookings {
		s.notifier.SendBookingCancellation(ctx, &bookings[i], sched)
	}
}

// UpcomingSchedules returns the next N bookable schedules, served from the
// cache when fresh. A stale listing is fine here; admission always goes back
// to the locked row.
func (s *Service) UpcomingSchedules(ctx context.Context, limit int) ([]Schedule, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	if cached, ok := s.cache.GetUpcoming(ctx, limit); ok {
		return cached, nil
	}

	schedules, err := s.store.UpcomingSchedules(ctx, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming schedules: %w", err)
	}

	s.cache.SetUpcoming(ctx, limit, schedules)
	return schedules, nil
}

// MonthlyBookingStats buckets the current calendar month's bookings by
// status. Snapshot consistency only; this is a reporting view.
func (s *Service) MonthlyBookingStats(ctx context.Context, now time.Time) (*MonthlyStats, error) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	until := from.AddDate(0, 1, 0)

	byStatus, err := s.store.MonthlyBookingStats(ctx, from, until)
	if err != nil {
		return nil, fmt.Errorf("monthly booking stats: %w", err)
	}

	stats := &MonthlyStats{
		Year:     now.Year(),
		Month:    now.Month(),
		ByStatus: byStatus,
	}
	for _, count := range byStatus {
		stats.Total += count
	}
	return stats, nil
}

// Sweep entry points. Each is stateless and idempotent; the background runner
// and the admin trigger endpoints both call straight into these.

// ReconcileSchedules advances every schedule whose time window has been
// entered or has elapsed. One schedule failing must not abort its siblings.
func (s *Service) ReconcileSchedules(ctx context.Context, now time.Time) error {
	candidates, err := s.store.SchedulesDueAdvancement(ctx, now)
	if err != nil {
		return fmt.Errorf("find schedules due advancement: %w", err)
	}

	for _, sched := range candidates {
		if err := s.advanceSchedule(ctx, sched.ID, now); err != nil {
			s.log.Error().Err(err).
				Stringer("schedule_id", sched.ID).
				Msg("failed to advance schedule")
			continue
		}
	}
	return nil
}

// FinalizePreviousDay is the daily catch-all for schedules the interval sweep
// missed, e.g. across downtime.
func (s *Service) FinalizePreviousDay(ctx context.Context, now time.Time) error {
	day := now.AddDate(0, 0, -1)
	candidates, err := s.store.SchedulesForDay(ctx, day)
	if err != nil {
		return fmt.Errorf("find previous-day schedules: %w", err)
	}

	for _, sched := range candidates {
		if err := s.advanceSchedule(ctx, sched.ID, now); err != nil {
			s.log.Error().Err(err).
				Stringer("schedule_id", sched.ID).
				Msg("failed to finalize schedule")
			continue
		}
	}
	return nil
}

func (s *Service) advanceSchedule(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.store.WithScheduleLock(ctx, id, func(ctx context.Context, tx ScheduleTx) error {
		locked := tx.Schedule()

		next, due := NextTimeStatus(locked, now)
		if !due {
			return nil
		}

		locked.Status = next
		if err := tx.SaveSchedule(ctx, locked); err != nil {
			return err
		}

		if next == ScheduleFinished {
			if _, err := tx.UpdateOccupyingBookingsStatus(ctx, BookingFinished); err != nil {
				return err
			}
		}

		s.log.Info().
			Stringer("schedule_id", locked.ID).
			Str("status", string(next)).
			Msg("schedule advanced")
		return nil
	})
}

// DispatchReminders sends a reminder for every occupying booking whose
// schedule starts within the reminder window. At-least-once: a rerun may
// resend, a failed send is logged and the batch continues.
func (s *Service) DispatchReminders(ctx context.Context, now time.Time) error {
	until := now.Add(s.cfg.ReminderWindow)
	due, err := s.store.BookingsDueReminder(ctx, now, until)
	if err != nil {
		return fmt.Errorf("find bookings due reminder: %w", err)
	}

	for i := range due {
		s.notifier.SendAppointmentReminder(ctx, &due[i].Booking, &due[i].Schedule)
	}

	if len(due) > 0 {
		s.log.Info().Int("count", len(due)).Msg("reminders dispatched")
	}
	return nil
}

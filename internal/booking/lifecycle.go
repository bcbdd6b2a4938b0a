package booking

import "time"

// Pure schedule lifecycle rules. Both the admission path and the sweeps go
// through these functions; they take an explicit now and never touch storage.

// AutoTerminal reports whether automatic sweeps must leave this status alone.
// CANCELLED and UNAVAILABLE are administrative decisions, FINISHED is the end
// of the line.
func (s ScheduleStatus) AutoTerminal() bool {
	return s == ScheduleCancelled || s == ScheduleUnavailable || s == ScheduleFinished
}

// Bookable reports whether a new booking may be admitted in this status,
// capacity permitting.
func (s ScheduleStatus) Bookable() bool {
	return s == ScheduleAvailable || s == ScheduleActive || s == ScheduleOnGoing
}

// CheckAdmission is the admission gate: it decides whether one more booking
// may be taken on the schedule as it currently stands. Called twice per
// admission, once unlocked for fast rejection and once under the row lock.
func CheckAdmission(s *Schedule) error {
	switch {
	case s.Status == ScheduleFull:
		return ErrScheduleFull
	case !s.Status.Bookable():
		return ErrScheduleNotBookable
	case s.AvailableSlots <= 0:
		// Status lagging behind an exhausted slot count still means full.
		return ErrScheduleFull
	}
	return nil
}

// NextTimeStatus decides the time-driven transition for a schedule at the
// given instant. It returns the target status and whether a change is due, so
// a second sweep over an already-advanced schedule is a no-op.
//
// If the window has elapsed while the schedule is still open with free slots,
// FINISHED wins; unused slots are not rolled over.
func NextTimeStatus(s *Schedule, now time.Time) (ScheduleStatus, bool) {
	if s.Status.AutoTerminal() {
		return s.Status, false
	}

	if !now.Before(s.EndAt) {
		return ScheduleFinished, true
	}

	if !now.Before(s.StartAt) {
		switch s.Status {
		case ScheduleAvailable, ScheduleActive:
			return ScheduleOnGoing, true
		}
	}

	return s.Status, false
}

// ConsumeSlot decrements the free slot count and flips the schedule to FULL
// when the last slot goes. Call only while holding the row lock.
func ConsumeSlot(s *Schedule) {
	s.AvailableSlots--
	if s.AvailableSlots <= 0 {
		s.AvailableSlots = 0
		s.Status = ScheduleFull
	}
}

// RestoreSlot returns one slot after a booking is deleted or cancelled and
// reopens a FULL schedule. Administrative closures keep their status; only the
// slot count moves.
func RestoreSlot(s *Schedule) {
	if s.AvailableSlots < s.Capacity {
		s.AvailableSlots++
	}
	if s.Status == ScheduleFull && s.AvailableSlots > 0 {
		s.Status = ScheduleAvailable
	}
}

// CheckBookingTransition validates an administratively requested booking
// status change. A booking that no longer occupies a slot cannot be brought
// back to an occupying status; its slot and appointment number may already be
// taken again, so a new booking must go through admission instead.
func CheckBookingTransition(from, to BookingStatus) error {
	if !from.Occupying() && to.Occupying() {
		return ErrInvalidTransition
	}
	return nil
}

// CheckAdminTransition validates an administratively requested status change.
// CANCELLED and FINISHED are terminal; nothing moves out of them.
func CheckAdminTransition(from, to ScheduleStatus) error {
	if from == ScheduleCancelled || from == ScheduleFinished {
		return ErrInvalidTransition
	}
	switch to {
	case ScheduleAvailable, ScheduleActive, ScheduleOnGoing, ScheduleUnavailable, ScheduleCancelled, ScheduleFinished:
		return nil
	}
	return ErrInvalidTransition
}

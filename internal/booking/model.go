package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ScheduleStatus string

const (
	ScheduleAvailable   ScheduleStatus = "AVAILABLE"
	ScheduleFull        ScheduleStatus = "FULL"
	ScheduleActive      ScheduleStatus = "ACTIVE"
	ScheduleOnGoing     ScheduleStatus = "ON_GOING"
	ScheduleUnavailable ScheduleStatus = "UNAVAILABLE"
	ScheduleCancelled   ScheduleStatus = "CANCELLED"
	ScheduleFinished    ScheduleStatus = "FINISHED"
)

// ParseScheduleStatus validates a raw status value at the boundary so unknown
// strings never reach the state machine.
func ParseScheduleStatus(raw string) (ScheduleStatus, error) {
	s := ScheduleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case ScheduleAvailable, ScheduleFull, ScheduleActive, ScheduleOnGoing,
		ScheduleUnavailable, ScheduleCancelled, ScheduleFinished:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown schedule status %q", ErrInvalidStatus, raw)
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingActive    BookingStatus = "ACTIVE"
	BookingFinished  BookingStatus = "FINISHED"
	BookingCancelled BookingStatus = "CANCELLED"
)

func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case BookingPending, BookingActive, BookingFinished, BookingCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown booking status %q", ErrInvalidStatus, raw)
}

// Occupying reports whether a booking in this status holds a slot on its
// schedule. availableSlots == capacity - count(occupying bookings) at all times.
func (s BookingStatus) Occupying() bool {
	return s == BookingPending || s == BookingActive
}

// Schedule is one bookable time window for one dentist. Capacity is fixed at
// creation; AvailableSlots and Status are the only fields the admission path
// mutates, always under the row lock. Version backs the optimistic check on save.
type Schedule struct {
	ID             uuid.UUID
	DentistID      uuid.UUID
	Date           time.Time
	StartAt        time.Time
	EndAt          time.Time
	Capacity       int
	AvailableSlots int
	Status         ScheduleStatus
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewSchedule builds an open schedule with all slots free.
func NewSchedule(dentistID uuid.UUID, startAt, endAt time.Time, capacity int) (*Schedule, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1", ErrInvalidSchedule)
	}
	if !endAt.After(startAt) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidSchedule)
	}

	now := time.Now().UTC()
	return &Schedule{
		ID:             uuid.New(),
		DentistID:      dentistID,
		Date:           startAt.Truncate(24 * time.Hour),
		StartAt:        startAt,
		EndAt:          endAt,
		Capacity:       capacity,
		AvailableSlots: capacity,
		Status:         ScheduleAvailable,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

type PatientDetails struct {
	Name    string
	NIC     string
	Phone   string
	Email   string
	Address string
}

func (p PatientDetails) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: patient name is required", ErrInvalidBooking)
	}
	if strings.TrimSpace(p.NIC) == "" {
		return fmt.Errorf("%w: patient NIC is required", ErrInvalidBooking)
	}
	if strings.TrimSpace(p.Phone) == "" {
		return fmt.Errorf("%w: patient phone is required", ErrInvalidBooking)
	}
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("%w: patient email is required", ErrInvalidBooking)
	}
	return nil
}

// Booking is one patient's reservation against exactly one schedule.
// AppointmentNumber is scoped to the schedule (1..capacity) and is only
// assigned while the schedule row lock is held.
type Booking struct {
	ID                uuid.UUID
	ReferenceID       string
	ScheduleID        uuid.UUID
	AppointmentNumber int
	Patient           PatientDetails
	Status            BookingStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func newBooking(scheduleID uuid.UUID, appointmentNumber int, patient PatientDetails) *Booking {
	now := time.Now().UTC()
	return &Booking{
		ID:                uuid.New(),
		ReferenceID:       newReference(),
		ScheduleID:        scheduleID,
		AppointmentNumber: appointmentNumber,
		Patient:           patient,
		Status:            BookingPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// newReference produces the human-facing booking reference. Uniqueness is
// backed by the DB constraint on reference_id.
func newReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "APT-" + raw[:10]
}

// Dentist is referenced by schedules; its own CRUD lives outside this core.
type Dentist struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthlyStats is a snapshot report of booking counts for one calendar month.
// It is read without locks; it feeds dashboards, not admission decisions.
type MonthlyStats struct {
	Year     int
	Month    time.Month
	Total    int
	ByStatus map[BookingStatus]int
}

package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-backend/internal/booking"
)

type CreateBookingRequest struct {
	ScheduleID string `json:"schedule_id"`
	Name       string `json:"name"`
	NIC        string `json:"nic"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
}

type UpdateBookingRequest struct {
	Name    string `json:"name"`
	NIC     string `json:"nic"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CreateScheduleRequest struct {
	DentistID string    `json:"dentist_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Capacity  int       `json:"capacity"`
}

type BookingResponse struct {
	ID                uuid.UUID `json:"id"`
	ReferenceID       string    `json:"reference_id"`
	ScheduleID        uuid.UUID `json:"schedule_id"`
	AppointmentNumber int       `json:"appointment_number"`
	Name              string    `json:"name"`
	NIC               string    `json:"nic"`
	Phone             string    `json:"phone"`
	Email             string    `json:"email"`
	Address           string    `json:"address"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:                b.ID,
		ReferenceID:       b.ReferenceID,
		ScheduleID:        b.ScheduleID,
		AppointmentNumber: b.AppointmentNumber,
		Name:              b.Patient.Name,
		NIC:               b.Patient.NIC,
		Phone:             b.Patient.Phone,
		Email:             b.Patient.Email,
		Address:           b.Patient.Address,
		Status:            string(b.Status),
		CreatedAt:         b.CreatedAt,
	}
}

type ScheduleResponse struct {
	ID             uuid.UUID `json:"id"`
	DentistID      uuid.UUID `json:"dentist_id"`
	Date           string    `json:"date"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Capacity       int       `json:"capacity"`
	AvailableSlots int       `json:"available_slots"`
	Status         string    `json:"status"`
}

func toScheduleResponse(s *booking.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:             s.ID,
		DentistID:      s.DentistID,
		Date:           s.Date.Format("2006-01-02"),
		StartAt:        s.StartAt,
		EndAt:          s.EndAt,
		Capacity:       s.Capacity,
		AvailableSlots: s.AvailableSlots,
		Status:         string(s.Status),
	}
}

type MonthlyStatsResponse struct {
	Year     int            `json:"year"`
	Month    string         `json:"month"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

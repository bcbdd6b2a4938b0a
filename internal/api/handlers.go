package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-backend/internal/booking"
)

// BookingService is the caller-facing operation surface of the admission core.
type BookingService interface {
	CreateBooking(ctx context.Context, scheduleID uuid.UUID, patient booking.PatientDetails) (*booking.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	GetBookingByReferenceAndPhone(ctx context.Context, referenceID, phone string) (*booking.Booking, error)
	UpdateBooking(ctx context.Context, id uuid.UUID, patient booking.PatientDetails) (*booking.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*booking.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error

	CreateSchedule(ctx context.Context, dentistID uuid.UUID, startAt, endAt time.Time, capacity int) (*booking.Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	UpdateScheduleStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*booking.Schedule, error)
	UpcomingSchedules(ctx context.Context, limit int) ([]booking.Schedule, error)
	MonthlyBookingStats(ctx context.Context, now time.Time) (*booking.MonthlyStats, error)

	ReconcileSchedules(ctx context.Context, now time.Time) error
	FinalizePreviousDay(ctx context.Context, now time.Time) error
	DispatchReminders(ctx context.Context, now time.Time) error
}

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		scheduleID, err := uuid.Parse(req.ScheduleID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "schedule_id must be a valid UUID")
			return
		}

		b, err := svc.CreateBooking(r.Context(), scheduleID, booking.PatientDetails{
			Name:    req.Name,
			NIC:     req.NIC,
			Phone:   req.Phone,
			Email:   req.Email,
			Address: req.Address,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

// lookupBookingHandler lets a patient pull their own booking with reference id
// plus phone number, no authentication involved.
func lookupBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference := r.URL.Query().Get("reference")
		phone := r.URL.Query().Get("phone")
		if reference == "" || phone == "" {
			writeError(w, http.StatusBadRequest, "missing_parameters", "reference and phone are both required")
			return
		}

		b, err := svc.GetBookingByReferenceAndPhone(r.Context(), reference, phone)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func updateBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.UpdateBooking(r.Context(), id, booking.PatientDetails{
			Name:    req.Name,
			NIC:     req.NIC,
			Phone:   req.Phone,
			Email:   req.Email,
			Address: req.Address,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func updateBookingStatusHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.UpdateBookingStatus(r.Context(), id, req.Status)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func deleteBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteBooking(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createScheduleHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		dentistID, err := uuid.Parse(req.DentistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
			return
		}

		s, err := svc.CreateSchedule(r.Context(), dentistID, req.StartAt, req.EndAt, req.Capacity)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toScheduleResponse(s))
	}
}

func deleteScheduleHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteSchedule(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func updateScheduleStatusHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		s, err := svc.UpdateScheduleStatus(r.Context(), id, req.Status)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(s))
	}
}

func upcomingSchedulesHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
				return
			}
			limit = n
		}

		schedules, err := svc.UpcomingSchedules(r.Context(), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]ScheduleResponse, 0, len(schedules))
		for i := range schedules {
			resp = append(resp, toScheduleResponse(&schedules[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func monthlyStatsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.MonthlyBookingStats(r.Context(), time.Now())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		byStatus := make(map[string]int, len(stats.ByStatus))
		for status, count := range stats.ByStatus {
			byStatus[string(status)] = count
		}
		writeJSON(w, http.StatusOK, MonthlyStatsResponse{
			Year:     stats.Year,
			Month:    stats.Month.String(),
			Total:    stats.Total,
			ByStatus: byStatus,
		})
	}
}

// sweepTriggerHandler exposes a sweep as an admin-triggerable endpoint,
// independent of the timer-driven runner.
func sweepTriggerHandler(sweep func(context.Context, time.Time) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sweep(r.Context(), time.Now()); err != nil {
			writeError(w, http.StatusInternalServerError, "sweep_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

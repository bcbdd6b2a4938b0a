package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicdesk/appointment-backend/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the domain error taxonomy onto HTTP. Transient
// contention gets 503 with Retry-After so callers can tell "retry shortly"
// apart from the stable 409 business-rule rejections.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrDentistNotFound):
		writeError(w, http.StatusNotFound, "dentist_not_found", err.Error())
	case errors.Is(err, booking.ErrScheduleFull):
		writeError(w, http.StatusConflict, "schedule_full", err.Error())
	case errors.Is(err, booking.ErrScheduleNotBookable):
		writeError(w, http.StatusConflict, "schedule_not_bookable", err.Error())
	case errors.Is(err, booking.ErrScheduleHasBookings):
		writeError(w, http.StatusConflict, "schedule_has_bookings", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrInvalidStatus),
		errors.Is(err, booking.ErrInvalidSchedule),
		errors.Is(err, booking.ErrInvalidBooking):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case booking.IsTransient(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "system_busy", "the schedule is contended, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

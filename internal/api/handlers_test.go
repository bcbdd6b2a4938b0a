package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/appointment-backend/internal/booking"
)

// fakeService lets each test script exactly the service behavior it needs.
type fakeService struct {
	createBooking       func(ctx context.Context, scheduleID uuid.UUID, patient booking.PatientDetails) (*booking.Booking, error)
	getBooking          func(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	lookupBooking       func(ctx context.Context, referenceID, phone string) (*booking.Booking, error)
	updateBooking       func(ctx context.Context, id uuid.UUID, patient booking.PatientDetails) (*booking.Booking, error)
	updateBookingStatus func(ctx context.Context, id uuid.UUID, rawStatus string) (*booking.Booking, error)
	deleteBooking       func(ctx context.Context, id uuid.UUID) error

	createSchedule       func(ctx context.Context, dentistID uuid.UUID, startAt, endAt time.Time, capacity int) (*booking.Schedule, error)
	deleteSchedule       func(ctx context.Context, id uuid.UUID) error
	updateScheduleStatus func(ctx context.Context, id uuid.UUID, rawStatus string) (*booking.Schedule, error)
	upcomingSchedules    func(ctx context.Context, limit int) ([]booking.Schedule, error)
	monthlyStats         func(ctx context.Context, now time.Time) (*booking.MonthlyStats, error)

	reconcile func(ctx context.Context, now time.Time) error
	finalize  func(ctx context.Context, now time.Time) error
	reminders func(ctx context.Context, now time.Time) error
}

func (f *fakeService) CreateBooking(ctx context.Context, scheduleID uuid.UUID, patient booking.PatientDetails) (*booking.Booking, error) {
	return f.createBooking(ctx, scheduleID, patient)
}

func (f *fakeService) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return f.getBooking(ctx, id)
}

func (f *fakeService) GetBookingByReferenceAndPhone(ctx context.Context, referenceID, phone string) (*booking.Booking, error) {
	return f.lookupBooking(ctx, referenceID, phone)
}

func (f *fakeService) UpdateBooking(ctx context.Context, id uuid.UUID, patient booking.PatientDetails) (*booking.Booking, error) {
	return f.updateBooking(ctx, id, patient)
}

func (f *fakeService) UpdateBookingStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*booking.Booking, error) {
	return f.updateBookingStatus(ctx, id, rawStatus)
}

func (f *fakeService) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	return f.deleteBooking(ctx, id)
}

func (f *fakeService) CreateSchedule(ctx context.Context, dentistID uuid.UUID, startAt, endAt time.Time, capacity int) (*booking.Schedule, error) {
	return f.createSchedule(ctx, dentistID, startAt, endAt, capacity)
}

func (f *fakeService) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return f.deleteSchedule(ctx, id)
}

func (f *fakeService) UpdateScheduleStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*booking.Schedule, error) {
	return f.updateScheduleStatus(ctx, id, rawStatus)
}

func (f *fakeService) UpcomingSchedules(ctx context.Context, limit int) ([]booking.Schedule, error) {
	return f.upcomingSchedules(ctx, limit)
}

func (f *fakeService) MonthlyBookingStats(ctx context.Context, now time.Time) (*booking.MonthlyStats, error) {
	return f.monthlyStats(ctx, now)
}

func (f *fakeService) ReconcileSchedules(ctx context.Context, now time.Time) error {
	return f.reconcile(ctx, now)
}

func (f *fakeService) FinalizePreviousDay(ctx context.Context, now time.Time) error {
	return f.finalize(ctx, now)
}

func (f *fakeService) DispatchReminders(ctx context.Context, now time.Time) error {
	return f.reminders(ctx, now)
}

func newTestRouter(svc BookingService) http.Handler {
	return NewRouter(RouterConfig{
		Service: svc,
		Env:     "test",
		Version: "test",
		Log:     zerolog.Nop(),
	})
}

func sampleBooking(scheduleID uuid.UUID) *booking.Booking {
	return &booking.Booking{
		ID:                uuid.New(),
		ReferenceID:       "APT-ABCDEF1234",
		ScheduleID:        scheduleID,
		AppointmentNumber: 3,
		Patient: booking.PatientDetails{
			Name:    "Kamala Silva",
			NIC:     "857654321V",
			Phone:   "+94712345678",
			Email:   "kamala@example.com",
			Address: "5 Temple Road, Kandy",
		},
		Status:    booking.BookingPending,
		CreatedAt: time.Now().UTC(),
	}
}

func createBookingBody(scheduleID string) *bytes.Reader {
	body, _ := json.Marshal(map[string]string{
		"schedule_id": scheduleID,
		"name":        "Kamala Silva",
		"nic":         "857654321V",
		"phone":       "+94712345678",
		"email":       "kamala@example.com",
		"address":     "5 Temple Road, Kandy",
	})
	return bytes.NewReader(body)
}

func TestCreateBookingHandler_Created(t *testing.T) {
	scheduleID := uuid.New()
	svc := &fakeService{
		createBooking: func(_ context.Context, gotID uuid.UUID, patient booking.PatientDetails) (*booking.Booking, error) {
			assert.Equal(t, scheduleID, gotID)
			assert.Equal(t, "Kamala Silva", patient.Name)
			return sampleBooking(gotID), nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/bookings", createBookingBody(scheduleID.String()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "APT-ABCDEF1234", resp.ReferenceID)
	assert.Equal(t, 3, resp.AppointmentNumber)
	assert.Equal(t, "PENDING", resp.Status)
}

func TestCreateBookingHandler_ScheduleFull(t *testing.T) {
	svc := &fakeService{
		createBooking: func(context.Context, uuid.UUID, booking.PatientDetails) (*booking.Booking, error) {
			return nil, booking.ErrScheduleFull
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/bookings", createBookingBody(uuid.NewString()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "schedule_full", resp.Error)
}

func TestCreateBookingHandler_BusyGetsRetryAfter(t *testing.T) {
	svc := &fakeService{
		createBooking: func(context.Context, uuid.UUID, booking.PatientDetails) (*booking.Booking, error) {
			return nil, booking.ErrScheduleBusy
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/bookings", createBookingBody(uuid.NewString()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "system_busy", resp.Error)
}

func TestCreateBookingHandler_BadInput(t *testing.T) {
	svc := &fakeService{
		createBooking: func(context.Context, uuid.UUID, booking.PatientDetails) (*booking.Booking, error) {
			t.Fatal("service must not be called on invalid input")
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad schedule id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/bookings", createBookingBody("not-a-uuid"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetBookingHandler(t *testing.T) {
	b := sampleBooking(uuid.New())
	svc := &fakeService{
		getBooking: func(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
			if id == b.ID {
				return b, nil
			}
			return nil, booking.ErrBookingNotFound
		},
	}
	router := newTestRouter(svc)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/bookings/"+b.ID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp BookingResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, b.ID, resp.ID)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/bookings/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/bookings/banana", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLookupBookingHandler(t *testing.T) {
	b := sampleBooking(uuid.New())
	svc := &fakeService{
		lookupBooking: func(_ context.Context, reference, phone string) (*booking.Booking, error) {
			if reference == b.ReferenceID && phone == b.Patient.Phone {
				return b, nil
			}
			return nil, booking.ErrBookingNotFound
		},
	}
	router := newTestRouter(svc)

	t.Run("both parameters match", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/bookings/lookup?reference=APT-ABCDEF1234&phone=%2B94712345678", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing phone", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/bookings/lookup?reference=APT-ABCDEF1234", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong phone", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/bookings/lookup?reference=APT-ABCDEF1234&phone=%2B94000000000", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateBookingStatusHandler(t *testing.T) {
	b := sampleBooking(uuid.New())
	svc := &fakeService{
		updateBookingStatus: func(_ context.Context, id uuid.UUID, rawStatus string) (*booking.Booking, error) {
			assert.Equal(t, "CANCELLED", rawStatus)
			cancelled := *b
			cancelled.Status = booking.BookingCancelled
			return &cancelled, nil
		},
	}
	router := newTestRouter(svc)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "CANCELLED"})
	req := httptest.NewRequest(http.MethodPatch, "/bookings/"+b.ID.String()+"/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CANCELLED", resp.Status)
}

func TestDeleteBookingHandler(t *testing.T) {
	svc := &fakeService{
		deleteBooking: func(context.Context, uuid.UUID) error { return nil },
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/bookings/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUpdateScheduleStatusHandler_InvalidTransition(t *testing.T) {
	svc := &fakeService{
		updateScheduleStatus: func(context.Context, uuid.UUID, string) (*booking.Schedule, error) {
			return nil, booking.ErrInvalidTransition
		},
	}
	router := newTestRouter(svc)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "AVAILABLE"})
	req := httptest.NewRequest(http.MethodPatch, "/schedules/"+uuid.NewString()+"/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_status_transition", resp.Error)
}

func TestDeleteScheduleHandler_WithBookings(t *testing.T) {
	svc := &fakeService{
		deleteSchedule: func(context.Context, uuid.UUID) error {
			return booking.ErrScheduleHasBookings
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/schedules/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpcomingSchedulesHandler(t *testing.T) {
	start := time.Now().Add(2 * time.Hour)
	schedules := []booking.Schedule{
		{
			ID:             uuid.New(),
			DentistID:      uuid.New(),
			Date:           start.Truncate(24 * time.Hour),
			StartAt:        start,
			EndAt:          start.Add(3 * time.Hour),
			Capacity:       8,
			AvailableSlots: 5,
			Status:         booking.ScheduleAvailable,
		},
	}

	svc := &fakeService{
		upcomingSchedules: func(_ context.Context, limit int) ([]booking.Schedule, error) {
			assert.Equal(t, 5, limit)
			return schedules, nil
		},
	}
	router := newTestRouter(svc)

	t.Run("limit honored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/schedules/upcoming?limit=5", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp []ScheduleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, 5, resp[0].AvailableSlots)
		assert.Equal(t, "AVAILABLE", resp[0].Status)
	})

	t.Run("non-numeric limit rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/schedules/upcoming?limit=lots", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMonthlyStatsHandler(t *testing.T) {
	svc := &fakeService{
		monthlyStats: func(_ context.Context, now time.Time) (*booking.MonthlyStats, error) {
			return &booking.MonthlyStats{
				Year:  now.Year(),
				Month: now.Month(),
				Total: 42,
				ByStatus: map[booking.BookingStatus]int{
					booking.BookingPending:   30,
					booking.BookingCancelled: 12,
				},
			}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/stats/bookings/monthly", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp MonthlyStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 42, resp.Total)
	assert.Equal(t, 30, resp.ByStatus["PENDING"])
	assert.Equal(t, 12, resp.ByStatus["CANCELLED"])
}

func TestSweepTriggerHandler(t *testing.T) {
	called := false
	svc := &fakeService{
		reconcile: func(context.Context, time.Time) error {
			called = true
			return nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/sweeps/reconcile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

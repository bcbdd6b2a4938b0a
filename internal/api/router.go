package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service BookingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Log     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Booking endpoints
	r.Post("/bookings", createBookingHandler(cfg.Service))
	r.Get("/bookings/lookup", lookupBookingHandler(cfg.Service))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Service))
	r.Put("/bookings/{id}", updateBookingHandler(cfg.Service))
	r.Patch("/bookings/{id}/status", updateBookingStatusHandler(cfg.Service))
	r.Delete("/bookings/{id}", deleteBookingHandler(cfg.Service))

	// Schedule endpoints
	r.Post("/schedules", createScheduleHandler(cfg.Service))
	r.Get("/schedules/upcoming", upcomingSchedulesHandler(cfg.Service))
	r.Patch("/schedules/{id}/status", updateScheduleStatusHandler(cfg.Service))
	r.Delete("/schedules/{id}", deleteScheduleHandler(cfg.Service))

	// Reporting
	r.Get("/stats/bookings/monthly", monthlyStatsHandler(cfg.Service))

	// Manually triggerable sweeps
	r.Post("/sweeps/reconcile", sweepTriggerHandler(cfg.Service.ReconcileSchedules))
	r.Post("/sweeps/finalize-daily", sweepTriggerHandler(cfg.Service.FinalizePreviousDay))
	r.Post("/sweeps/reminders", sweepTriggerHandler(cfg.Service.DispatchReminders))

	return r
}

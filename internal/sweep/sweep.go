// Package sweep drives the time-based schedule lifecycle: the interval
// reconciliation, the daily finalize pass and hourly reminder dispatch. The
// runner only owns timers; all decisions live in the booking service, so each
// sweep is testable with an injected clock and callable on its own.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BookingService is the slice of the booking service the sweeps need.
type BookingService interface {
	ReconcileSchedules(ctx context.Context, now time.Time) error
	FinalizePreviousDay(ctx context.Context, now time.Time) error
	DispatchReminders(ctx context.Context, now time.Time) error
}

type Config struct {
	ReconcileInterval time.Duration
	ReminderInterval  time.Duration
	DailyFinalizeAt   string // HH:MM, process-local time
	RunTimeout        time.Duration
}

type Runner struct {
	svc BookingService
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

func New(svc BookingService, cfg Config, log zerolog.Logger) *Runner {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	return &Runner{
		svc: svc,
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// RunStartup performs the boot-time reconciliation, catching up on anything
// that elapsed while the process was down. Failure is logged only; the
// process must come up and serve traffic regardless.
func (r *Runner) RunStartup(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	if err := r.svc.ReconcileSchedules(runCtx, r.now()); err != nil {
		r.log.Error().Err(err).Msg("startup reconciliation failed, continuing degraded")
		return
	}
	r.log.Info().Msg("startup reconciliation complete")
}

// Start blocks running all three periodic sweeps until ctx is cancelled.
// The loops are independent: one sweep failing or running long never stalls
// the others.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		r.intervalLoop(ctx, "reconcile", r.cfg.ReconcileInterval, r.svc.ReconcileSchedules)
	}()
	go func() {
		defer wg.Done()
		r.intervalLoop(ctx, "reminders", r.cfg.ReminderInterval, r.svc.DispatchReminders)
	}()
	go func() {
		defer wg.Done()
		r.dailyLoop(ctx)
	}()

	r.log.Info().
		Dur("reconcile_interval", r.cfg.ReconcileInterval).
		Dur("reminder_interval", r.cfg.ReminderInterval).
		Str("daily_finalize_at", r.cfg.DailyFinalizeAt).
		Msg("sweep runner started")

	wg.Wait()
	r.log.Info().Msg("sweep runner stopped")
}

func (r *Runner) intervalLoop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context, time.Time) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, name, sweep)
		}
	}
}

func (r *Runner) dailyLoop(ctx context.Context) {
	for {
		next := r.nextDailyRun()
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.runOnce(ctx, "daily-finalize", r.svc.FinalizePreviousDay)
		}
	}
}

func (r *Runner) nextDailyRun() time.Time {
	now := r.now()
	at, err := time.Parse("15:04", r.cfg.DailyFinalizeAt)
	if err != nil {
		// Config validated at load; fall back to 02:00 anyway.
		at, _ = time.Parse("15:04", "02:00")
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (r *Runner) runOnce(ctx context.Context, name string, sweep func(context.Context, time.Time) error) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	start := r.now()
	if err := sweep(runCtx, start); err != nil {
		r.log.Error().Err(err).Str("sweep", name).Msg("sweep run failed")
		return
	}
	r.log.Debug().Str("sweep", name).Dur("took", time.Since(start)).Msg("sweep run complete")
}

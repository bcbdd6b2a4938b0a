package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingService struct {
	reconciles int64
	finalizes  int64
	reminders  int64

	reconcileErr error
}

func (s *countingService) ReconcileSchedules(context.Context, time.Time) error {
	atomic.AddInt64(&s.reconciles, 1)
	return s.reconcileErr
}

func (s *countingService) FinalizePreviousDay(context.Context, time.Time) error {
	atomic.AddInt64(&s.finalizes, 1)
	return nil
}

func (s *countingService) DispatchReminders(context.Context, time.Time) error {
	atomic.AddInt64(&s.reminders, 1)
	return nil
}

func testConfig() Config {
	return Config{
		ReconcileInterval: 10 * time.Millisecond,
		ReminderInterval:  10 * time.Millisecond,
		DailyFinalizeAt:   "02:00",
		RunTimeout:        time.Second,
	}
}

func TestRunStartup(t *testing.T) {
	svc := &countingService{}
	runner := New(svc, testConfig(), zerolog.Nop())

	runner.RunStartup(context.Background())

	assert.EqualValues(t, 1, atomic.LoadInt64(&svc.reconciles))
}

func TestRunStartup_FailureTolerated(t *testing.T) {
	svc := &countingService{reconcileErr: errors.New("db down")}
	runner := New(svc, testConfig(), zerolog.Nop())

	// Must return normally; a failed catch-up never blocks startup.
	runner.RunStartup(context.Background())

	assert.EqualValues(t, 1, atomic.LoadInt64(&svc.reconciles))
}

func TestStart_TicksAndStopsOnCancel(t *testing.T) {
	svc := &countingService{}
	runner := New(svc, testConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&svc.reconciles) >= 2 &&
			atomic.LoadInt64(&svc.reminders) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
}

func TestStart_KeepsTickingAfterSweepError(t *testing.T) {
	svc := &countingService{reconcileErr: errors.New("transient failure")}
	runner := New(svc, testConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&svc.reconciles) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestNextDailyRun(t *testing.T) {
	runner := New(&countingService{}, testConfig(), zerolog.Nop())

	t.Run("before the slot runs today", func(t *testing.T) {
		runner.now = func() time.Time {
			return time.Date(2026, time.March, 10, 1, 30, 0, 0, time.UTC)
		}
		next := runner.nextDailyRun()
		assert.Equal(t, time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("after the slot runs tomorrow", func(t *testing.T) {
		runner.now = func() time.Time {
			return time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
		}
		next := runner.nextDailyRun()
		assert.Equal(t, time.Date(2026, time.March, 11, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("exactly at the slot runs tomorrow", func(t *testing.T) {
		runner.now = func() time.Time {
			return time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC)
		}
		next := runner.nextDailyRun()
		assert.Equal(t, time.Date(2026, time.March, 11, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("garbage config falls back to 02:00", func(t *testing.T) {
		cfg := testConfig()
		cfg.DailyFinalizeAt = "nonsense"
		r := New(&countingService{}, cfg, zerolog.Nop())
		r.now = func() time.Time {
			return time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
		}
		next := r.nextDailyRun()
		assert.Equal(t, time.Date(2026, time.March, 11, 2, 0, 0, 0, time.UTC), next)
	})
}

func TestNew_DefaultsRunTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RunTimeout = 0
	runner := New(&countingService{}, cfg, zerolog.Nop())

	require.Equal(t, 2*time.Minute, runner.cfg.RunTimeout)
}

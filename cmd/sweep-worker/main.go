package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-backend/internal/booking"
	"github.com/clinicdesk/appointment-backend/internal/config"
	"github.com/clinicdesk/appointment-backend/internal/db"
	"github.com/clinicdesk/appointment-backend/internal/metrics"
	"github.com/clinicdesk/appointment-backend/internal/notify"
	redisclient "github.com/clinicdesk/appointment-backend/internal/redis"
	"github.com/clinicdesk/appointment-backend/internal/sweep"
)

// sweep-worker runs the schedule lifecycle sweeps as a dedicated process, for
// deployments where the api-server has SWEEPS_ENABLED=false.
func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweep-worker").Logger()
	log.Info().
		Str("env", cfg.Env).
		Dur("reconcile_interval", cfg.ReconcileInterval).
		Msg("sweep-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	store := booking.NewPgStore(pgPool)
	recorder := metrics.NewRedisRecorder(rdb, log)

	var notifier booking.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewMailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, log)
	} else {
		log.Warn().Msg("SMTP_HOST not set, emails will only be logged")
		notifier = notify.NewLogNotifier(log)
	}

	svc := booking.NewService(store, notifier, recorder, redisclient.NopCache{}, cfg, log)

	runner := sweep.New(svc, sweep.Config{
		ReconcileInterval: cfg.ReconcileInterval,
		ReminderInterval:  cfg.ReminderInterval,
		DailyFinalizeAt:   cfg.DailyFinalizeAt,
	}, log)

	runner.RunStartup(rootCtx)
	runner.Start(rootCtx)

	log.Info().Msg("sweep-worker stopped")
}

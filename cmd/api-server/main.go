package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-backend/internal/api"
	"github.com/clinicdesk/appointment-backend/internal/booking"
	"github.com/clinicdesk/appointment-backend/internal/config"
	"github.com/clinicdesk/appointment-backend/internal/db"
	"github.com/clinicdesk/appointment-backend/internal/metrics"
	"github.com/clinicdesk/appointment-backend/internal/notify"
	redisclient "github.com/clinicdesk/appointment-backend/internal/redis"
	"github.com/clinicdesk/appointment-backend/internal/sweep"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env, "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres and apply migrations
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migCtx, cfg.PostgresDSN)
	cancelMig()
	if err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}
	log.Info().Msg("connected to Postgres, migrations applied")

	// Connect Redis
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
	cache := redisclient.NewScheduleCache(rdb, 30*time.Second, log)

	var notifier booking.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewMailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, log)
	} else {
		log.Warn().Msg("SMTP_HOST not set, emails will only be logged")
		notifier = notify.NewLogNotifier(log)
	}

	svc := booking.NewService(store, notifier, recorder, cache, cfg, log)

	runner := sweep.New(svc, sweep.Config{
		ReconcileInterval: cfg.ReconcileInterval,
		ReminderInterval:  cfg.ReminderInterval,
		DailyFinalizeAt:   cfg.DailyFinalizeAt,
	}, log)

	// Catch up on anything that elapsed while the process was down. Failure
	// must not block startup.
	runner.RunStartup(rootCtx)

	if cfg.SweepsEnabled {
		go runner.Start(rootCtx)
	} else {
		log.Info().Msg("in-process sweeps disabled, expecting a sweep-worker deployment")
	}

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
		Log:     log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}

func newLogger(env, service string) zerolog.Logger {
	out := zerolog.New(os.Stdout)
	if env == "dev" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return out.With().Timestamp().Str("service", service).Logger()
}

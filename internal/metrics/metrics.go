// Package metrics records admission outcomes into Redis counters. The sink is
// purely observational: a Redis failure is logged and the admission proceeds.
package metrics

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyBookingsCreated  = "clinic:metrics:bookings_created"
	keyBookingsRejected = "clinic:metrics:bookings_rejected:" // + reason
	keyAdmissionMicros  = "clinic:metrics:admission_micros"
	keyAdmissionCount   = "clinic:metrics:admission_count"
)

type RedisRecorder struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisRecorder(client *redis.Client, log zerolog.Logger) *RedisRecorder {
	return &RedisRecorder{client: client, log: log}
}

func (r *RedisRecorder) BookingCreated(ctx context.Context) {
	if err := r.client.Incr(ctx, keyBookingsCreated).Err(); err != nil {
		r.log.Warn().Err(err).Msg("metrics: incr bookings_created failed")
	}
}

func (r *RedisRecorder) BookingRejected(ctx context.Context, reason string) {
	if err := r.client.Incr(ctx, keyBookingsRejected+reason).Err(); err != nil {
		r.log.Warn().Err(err).Str("reason", reason).Msg("metrics: incr bookings_rejected failed")
	}
}

func (r *RedisRecorder) AdmissionObserved(ctx context.Context, d time.Duration) {
	pipe := r.client.Pipeline()
	pipe.IncrBy(ctx, keyAdmissionMicros, d.Microseconds())
	pipe.Incr(ctx, keyAdmissionCount)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn().Err(err).Msg("metrics: record admission duration failed")
	}
}

// Nop discards all observations; used in tests and when Redis is down.
type Nop struct{}

func (Nop) BookingCreated(context.Context) {}
func (Nop) BookingRejected(context.Context, string) {}
func (Nop) AdmissionObserved(context.Context, time.Duration) {}

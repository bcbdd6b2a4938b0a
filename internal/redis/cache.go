package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-backend/internal/booking"
)

// ScheduleCache keeps the upcoming-schedules listing for a short TTL. It only
// serves the browse endpoint; admission always reads the locked row, so a
// slightly stale listing is harmless.
type ScheduleCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewScheduleCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *ScheduleCache {
	return &ScheduleCache{client: client, ttl: ttl, log: log}
}

func upcomingKey(limit int) string {
	return fmt.Sprintf("clinic:cache:upcoming:%d", limit)
}

func (c *ScheduleCache) GetUpcoming(ctx context.Context, limit int) ([]booking.Schedule, bool) {
	raw, err := c.client.Get(ctx, upcomingKey(limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("cache: get upcoming failed")
		}
		return nil, false
	}

	var schedules []booking.Schedule
	if err := json.Unmarshal(raw, &schedules); err != nil {
		c.log.Warn().Err(err).Msg("cache: corrupt upcoming entry, ignoring")
		return nil, false
	}
	return schedules, true
}

func (c *ScheduleCache) SetUpcoming(ctx context.Context, limit int, schedules []booking.Schedule) {
	raw, err := json.Marshal(schedules)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache: marshal upcoming failed")
		return
	}
	if err := c.client.Set(ctx, upcomingKey(limit), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache: set upcoming failed")
	}
}

// NopCache never hits; every read goes to the store.
type NopCache struct{}

func (NopCache) GetUpcoming(context.Context, int) ([]booking.Schedule, bool) { return nil, false }
func (NopCache) SetUpcoming(context.Context, int, []booking.Schedule) {}

// Package analytics records dispatch outcome counts in Redis time buckets.
//
// Counters are best-effort operational data, keyed per tenant, trigger
// type and terminal status. A Redis outage costs counts, never dispatches.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// DefaultWindow is the counter bucket width.
const DefaultWindow = 5 * time.Minute

// DefaultRetention is how long buckets live.
const DefaultRetention = 30 * 24 * time.Hour

type RedisSink struct {
	client    *redis.Client
	window    time.Duration
	retention time.Duration
	clock     func() time.Time
	log       zerolog.Logger
}

func NewRedisSink(client *redis.Client, log zerolog.Logger) *RedisSink {
	return &RedisSink{
		client:    client,
		window:    DefaultWindow,
		retention: DefaultRetention,
		clock:     time.Now,
		log:       log.With().Str("component", "analytics").Logger(),
	}
}

// WithWindow sets the bucket width.
func (s *RedisSink) WithWindow(window time.Duration) *RedisSink {
	if window > 0 {
		s.window = window
	}
	return s
}

// WithRetention sets the bucket TTL.
func (s *RedisSink) WithRetention(retention time.Duration) *RedisSink {
	if retention > 0 {
		s.retention = retention
	}
	return s
}

// Record increments the bucket for a finalized execution. Failures are
// logged and swallowed.
func (s *RedisSink) Record(ctx context.Context, rec domain.ExecutionRecord) {
	key := buildKey(rec.TenantID.String(), rec.TriggerType, string(rec.Status), s.clock(), s.window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("record dispatch outcome")
	}
}

func buildKey(tenantID, triggerType, status string, t time.Time, window time.Duration) string {
	return fmt.Sprintf("t:%s:tt:%s:%s:%s", tenantID, triggerType, status, truncateToBucket(t, window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}

package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRecalcQueueKey is the Redis list shared by producers and workers.
const DefaultRecalcQueueKey = "trustmesh:recalc"

// RedisScheduler pushes recalculation triggers onto a Redis list so a
// separate worker pool can drain them. It satisfies the same Trigger
// contract as the in-process Dispatcher; pick one per deployment.
type RedisScheduler struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisScheduler wires a scheduler to a Redis client.
func NewRedisScheduler(client *redis.Client, key string) *RedisScheduler {
	if key == "" {
		key = DefaultRecalcQueueKey
	}
	return &RedisScheduler{
		client: client,
		key:    key,
		logger: slog.Default().With("component", "redis_scheduler"),
	}
}

// Trigger enqueues the subject. At-least-once: duplicates are fine because
// recalculation is idempotent.
func (s *RedisScheduler) Trigger(ctx context.Context, subject string) error {
	if err := s.client.LPush(ctx, s.key, subject).Err(); err != nil {
		return fmt.Errorf("enqueue recalculation for %s: %w", subject, err)
	}
	return nil
}

// Run drains the queue until the context is cancelled, re-enqueueing
// subjects whose recalculation failed.
func (s *RedisScheduler) Run(ctx context.Context, agg Recalculator) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.client.BRPop(ctx, 5*time.Second, s.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WarnContext(ctx, "queue pop failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		subject := res[1]
		if _, err := agg.Recalculate(ctx, subject); err != nil {
			s.logger.WarnContext(ctx, "recalculation failed, re-enqueueing", "subject", subject, "error", err)
			if pushErr := s.client.LPush(ctx, s.key, subject).Err(); pushErr != nil {
				s.logger.ErrorContext(ctx, "re-enqueue failed", "subject", subject, "error", pushErr)
			}
		}
	}
}

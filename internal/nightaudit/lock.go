package nightaudit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harborstay/harborstay/internal/shared"
)

// RedisLock adapts the shared lease to the audit's LockPort.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLock builds a RedisLock. The TTL bounds a crashed run's hold time.
func NewRedisLock(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLock{client: client, ttl: ttl, logger: logger}
}

// Acquire takes the per-date lease.
func (l *RedisLock) Acquire(ctx context.Context, date string) (func(context.Context), error) {
	lease, err := shared.AcquireLease(ctx, l.client, shared.NightAuditLockKey(date), l.ttl)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		if err := lease.Release(ctx); err != nil {
			l.logger.Warn("release night audit lease", slog.String("date", date), slog.Any("error", err))
		}
	}, nil
}

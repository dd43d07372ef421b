package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NightAuditLockKey builds the redis key guarding the nightly audit run.
func NightAuditLockKey(date string) string {
	return fmt.Sprintf("audit:night:%s:lock", date)
}

// ErrLeaseHeld indicates another process currently holds the lease.
var ErrLeaseHeld = errors.New("lease already held")

// Lease is a redis-backed process-wide lock with a TTL. At most one holder
// exists per key; release only succeeds for the holder's token.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// releaseScript deletes the key only when the stored token matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLease attempts to take the lock. Returns ErrLeaseHeld when another
// holder is active.
func AcquireLease(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lease, error) {
	if client == nil {
		return nil, errors.New("lease: redis client required")
	}
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lease: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Lease{client: client, key: key, token: token, ttl: ttl}, nil
}

// Release frees the lease when still owned. Expired leases release as a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Extend pushes the expiry forward; used by long audit runs.
func (l *Lease) Extend(ctx context.Context) error {
	if l == nil {
		return errors.New("lease: not acquired")
	}
	ok, err := l.client.Expire(ctx, l.key, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseHeld
	}
	return nil
}

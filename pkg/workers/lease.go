// Package workers runs the execution side of the engine: a pool consuming
// queued executions off the event bus, guarded by per-execution leases, and
// the scheduler poller that fires due schedules and delay wake-ups.
package workers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease serializes workers on one execution: only the lease holder advances
// it. Expiry bounds how long a crashed worker can strand a run.
type Lease interface {
	// Acquire returns false when another holder owns the key.
	Acquire(ctx context.Context, executionID, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, executionID, holder string) error
}

const leaseKeyPrefix = "cascade:lease:execution:"

// releaseScript deletes the lease only when the caller still holds it, so a
// worker that lost its lease to expiry cannot release the next holder's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease implements Lease on a shared redis, the production setup when
// multiple worker processes consume the same consumer group.
type RedisLease struct {
	client redis.UniversalClient
}

func NewRedisLease(client redis.UniversalClient) *RedisLease {
	return &RedisLease{client: client}
}

func (l *RedisLease) Acquire(ctx context.Context, executionID, holder string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, leaseKeyPrefix+executionID, holder, ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context, executionID, holder string) error {
	return releaseScript.Run(ctx, l.client, []string{leaseKeyPrefix + executionID}, holder).Err()
}

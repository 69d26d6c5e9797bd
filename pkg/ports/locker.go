package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes work on one key across replicas. Call state
// locks are keyed by call ID; caller refresh locks by ANI.
type DistributedLocker interface {
	// Lock blocks until key is held or ctx is done. The lock expires after
	// ttl if the holder dies, so ttl must outlast the guarded work (for a
	// caller refresh that is the vendor fan-out). The returned UnlockFunc
	// must be called once the work ends.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

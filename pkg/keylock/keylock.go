// Package keylock serializes work per key within a process and, optionally,
// across replicas through a ports.DistributedLocker.
package keylock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/ports"
)

// DefaultTTL bounds how long a distributed lock survives a crashed holder.
const DefaultTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks is a keyed mutex. Entries are garbage collected by reference counting,
// so idle keys cost nothing.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	prefix string
	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures Locks.
type Option func(*Locks)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(l *Locks) {
		l.locker = locker
	}
}

// WithTTL sets the distributed lock TTL.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locks) {
		l.ttl = ttl
	}
}

// WithPrefix namespaces the keys handed to the distributed locker.
func WithPrefix(prefix string) Option {
	return func(l *Locks) {
		l.prefix = prefix
	}
}

// WithLogger configures a logger for deferred unlock failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locks) {
		l.logger = logger
	}
}

// New creates an empty keyed mutex.
func New(opts ...Option) *Locks {
	l := &Locks{
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (l *Locks) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (l *Locks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

// Active returns the number of keys currently held or waited on.
func (l *Locks) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// With executes fn while holding the lock for key.
func (l *Locks) With(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := l.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(key)
	}()

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, l.prefix+key, l.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Unlock with a fresh context: fn may have consumed the caller's deadline.
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := unlock(uctx); err != nil {
				l.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/keylock"
	"github.com/aretw0/casefile/pkg/ports"
)

// DefaultRetention is how long call state outlives its call before Prune removes it.
const DefaultRetention = 24 * time.Hour

// Manager orchestrates call state access, serializing read-modify-write
// cycles per call ID across goroutines and, with a distributed locker, replicas.
type Manager struct {
	store  ports.CallStateStore
	locks  *keylock.Locks
	logger *slog.Logger

	locker  ports.DistributedLocker
	lockTTL time.Duration
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL. It must outlast the longest
// tool invocation, which includes the SMS form wait.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given call state store.
func NewManager(store ports.CallStateStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	lockOpts := []keylock.Option{keylock.WithPrefix("call:"), keylock.WithLogger(m.logger)}
	if m.locker != nil {
		lockOpts = append(lockOpts, keylock.WithLocker(m.locker))
	}
	if m.lockTTL > 0 {
		lockOpts = append(lockOpts, keylock.WithTTL(m.lockTTL))
	}
	m.locks = keylock.New(lockOpts...)
	return m
}

// Load retrieves the state of a call.
func (m *Manager) Load(ctx context.Context, callID string) (domain.SessionContext, error) {
	return m.store.Load(ctx, callID)
}

// Create stores a fresh context. It fails if the call already exists.
func (m *Manager) Create(ctx context.Context, sc domain.SessionContext) error {
	return m.locks.With(ctx, sc.CallID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, sc.CallID)
		if err == nil {
			return fmt.Errorf("%w: %s", domain.ErrCallExists, sc.CallID)
		}
		if !errors.Is(err, domain.ErrCallNotFound) {
			return fmt.Errorf("failed to check call existence: %w", err)
		}
		if err := m.store.Save(ctx, sc); err != nil {
			return fmt.Errorf("failed to initialize call: %w", err)
		}
		return nil
	})
}

// Update loads the call, applies fn and saves the result, all under the call
// lock. If fn fails nothing is written.
func (m *Manager) Update(ctx context.Context, callID string, fn func(context.Context, domain.SessionContext) (domain.SessionContext, error)) (domain.SessionContext, error) {
	var out domain.SessionContext
	err := m.locks.With(ctx, callID, func(ctx context.Context) error {
		cur, err := m.store.Load(ctx, callID)
		if err != nil {
			return err
		}
		next, err := fn(ctx, cur)
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, next); err != nil {
			return fmt.Errorf("failed to save call %s: %w", callID, err)
		}
		out = next
		return nil
	})
	return out, err
}

// Delete removes the call from the store.
func (m *Manager) Delete(ctx context.Context, callID string) error {
	return m.locks.With(ctx, callID, func(ctx context.Context) error {
		return m.store.Delete(ctx, callID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Prune deletes ended calls whose end is older than retention, and calls that
// never ended but were created before it. It returns the removed IDs.
func (m *Manager) Prune(ctx context.Context, now time.Time, retention time.Duration) ([]string, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	cutoff := now.Add(-retention)
	var removed []string
	for _, id := range ids {
		sc, err := m.store.Load(ctx, id)
		if errors.Is(err, domain.ErrCallNotFound) {
			continue
		}
		if err != nil {
			m.logger.Warn("Skipping unreadable call state", "call_id", id, "err", err)
			continue
		}

		at := sc.CreatedAt
		if sc.EndedAt != nil {
			at = *sc.EndedAt
		}
		if !at.Before(cutoff) {
			continue
		}
		if err := m.Delete(ctx, id); err != nil {
			return removed, fmt.Errorf("failed to prune call %s: %w", id, err)
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		m.logger.Info("Pruned stale call state", "count", len(removed))
	}
	return removed, nil
}

// ActiveLocks reports how many call locks are held or awaited.
func (m *Manager) ActiveLocks() int {
	return m.locks.Active()
}

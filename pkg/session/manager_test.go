package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.CallStateStore
}

func (s *SlowStore) Save(ctx context.Context, sc domain.SessionContext) error {
	time.Sleep(2 * time.Millisecond) // Simulate IO
	return s.CallStateStore.Save(ctx, sc)
}

func (s *SlowStore) Load(ctx context.Context, callID string) (domain.SessionContext, error) {
	time.Sleep(2 * time.Millisecond) // Simulate IO
	return s.CallStateStore.Load(ctx, callID)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestManager_UpdateSerializes(t *testing.T) {
	store := &SlowStore{memory.NewCallStateStore()}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "race-test"

	require.NoError(t, manager.Create(ctx, domain.NewSessionContext(id, "+15550001111", t0)))

	var wg sync.WaitGroup
	concurrentWrites := 20
	for i := 0; i < concurrentWrites; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Update(ctx, id, func(_ context.Context, sc domain.SessionContext) (domain.SessionContext, error) {
				next := sc.Clone()
				next.AttemptCounts[domain.StepVoiceSpelling]++
				return next, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Without the lock, read-modify-write cycles would lose increments.
	sc, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, concurrentWrites, sc.Attempts(domain.StepVoiceSpelling))
	assert.Zero(t, manager.ActiveLocks())
}

func TestManager_CreateRejectsDuplicate(t *testing.T) {
	manager := session.NewManager(memory.NewCallStateStore())
	ctx := context.Background()

	sc := domain.NewSessionContext("call-1", "+15550001111", t0)
	require.NoError(t, manager.Create(ctx, sc))
	assert.ErrorIs(t, manager.Create(ctx, sc), domain.ErrCallExists)
}

func TestManager_UpdateErrorWritesNothing(t *testing.T) {
	manager := session.NewManager(memory.NewCallStateStore())
	ctx := context.Background()
	require.NoError(t, manager.Create(ctx, domain.NewSessionContext("call-1", "+15550001111", t0)))

	_, err := manager.Update(ctx, "call-1", func(_ context.Context, sc domain.SessionContext) (domain.SessionContext, error) {
		sc.Step = domain.StepWrapUp
		return sc, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	sc, err := manager.Load(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepGreeting, sc.Step)
}

func TestManager_UpdateMissingCall(t *testing.T) {
	manager := session.NewManager(memory.NewCallStateStore())

	_, err := manager.Update(context.Background(), "ghost", func(_ context.Context, sc domain.SessionContext) (domain.SessionContext, error) {
		return sc, nil
	})
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
}

func TestManager_Prune(t *testing.T) {
	manager := session.NewManager(memory.NewCallStateStore())
	ctx := context.Background()
	now := t0.Add(48 * time.Hour)

	ended := domain.NewSessionContext("ended-old", "+1", t0)
	endedAt := t0.Add(time.Hour)
	ended.EndedAt = &endedAt

	recent := domain.NewSessionContext("ended-recent", "+2", t0)
	recentEnd := now.Add(-time.Hour)
	recent.EndedAt = &recentEnd

	abandoned := domain.NewSessionContext("abandoned", "+3", t0)
	live := domain.NewSessionContext("live", "+4", now.Add(-time.Minute))

	for _, sc := range []domain.SessionContext{ended, recent, abandoned, live} {
		require.NoError(t, manager.Create(ctx, sc))
	}

	removed, err := manager.Prune(ctx, now, session.DefaultRetention)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ended-old", "abandoned"}, removed)

	ids, err := manager.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ended-recent", "live"}, ids)
}

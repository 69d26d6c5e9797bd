package keylock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/keylock"
	"github.com/aretw0/casefile/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocks_SerializesSameKey(t *testing.T) {
	locks := keylock.New()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locks.With(ctx, "+15551234", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside, "only one writer per key at a time")
	assert.Equal(t, 0, locks.Active(), "entries should be garbage collected")
}

func TestLocks_DifferentKeysDoNotBlock(t *testing.T) {
	locks := keylock.New()
	ctx := context.Background()

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = locks.With(ctx, "a", func(ctx context.Context) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	finished := make(chan struct{})
	go func() {
		_ = locks.With(ctx, "b", func(ctx context.Context) error { return nil })
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("key b blocked behind key a")
	}
	close(done)
}

func TestLocks_PropagatesError(t *testing.T) {
	locks := keylock.New()
	boom := errors.New("boom")
	err := locks.With(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
	fail     error
}

func (r *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	r.mu.Lock()
	r.locked = append(r.locked, key)
	r.mu.Unlock()
	return func(ctx context.Context) error {
		r.mu.Lock()
		r.unlocked++
		r.mu.Unlock()
		return nil
	}, nil
}

func TestLocks_DistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	locks := keylock.New(keylock.WithLocker(locker), keylock.WithPrefix("caller:"))

	require.NoError(t, locks.With(context.Background(), "+1555", func(ctx context.Context) error { return nil }))
	assert.Equal(t, []string{"caller:+1555"}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
}

func TestLocks_DistributedLockerFailure(t *testing.T) {
	locker := &recordingLocker{fail: errors.New("redis down")}
	locks := keylock.New(keylock.WithLocker(locker))

	called := false
	err := locks.With(context.Background(), "k", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called, "fn must not run without the distributed lock")
	assert.Equal(t, 0, locks.Active())
}

package smswait_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/smswait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverBeforeWait(t *testing.T) {
	r := smswait.New()
	token := r.Arm("call-1")

	require.NoError(t, r.Deliver("call-1", token, "fox@example.com"))

	email, ok := r.Wait(context.Background(), "call-1", time.Second)
	assert.True(t, ok)
	assert.Equal(t, "fox@example.com", email)
	assert.False(t, r.Pending("call-1"))
}

func TestDeliverWhileWaiting(t *testing.T) {
	r := smswait.New()
	token := r.Arm("call-1")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = r.Deliver("call-1", token, "fox@example.com")
	}()

	email, ok := r.Wait(context.Background(), "call-1", 2*time.Second)
	assert.True(t, ok)
	assert.Equal(t, "fox@example.com", email)
}

func TestTimeoutThenLateDelivery(t *testing.T) {
	r := smswait.New()
	token := r.Arm("call-1")

	email, ok := r.Wait(context.Background(), "call-1", 10*time.Millisecond)
	assert.False(t, ok)
	assert.Empty(t, email)

	err := r.Deliver("call-1", token, "late@example.com")
	assert.ErrorIs(t, err, domain.ErrNoActiveWait)
}

func TestDeliverWithoutWait(t *testing.T) {
	r := smswait.New()
	assert.ErrorIs(t, r.Deliver("nobody", "", "x@y.co"), domain.ErrNoActiveWait)
}

func TestDeliverWrongToken(t *testing.T) {
	r := smswait.New()
	r.Arm("call-1")
	assert.ErrorIs(t, r.Deliver("call-1", "forged", "x@y.co"), domain.ErrNoActiveWait)
	assert.True(t, r.Pending("call-1"))
}

func TestSecondDeliveryRefused(t *testing.T) {
	r := smswait.New()
	token := r.Arm("call-1")

	require.NoError(t, r.Deliver("call-1", token, "first@example.com"))
	assert.ErrorIs(t, r.Deliver("call-1", token, "second@example.com"), domain.ErrNoActiveWait)

	email, ok := r.Wait(context.Background(), "call-1", time.Second)
	assert.True(t, ok)
	assert.Equal(t, "first@example.com", email)
}

func TestContextCancelEndsWait(t *testing.T) {
	r := smswait.New()
	r.Arm("call-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := r.Wait(ctx, "call-1", time.Minute)
	assert.False(t, ok)
}

// Races delivery against timeout many times. Each wait must resolve exactly
// once: either Wait sees the email and Deliver succeeded, or Wait timed out
// and Deliver was refused.
func TestDeliveryRacesTimeout(t *testing.T) {
	r := smswait.New()

	for i := 0; i < 200; i++ {
		callID := "race"
		token := r.Arm(callID)

		var delivered atomic.Bool
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Deliver(callID, token, "fox@example.com") == nil {
				delivered.Store(true)
			}
		}()

		email, ok := r.Wait(context.Background(), callID, time.Millisecond)
		wg.Wait()

		require.Equal(t, delivered.Load(), ok, "iteration %d", i)
		if ok {
			require.Equal(t, "fox@example.com", email)
		}
	}
}

func TestCancelWakesWaiter(t *testing.T) {
	r := smswait.New()
	token := r.Arm("call-1")

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Cancel("call-1")
	}()

	start := time.Now()
	_, ok := r.Wait(context.Background(), "call-1", 5*time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, r.Deliver("call-1", token, "x@y.co"), domain.ErrNoActiveWait)
}

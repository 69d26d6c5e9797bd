package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/domain"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewCallStateStore())
	ctx := context.Background()
	count := 2000

	// 1. Create and delete many calls
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("call-%d", i)
		_ = mgr.Create(ctx, domain.NewSessionContext(id, "+1", time.Now()))
		_ = mgr.Delete(ctx, id)
	}

	// 2. No lock entry may outlive its last holder
	if n := mgr.locks.Active(); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", n)
	}
}

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCallerStore_Contract(t *testing.T) {
	tests.RunCallerStoreContract(t, memory.NewCallerStore())
}

func TestMemoryConsentStore_Contract(t *testing.T) {
	tests.RunConsentStoreContract(t, memory.NewConsentStore())
}

func TestMemoryCallStateStore_Contract(t *testing.T) {
	tests.RunCallStateStoreContract(t, memory.NewCallStateStore())
}

func TestMemoryCallStateStore_Isolation(t *testing.T) {
	store := memory.NewCallStateStore()
	ctx := context.Background()

	sc := domain.NewSessionContext("iso", "+1555", time.Now())
	require.NoError(t, store.Save(ctx, sc))

	sc.AttemptCounts[domain.StepVoiceSpelling] = 9
	sc.History = append(sc.History, domain.StepWrapUp)

	loaded, err := store.Load(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Attempts(domain.StepVoiceSpelling), "store must not alias the saved maps")
	assert.Len(t, loaded.History, 1)
}

package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/persistence/middleware"
	"github.com/aretw0/casefile/pkg/ports"
	"github.com/aretw0/casefile/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sealed(t *testing.T, next ports.CallStateStore, cfg middleware.EncryptionConfig) ports.CallStateStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := sealed(t, memory.NewCallStateStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	tests.RunCallStateStoreContract(t, store)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewCallStateStore()
	store := sealed(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	ctx := context.Background()
	sc := domain.NewSessionContext("call-1", "+15551230000", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sc.ValidatedEmail = "fox@example.com"
	require.NoError(t, store.Save(ctx, sc))

	raw, err := underlying.Load(ctx, "call-1")
	require.NoError(t, err)
	assert.NotEmpty(t, raw.Sealed)
	assert.Empty(t, raw.ANI)
	assert.Empty(t, raw.ValidatedEmail)
	assert.Equal(t, sc.CreatedAt, raw.CreatedAt, "timestamps stay visible for pruning")

	loaded, err := store.Load(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "fox@example.com", loaded.ValidatedEmail)
	assert.Equal(t, "+15551230000", loaded.ANI)
	assert.Empty(t, loaded.Sealed)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewCallStateStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := sealed(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	sc := domain.NewSessionContext("call-1", "+15551230000", time.Now())
	sc.WorkingEmail = "old@example.com"
	require.NoError(t, oldStore.Save(ctx, sc))

	newStore := sealed(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Load(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", loaded.WorkingEmail)

	loaded.WorkingEmail = "new@example.com"
	require.NoError(t, newStore.Save(ctx, loaded))

	_, err = oldStore.Load(ctx, "call-1")
	assert.Error(t, err, "old key alone cannot read state sealed with the new key")
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	underlying := memory.NewCallStateStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, domain.NewSessionContext("call-1", "+1555", time.Now())))

	store := sealed(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := store.Load(ctx, "call-1")
	assert.ErrorContains(t, err, "envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrKeySize)
}

func TestParseKeys(t *testing.T) {
	active := base64.StdEncoding.EncodeToString(generateKey(t))
	old := base64.StdEncoding.EncodeToString(generateKey(t))

	cfg, err := middleware.ParseKeys(active, old)
	require.NoError(t, err)
	assert.Len(t, cfg.ActiveKey, 32)
	assert.Len(t, cfg.FallbackKeys, 1)

	_, err = middleware.ParseKeys(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, middleware.ErrKeySize)

	_, err = middleware.ParseKeys("not base64!")
	assert.Error(t, err)
}

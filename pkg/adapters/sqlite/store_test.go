package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/sqlite"
	"github.com/aretw0/casefile/pkg/consent"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteCallerStore_Contract(t *testing.T) {
	tests.RunCallerStoreContract(t, openMemory(t).Callers())
}

func TestSQLiteConsentStore_Contract(t *testing.T) {
	tests.RunConsentStoreContract(t, openMemory(t).Consent())
}

func TestSQLiteCallStateStore_Contract(t *testing.T) {
	tests.RunCallStateStoreContract(t, openMemory(t).Calls())
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casefile.db")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	db, err := sqlite.Open(path)
	require.NoError(t, err)

	_, err = db.Callers().Put(ctx, domain.CallerRecord{
		ANI: "+15550001111", OwnerName: "Fox Mulder", LineType: domain.LineTypeMobile, LineTypeValidatedAt: now,
	}, 0)
	require.NoError(t, err)

	ledger := consent.NewLedger(db.Consent(), consent.WithClock(func() time.Time { return now }))
	_, err = ledger.Record(ctx, "+15550001111", "call-1", domain.ConsentSMS, true, domain.SMSRateDisclosure)
	require.NoError(t, err)

	sc := domain.NewSessionContext("call-1", "+15550001111", now)
	ended := now.Add(5 * time.Minute)
	sc.EndedAt = &ended
	require.NoError(t, db.Calls().Save(ctx, sc))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()

	rec, err := db.Callers().Get(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
	assert.True(t, now.Equal(rec.LineTypeValidatedAt))

	history, err := consent.NewLedger(db.Consent()).History(ctx, "+15550001111")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Granted)

	got, err := db.Calls().Load(ctx, "call-1")
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.True(t, ended.Equal(*got.EndedAt))
}

func TestSQLiteConsentStore_RejectsUnknownType(t *testing.T) {
	_, err := openMemory(t).Consent().Append(context.Background(), domain.ConsentRecord{
		ANI: "+1", CallID: "call-1", Type: "voice", Granted: true, Timestamp: time.Now(),
	})
	assert.Error(t, err)
}

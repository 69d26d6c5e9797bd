package enrichment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/enrichment"
	"github.com/aretw0/casefile/pkg/gateway"
	"github.com/aretw0/casefile/pkg/gateway/gatewaytest"
	"github.com/aretw0/casefile/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ani = "+15551230000"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*enrichment.Cache, *memory.CallerStore, *gatewaytest.Fake, *gateway.Instrumented, *clock) {
	t.Helper()
	store := memory.NewCallerStore()
	fake := gatewaytest.New()
	fake.Phone = domain.ReversePhoneResult{
		OwnerName: "Fox Mulder",
		Email:     "fox@example.com",
		Address:   "2630 Hegal Pl, Alexandria VA",
		LineType:  domain.LineTypeMobile,
	}
	fake.Geo = domain.GeocodeResult{Normalized: "2630 Hegal Pl, Alexandria, VA 22314", Lat: 38.8, Lng: -77.0, Confidence: "ROOFTOP"}
	gw := gateway.NewInstrumented(fake)
	clk := &clock{now: t0}
	return enrichment.New(store, gw, enrichment.WithClock(clk.Now)), store, fake, gw, clk
}

func freshRecord() domain.CallerRecord {
	return domain.CallerRecord{
		ANI:                 ani,
		OwnerName:           "Fox Mulder",
		CandidateEmail:      "fox@example.com",
		CandidateAddressRaw: "2630 Hegal Pl",
		LineType:            domain.LineTypeMobile,
		AddressValidatedAt:  t0.Add(-24 * time.Hour),
		EmailValidatedAt:    t0.Add(-24 * time.Hour),
		LineTypeValidatedAt: t0.Add(-24 * time.Hour),
	}
}

func TestLookup_MissingIsAbsent(t *testing.T) {
	cache, _, _, _, _ := setup(t)

	lk, err := cache.Lookup(context.Background(), ani)
	require.NoError(t, err)
	assert.False(t, lk.Found)
	for _, g := range domain.FieldGroups {
		assert.Equal(t, domain.Absent, lk.Staleness[g], "group %s", g)
	}
}

func TestStaleness_PerGroupTTL(t *testing.T) {
	cache, _, _, _, _ := setup(t)

	rec := domain.CallerRecord{
		AddressValidatedAt:  t0.Add(-91 * 24 * time.Hour),
		EmailValidatedAt:    t0.Add(-100 * 24 * time.Hour),
		LineTypeValidatedAt: time.Time{},
	}
	s := cache.Staleness(rec, true)
	assert.Equal(t, domain.Stale, s[domain.GroupAddress])
	assert.Equal(t, domain.Fresh, s[domain.GroupEmail], "email lives 180 days")
	assert.Equal(t, domain.Absent, s[domain.GroupLineType])
}

func TestPrepare_FreshRecordMakesZeroGatewayCalls(t *testing.T) {
	cache, store, _, gw, _ := setup(t)
	_, err := store.Put(context.Background(), freshRecord(), 0)
	require.NoError(t, err)

	rec, source, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceReturning, source)
	assert.Equal(t, "fox@example.com", rec.CandidateEmail)
	assert.Zero(t, gw.TotalCalls())
}

func TestPrepare_NewCallerRefreshesEverything(t *testing.T) {
	cache, store, _, gw, _ := setup(t)

	rec, source, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceNew, source)
	assert.Equal(t, int64(1), gw.Calls(ports.CapReversePhone), "one reverse-phone lookup covers every group")
	assert.Equal(t, int64(1), gw.Calls(ports.CapGeocode))
	assert.Equal(t, int64(1), gw.Calls(ports.CapDeliverability))

	assert.Equal(t, "Fox Mulder", rec.OwnerName)
	assert.Equal(t, "2630 Hegal Pl, Alexandria, VA 22314", rec.CandidateAddressNormalized)
	assert.Equal(t, domain.DPVDeliverable, rec.DPVMatchCode)
	assert.True(t, rec.SMSEligible())

	stored, err := store.Get(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceNew, stored.RecordSource)
	assert.True(t, t0.Equal(stored.EmailValidatedAt))
}

func TestRefresh_OnlyStaleGroups(t *testing.T) {
	cache, store, fake, gw, _ := setup(t)
	rec := freshRecord()
	rec.EmailValidatedAt = t0.Add(-200 * 24 * time.Hour)
	_, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)
	fake.Phone.Email = "fox.mulder@fbi.gov"
	fake.Phone.Address = "Somewhere else entirely"

	got, source, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRefreshed, source)
	assert.Equal(t, int64(1), gw.Calls(ports.CapReversePhone))
	assert.Zero(t, gw.Calls(ports.CapGeocode), "address group was fresh")
	assert.Zero(t, gw.Calls(ports.CapDeliverability))

	assert.Equal(t, "fox.mulder@fbi.gov", got.CandidateEmail)
	assert.Equal(t, "2630 Hegal Pl", got.CandidateAddressRaw, "fresh groups are not touched")
	require.Len(t, got.DeltaFlags, 1)
	assert.Equal(t, domain.Delta{Field: "candidate_email", Old: "fox@example.com", New: "fox.mulder@fbi.gov", ObservedAt: t0}, got.DeltaFlags[0])
}

func TestRefresh_NonMaterialChangeHasNoDelta(t *testing.T) {
	cache, store, fake, _, _ := setup(t)
	rec := freshRecord()
	rec.EmailValidatedAt = time.Time{}
	_, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)
	fake.Phone.Email = "  FOX@Example.com "
	fake.Phone.OwnerName = "fox  mulder"

	got, _, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Empty(t, got.DeltaFlags)
	assert.Equal(t, "fox@example.com", got.CandidateEmail)
}

func TestRefresh_EmptyValuesNeverOverwrite(t *testing.T) {
	cache, store, fake, _, _ := setup(t)
	rec := freshRecord()
	rec.LineTypeValidatedAt = time.Time{}
	rec.EmailValidatedAt = time.Time{}
	_, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)
	fake.Phone = domain.ReversePhoneResult{}

	got, _, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, "fox@example.com", got.CandidateEmail)
	assert.Equal(t, domain.LineTypeMobile, got.LineType)
	assert.Equal(t, "Fox Mulder", got.OwnerName)
}

func TestRefresh_ReversePhoneFailureKeepsRecord(t *testing.T) {
	cache, store, fake, _, _ := setup(t)
	rec := freshRecord()
	rec.EmailValidatedAt = t0.Add(-365 * 24 * time.Hour)
	before, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)
	fake.PhoneErr = errors.New("503 from vendor")

	lk, err := cache.Lookup(context.Background(), ani)
	require.NoError(t, err)
	_, err = cache.Refresh(context.Background(), ani, lk.Staleness)
	assert.ErrorIs(t, err, enrichment.ErrRefreshFailed)

	after, err := store.Get(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, before.EmailValidatedAt.Equal(after.EmailValidatedAt), "timestamps untouched")

	got, source, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err, "a failed refresh never fails the call")
	assert.Equal(t, domain.SourceReturning, source)
	assert.Equal(t, "fox@example.com", got.CandidateEmail)
}

func TestUpsert_Idempotent(t *testing.T) {
	cache, store, _, _, _ := setup(t)
	_, err := store.Put(context.Background(), freshRecord(), 0)
	require.NoError(t, err)

	patch := domain.CallerPatch{
		ValidatedEmail:   domain.Ptr("fox@example.com"),
		EmailValidatedAt: domain.Ptr(t0),
		ValidatedAddress: domain.Ptr("2630 Hegal Pl, Alexandria, VA 22314"),
		LastCallAt:       domain.Ptr(t0),
	}
	first, err := cache.Upsert(context.Background(), ani, patch)
	require.NoError(t, err)
	second, err := cache.Upsert(context.Background(), ani, patch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stored, err := store.Get(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, first.Version, stored.Version)
}

func TestUpsert_CreatesMissingRecord(t *testing.T) {
	cache, store, _, _, _ := setup(t)

	rec, err := cache.Upsert(context.Background(), ani, domain.CallerPatch{LastCallAt: domain.Ptr(t0)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)

	anis, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{ani}, anis, "at most one record per ANI")
}

// racingStore lets another writer commit between the cache's read and write once.
type racingStore struct {
	*memory.CallerStore
	once sync.Once
}

func (r *racingStore) Put(ctx context.Context, rec domain.CallerRecord, expected int64) (domain.CallerRecord, error) {
	r.once.Do(func() {
		cur, err := r.CallerStore.Get(ctx, rec.ANI)
		if err != nil {
			return
		}
		cur.ValidatedEmail = "other-writer@example.com"
		_, _ = r.CallerStore.Put(ctx, cur, cur.Version)
	})
	return r.CallerStore.Put(ctx, rec, expected)
}

func TestUpsert_VersionConflictRecomputesDelta(t *testing.T) {
	base := memory.NewCallerStore()
	_, err := base.Put(context.Background(), freshRecord(), 0)
	require.NoError(t, err)
	store := &racingStore{CallerStore: base}
	cache := enrichment.New(store, gatewaytest.New(), enrichment.WithClock(func() time.Time { return t0 }))

	got, err := cache.Upsert(context.Background(), ani, domain.CallerPatch{ValidatedEmail: domain.Ptr("fox@example.com")})
	require.NoError(t, err)
	assert.Equal(t, "fox@example.com", got.ValidatedEmail)
	assert.Equal(t, int64(3), got.Version)
	require.Len(t, got.DeltaFlags, 1, "delta recomputed against the concurrent write")
	assert.Equal(t, "other-writer@example.com", got.DeltaFlags[0].Old)
}

func TestPrepare_ConcurrentCallsRefreshOnce(t *testing.T) {
	cache, _, _, gw, _ := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := cache.Prepare(context.Background(), ani)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), gw.Calls(ports.CapReversePhone), "later writers re-read inside the lock and skip the gateway")
}

func TestPrepare_StaleAfterTTL(t *testing.T) {
	cache, _, _, gw, clk := setup(t)

	_, _, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	_, source, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceReturning, source)
	assert.Equal(t, int64(1), gw.Calls(ports.CapReversePhone))

	clk.Advance(90 * 24 * time.Hour)
	_, source, err = cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRefreshed, source)
	assert.Equal(t, int64(2), gw.Calls(ports.CapReversePhone))
	assert.Equal(t, int64(2), gw.Calls(ports.CapGeocode))
}

func TestRefresh_KeepsExtrasForReturningCallers(t *testing.T) {
	cache, store, fake, gw, clk := setup(t)
	fake.Phone.Extras = domain.CallerExtras{
		FirstName:  "Fox",
		AgeRange:   "60-64",
		Carrier:    "T-Mobile",
		AllEmails:  []string{"fox@example.com", "spooky@fbi.gov"},
		OwnerCount: 2,
		Owners:     []domain.OwnerSummary{{Name: "Fox Mulder"}, {Name: "Dana Scully"}},
	}

	_, _, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), ani)
	require.NoError(t, err)
	require.NotNil(t, stored.Extras)
	assert.Equal(t, "Fox", stored.Extras.FirstName)
	assert.Equal(t, []string{"fox@example.com", "spooky@fbi.gov"}, stored.Extras.AllEmails)

	clk.Advance(time.Hour)
	before := gw.TotalCalls()
	rec, source, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceReturning, source)
	assert.Equal(t, before, gw.TotalCalls(), "fresh record served from the store")
	require.NotNil(t, rec.Extras)
	assert.Equal(t, 2, rec.Extras.OwnerCount)
	assert.Equal(t, "T-Mobile", rec.Extras.Carrier)
}

func TestRefresh_EmptyExtrasNeverBlankStoredOnes(t *testing.T) {
	cache, store, fake, _, clk := setup(t)
	rec := freshRecord()
	rec.LineTypeValidatedAt = time.Time{}
	rec.Extras = &domain.CallerExtras{FirstName: "Fox", Carrier: "T-Mobile"}
	_, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)
	fake.Phone.Extras = domain.CallerExtras{}

	got, _, err := cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	require.NotNil(t, got.Extras)
	assert.Equal(t, "Fox", got.Extras.FirstName)

	fake.Phone.Extras = domain.CallerExtras{FirstName: "Fox", Carrier: "Verizon"}
	clk.Advance(200 * 24 * time.Hour)
	got, _, err = cache.Prepare(context.Background(), ani)
	require.NoError(t, err)
	require.NotNil(t, got.Extras)
	assert.Equal(t, "Verizon", got.Extras.Carrier, "a newer snapshot replaces the old one")
}

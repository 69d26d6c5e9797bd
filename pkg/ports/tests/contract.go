// Package tests holds reusable contract suites that every storage adapter must pass.
package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// RunCallerStoreContract verifies that an adapter complies with ports.CallerStore.
func RunCallerStoreContract(t *testing.T, store ports.CallerStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, uniqueID("+1555missing"))
		assert.ErrorIs(t, err, domain.ErrCallerNotFound)
	})

	t.Run("Put_CreateAndUpdate", func(t *testing.T) {
		ani := uniqueID("+1555create")
		rec := domain.CallerRecord{
			ANI:                 ani,
			OwnerName:           "Dana Scully",
			CandidateEmail:      "dana@example.com",
			CandidateAddressRaw: "1 Main St",
			LineType:            domain.LineTypeMobile,
			EmailValidatedAt:    now,
			RecordSource:        domain.SourceNew,
			DeltaFlags: []domain.Delta{
				{Field: "candidate_email", Old: "old@example.com", New: "dana@example.com", ObservedAt: now},
			},
			Extras: &domain.CallerExtras{
				FirstName:       "Dana",
				Carrier:         "T-Mobile",
				IsPrepaid:       domain.Ptr(false),
				AllEmails:       []string{"dana@example.com", "scully@fbi.gov"},
				AlternatePhones: []domain.AlternatePhone{{Number: "+15550002222", LineType: "landline"}},
				OwnerCount:      2,
				Owners:          []domain.OwnerSummary{{Name: "Dana Scully", Confidence: 0.9}, {Name: "William Scully"}},
			},
		}

		stored, err := store.Put(ctx, rec, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Version)

		got, err := store.Get(ctx, ani)
		require.NoError(t, err)
		assert.Equal(t, "Dana Scully", got.OwnerName)
		assert.Equal(t, "dana@example.com", got.CandidateEmail)
		assert.True(t, got.SMSEligible())
		assert.True(t, now.Equal(got.EmailValidatedAt), "email timestamp should round trip")
		assert.True(t, got.AddressValidatedAt.IsZero())
		require.Len(t, got.DeltaFlags, 1)
		assert.Equal(t, "old@example.com", got.DeltaFlags[0].Old)
		require.NotNil(t, got.Extras, "extras should round trip")
		assert.True(t, rec.Extras.Equal(*got.Extras))

		got.ValidatedEmail = "dana@example.com"
		updated, err := store.Put(ctx, got, got.Version)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		again, err := store.Get(ctx, ani)
		require.NoError(t, err)
		assert.Equal(t, "dana@example.com", again.ValidatedEmail)
		assert.Equal(t, int64(2), again.Version)
	})

	t.Run("Put_VersionConflict", func(t *testing.T) {
		ani := uniqueID("+1555conflict")
		_, err := store.Put(ctx, domain.CallerRecord{ANI: ani}, 0)
		require.NoError(t, err)

		_, err = store.Put(ctx, domain.CallerRecord{ANI: ani}, 0)
		assert.ErrorIs(t, err, domain.ErrVersionConflict, "create over an existing record must conflict")

		_, err = store.Put(ctx, domain.CallerRecord{ANI: ani, OwnerName: "late"}, 7)
		assert.ErrorIs(t, err, domain.ErrVersionConflict, "stale version must conflict")

		got, err := store.Get(ctx, ani)
		require.NoError(t, err)
		assert.Empty(t, got.OwnerName, "rejected write must not leak")
	})

	t.Run("List", func(t *testing.T) {
		ani := uniqueID("+1555list")
		_, err := store.Put(ctx, domain.CallerRecord{ANI: ani}, 0)
		require.NoError(t, err)

		anis, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, anis, ani)
	})
}

// RunConsentStoreContract verifies that an adapter complies with ports.ConsentStore.
func RunConsentStoreContract(t *testing.T, store ports.ConsentStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Append_AssignsIncreasingIDs", func(t *testing.T) {
		callID := uniqueID("call")
		first, err := store.Append(ctx, domain.ConsentRecord{
			ANI: "+15550001", CallID: callID, Type: domain.ConsentSMS, Granted: true,
			TranscriptSnippet: domain.SMSRateDisclosure, Timestamp: now,
		})
		require.NoError(t, err)
		second, err := store.Append(ctx, domain.ConsentRecord{
			ANI: "+15550001", CallID: callID, Type: domain.ConsentEmailSend, Granted: false, Timestamp: now.Add(time.Second),
		})
		require.NoError(t, err)

		assert.Positive(t, first.ID)
		assert.Greater(t, second.ID, first.ID)

		rows, err := store.ByCall(ctx, callID)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, domain.ConsentSMS, rows[0].Type)
		assert.True(t, rows[0].Granted)
		assert.Equal(t, domain.SMSRateDisclosure, rows[0].TranscriptSnippet)
		assert.True(t, now.Equal(rows[0].Timestamp))
		assert.False(t, rows[1].Granted)
	})

	t.Run("ByANI_SpansCalls", func(t *testing.T) {
		ani := uniqueID("+1555ani")
		for _, callID := range []string{uniqueID("a"), uniqueID("b")} {
			_, err := store.Append(ctx, domain.ConsentRecord{
				ANI: ani, CallID: callID, Type: domain.ConsentEmailSend, Granted: true, Timestamp: now,
			})
			require.NoError(t, err)
		}

		rows, err := store.ByANI(ctx, ani)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("ByCall_Empty", func(t *testing.T) {
		rows, err := store.ByCall(ctx, uniqueID("none"))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

// RunCallStateStoreContract verifies that an adapter complies with ports.CallStateStore.
func RunCallStateStoreContract(t *testing.T, store ports.CallStateStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Save_and_Load", func(t *testing.T) {
		callID := uniqueID("call")
		sc := domain.NewSessionContext(callID, "+15551234", now)
		sc.Step = domain.StepVoiceSpelling
		sc.History = append(sc.History, domain.StepEmailCollection, domain.StepVoiceSpelling)
		sc.AttemptCounts[domain.StepVoiceSpelling] = 2
		sc.ZBStatus = domain.EmailUnknown

		require.NoError(t, store.Save(ctx, sc))

		got, err := store.Load(ctx, callID)
		require.NoError(t, err)
		assert.Equal(t, domain.StepVoiceSpelling, got.Step)
		assert.Equal(t, sc.History, got.History)
		assert.Equal(t, 2, got.Attempts(domain.StepVoiceSpelling))
		assert.Equal(t, domain.EmailUnknown, got.ZBStatus)
		assert.True(t, now.Equal(got.CreatedAt))
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, uniqueID("missing"))
		assert.ErrorIs(t, err, domain.ErrCallNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		callID := uniqueID("del")
		require.NoError(t, store.Save(ctx, domain.NewSessionContext(callID, "+1", now)))
		require.NoError(t, store.Delete(ctx, callID))

		_, err := store.Load(ctx, callID)
		assert.ErrorIs(t, err, domain.ErrCallNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := uniqueID("list-1"), uniqueID("list-2")
		require.NoError(t, store.Save(ctx, domain.NewSessionContext(id1, "+1", now)))
		require.NoError(t, store.Save(ctx, domain.NewSessionContext(id2, "+1", now)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

package recheck_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/enrichment"
	"github.com/aretw0/casefile/pkg/gateway/gatewaytest"
	"github.com/aretw0/casefile/pkg/recheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return t0 }

func unknownPayload() domain.PostCallPayload {
	sc := domain.NewSessionContext("call-e", "+15550005555", t0)
	sc.Step = domain.StepWrapUp
	sc.WorkingEmail = "fox@example.com"
	sc.ZBStatus = domain.EmailUnknown
	sc.RecheckRequired = true
	return domain.NewPostCallPayload(sc, t0)
}

type fixture struct {
	fake   *gatewaytest.Fake
	store  *memory.CallerStore
	sink   *memory.Sink
	worker *recheck.Worker
}

func setup(opts ...recheck.Option) fixture {
	fake := gatewaytest.New()
	store := memory.NewCallerStore()
	cache := enrichment.New(store, fake, enrichment.WithClock(clock))
	sink := memory.NewSink()
	opts = append([]recheck.Option{recheck.WithClock(clock)}, opts...)
	return fixture{
		fake:   fake,
		store:  store,
		sink:   sink,
		worker: recheck.New(fake, cache, sink, opts...),
	}
}

func TestProcess_ValidMarksCache(t *testing.T) {
	f := setup()

	out, err := f.worker.Process(context.Background(), unknownPayload())
	require.NoError(t, err)

	assert.Equal(t, domain.EmailValid, out.RecheckStatus)
	assert.Equal(t, "fox@example.com", out.ValidatedEmail)
	assert.False(t, out.FollowUpRequired)

	rec, err := f.store.Get(context.Background(), "+15550005555")
	require.NoError(t, err)
	assert.Equal(t, "fox@example.com", rec.ValidatedEmail)
	assert.Equal(t, t0, rec.EmailValidatedAt)

	written, ok := f.sink.Get("call-e")
	require.True(t, ok)
	assert.Equal(t, domain.EmailValid, written.RecheckStatus)
}

func TestProcess_InvalidFlagsFollowUp(t *testing.T) {
	f := setup()
	f.fake.Email = domain.EmailValidation{Status: domain.EmailInvalid, SubStatus: "mailbox_not_found"}

	out, err := f.worker.Process(context.Background(), unknownPayload())
	require.NoError(t, err)

	assert.True(t, out.FollowUpRequired)
	assert.Equal(t, domain.ReasonEmailValidationFailed, out.FollowUpReason)
	assert.Equal(t, domain.EmailInvalid, out.RecheckStatus)

	_, err = f.store.Get(context.Background(), "+15550005555")
	assert.ErrorIs(t, err, domain.ErrCallerNotFound)
}

func TestProcess_UnknownAgainFlagsUnverified(t *testing.T) {
	f := setup()
	f.fake.EmailErr = errors.New("connection reset")

	out, err := f.worker.Process(context.Background(), unknownPayload())
	require.NoError(t, err)

	assert.True(t, out.FollowUpRequired)
	assert.Equal(t, domain.ReasonEmailUnverified, out.FollowUpReason)
	assert.Equal(t, domain.EmailUnknown, out.RecheckStatus)
	assert.Equal(t, 1, f.sink.Writes())
}

func TestProcess_KeepsExistingReason(t *testing.T) {
	f := setup()
	f.fake.EmailErr = errors.New("timeout")

	p := unknownPayload()
	p.FollowUpRequired = true
	p.FollowUpReason = domain.ReasonAddressNotCaptured

	out, err := f.worker.Process(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonAddressNotCaptured, out.FollowUpReason)
}

func TestSchedule_QueueFull(t *testing.T) {
	f := setup(recheck.WithQueueSize(1))
	ctx := context.Background()

	require.NoError(t, f.worker.Schedule(ctx, unknownPayload()))
	assert.ErrorIs(t, f.worker.Schedule(ctx, unknownPayload()), recheck.ErrQueueFull)
	assert.Equal(t, 1, f.worker.Pending())
}

func TestRun_DrainsQueue(t *testing.T) {
	f := setup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.NoError(t, f.worker.Schedule(ctx, unknownPayload()))
	assert.Eventually(t, func() bool { return f.sink.Writes() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

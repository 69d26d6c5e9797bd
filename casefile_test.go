package casefile_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/casefile"
	"github.com/aretw0/casefile/internal/config"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/gateway/gatewaytest"
	"github.com/aretw0/casefile/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ani = "+15551230000"

func fakeGateway() *gatewaytest.Fake {
	fake := gatewaytest.New()
	fake.Phone = domain.ReversePhoneResult{
		OwnerName: "Fox Mulder",
		Email:     "fox@example.com",
		Address:   "2630 Hegal Pl, Alexandria VA",
		LineType:  domain.LineTypeMobile,
	}
	fake.Geo = domain.GeocodeResult{Normalized: "2630 Hegal Pl, Alexandria, VA 22314", Lat: 38.8, Lng: -77.0, Confidence: "ROOFTOP"}
	return fake
}

func testConfig(t *testing.T, driver string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = driver
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "casefile.db")
	cfg.Storage.SinkDir = filepath.Join(t.TempDir(), "calls")
	cfg.Storage.StateDir = filepath.Join(t.TempDir(), "state")
	cfg.Engine.SMSWait = time.Second
	return cfg
}

func TestNew_RunsAFullCall(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite, config.DriverFile} {
		t.Run(driver, func(t *testing.T) {
			app, err := casefile.New(testConfig(t, driver), casefile.WithGateway(fakeGateway()))
			require.NoError(t, err)
			defer app.Close()

			ctx := context.Background()
			start, err := app.Engine.StartCall(ctx, "call-1", ani)
			require.NoError(t, err)
			assert.Equal(t, domain.StepGreeting, start.Step)
			assert.Equal(t, "Fox Mulder", start.File.OwnerName)

			steps := []struct {
				tool domain.Tool
				args map[string]any
			}{
				{domain.ToolConfirmIdentity, map[string]any{"confirmed": true}},
				{domain.ToolProcessEmailConfirmation, map[string]any{"confirmed": true}},
				{domain.ToolValidateEmail, nil},
				{domain.ToolProcessEmailConsent, map[string]any{"consented": true}},
				{domain.ToolProcessAddressConfirmation, map[string]any{"response": "confirmed"}},
				{domain.ToolValidateAddress, nil},
			}
			var last domain.Step
			for _, s := range steps {
				r, err := app.Engine.Invoke(ctx, "call-1", s.tool, s.args)
				require.NoError(t, err, s.tool)
				last = r.Step
			}
			assert.Equal(t, domain.StepWrapUp, last)

			payload, err := app.Engine.Hangup(ctx, "call-1")
			require.NoError(t, err)
			assert.Equal(t, "fox@example.com", payload.ValidatedEmail)

			written, err := app.Sink.Read("call-1")
			require.NoError(t, err)
			assert.Equal(t, "call-1", written.CallID)

			rec, err := app.Callers().Get(ctx, ani)
			require.NoError(t, err)
			assert.Equal(t, "fox@example.com", rec.ValidatedEmail)

			history, err := app.Ledger.History(ctx, ani)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, domain.ConsentEmailSend, history[0].Type)
			assert.True(t, history[0].Granted)
		})
	}
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t, "postgres")
	_, err := casefile.New(cfg)
	assert.Error(t, err)
}

func TestVendors_UnconfiguredGatewayDegrades(t *testing.T) {
	app, err := casefile.New(testConfig(t, config.DriverMemory))
	require.NoError(t, err)
	defer app.Close()

	start, err := app.Engine.StartCall(context.Background(), "call-2", ani)
	require.NoError(t, err)
	assert.Equal(t, domain.StepGreeting, start.Step)
	assert.Empty(t, start.File.OwnerName)
}

func TestPrune(t *testing.T) {
	app, err := casefile.New(testConfig(t, config.DriverMemory), casefile.WithGateway(fakeGateway()))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	_, err = app.Engine.StartCall(ctx, "call-3", ani)
	require.NoError(t, err)

	pruned, err := app.Prune(ctx)
	require.NoError(t, err)
	assert.Empty(t, pruned, "live calls are kept")
}

func TestPolicyFromAndLockTTL(t *testing.T) {
	e := config.Default().Engine
	e.DisableSMS = true

	p := casefile.PolicyFrom(e)
	assert.False(t, p.SMSEnabled)
	assert.True(t, p.AddressEnabled)
	assert.Equal(t, 3, p.SpellingFailures)

	assert.Greater(t, casefile.LockTTL(e), e.SMSWait)
	assert.Greater(t, casefile.CacheLockTTL(e), 3*e.GatewayTimeout)
}

// slowPhone stretches every reverse-phone lookup so concurrent refreshes overlap.
type slowPhone struct {
	*gatewaytest.Fake
	calls *atomic.Int32
}

func (s slowPhone) ReversePhone(ctx context.Context, ani string) (domain.ReversePhoneResult, error) {
	s.calls.Add(1)
	time.Sleep(300 * time.Millisecond)
	return s.Fake.ReversePhone(ctx, ani)
}

func TestNew_RedisReplicasRefreshCallerOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	var calls atomic.Int32
	replica := func() *casefile.App {
		cfg := testConfig(t, config.DriverRedis)
		cfg.Storage.RedisAddr = mr.Addr()
		app, err := casefile.New(cfg, casefile.WithGateway(slowPhone{Fake: fakeGateway(), calls: &calls}))
		require.NoError(t, err)
		t.Cleanup(func() { app.Close() })
		return app
	}
	apps := []*casefile.App{replica(), replica()}

	var wg sync.WaitGroup
	for _, app := range apps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, _, err := app.Cache.Prepare(ctx, ani)
			assert.NoError(t, err)
			assert.Equal(t, "Fox Mulder", rec.OwnerName)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "the second replica waits and reuses the fresh record")
	rec, err := apps[1].Callers().Get(ctx, ani)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
}

func TestParseInvocation(t *testing.T) {
	tool, args, err := casefile.ParseInvocation(`submit_spelled_email email="fox at example dot com"`)
	require.NoError(t, err)
	assert.Equal(t, domain.ToolSubmitSpelledEmail, tool)
	assert.Equal(t, map[string]any{"email": "fox at example dot com"}, args)

	_, _, err = casefile.ParseInvocation("dance")
	assert.ErrorIs(t, err, domain.ErrUnknownTool)

	_, _, err = casefile.ParseInvocation("confirm_identity yes")
	assert.Error(t, err)

	_, _, err = casefile.ParseInvocation(`confirm_identity confirmed="true`)
	assert.Error(t, err)
}

func TestRunner_ScriptedCall(t *testing.T) {
	app, err := casefile.New(testConfig(t, config.DriverMemory), casefile.WithGateway(fakeGateway()))
	require.NoError(t, err)
	defer app.Close()

	script := strings.Join([]string{
		"confirm_identity confirmed=true",
		"dance",
		"process_email_confirmation confirmed=true",
		"validate_email",
		"process_email_consent consented=false",
		"process_address_confirmation response=confirmed",
		"validate_address",
	}, "\n") + "\n"

	var out bytes.Buffer
	r := casefile.NewRunner()
	r.Input = strings.NewReader(script)
	r.Output = &out

	ctx := context.Background()
	payload, err := r.Run(ctx, app, "call-4", ani)
	require.NoError(t, err)
	assert.Equal(t, "call-4", payload.CallID)
	assert.Contains(t, out.String(), "Fox Mulder")
	assert.Contains(t, out.String(), "error:")

	history, err := app.Ledger.History(ctx, ani)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Granted)
}

func TestRunner_RequiresIO(t *testing.T) {
	_, err := casefile.NewRunner().Run(context.Background(), nil, "call-5", ani)
	assert.Error(t, err)
}

func TestNew_EncryptsAndRedacts(t *testing.T) {
	cfg := testConfig(t, config.DriverSQLite)
	cfg.Storage.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cfg.Storage.RedactFields = middleware.DefaultPIIPatterns

	app, err := casefile.New(cfg, casefile.WithGateway(fakeGateway()))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	_, err = app.Engine.StartCall(ctx, "call-6", ani)
	require.NoError(t, err)

	sc, err := app.Sessions.Load(ctx, "call-6")
	require.NoError(t, err)
	assert.Equal(t, ani, sc.ANI)

	_, err = app.Engine.Hangup(ctx, "call-6")
	require.NoError(t, err)

	written, err := app.Sink.Read("call-6")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, written.ANI)
}

func TestNew_RejectsBadEncryptionKey(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	cfg.Storage.EncryptionKey = "c2hvcnQ="
	_, err := casefile.New(cfg)
	assert.ErrorIs(t, err, middleware.ErrKeySize)
}

package casefile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/casefile/internal/config"
	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/internal/runtime"
	"github.com/aretw0/casefile/pkg/adapters/file"
	"github.com/aretw0/casefile/pkg/adapters/logsink"
	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/adapters/redis"
	"github.com/aretw0/casefile/pkg/adapters/sqlite"
	"github.com/aretw0/casefile/pkg/adapters/vendor"
	"github.com/aretw0/casefile/pkg/consent"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/enrichment"
	"github.com/aretw0/casefile/pkg/gateway"
	"github.com/aretw0/casefile/pkg/keylock"
	"github.com/aretw0/casefile/pkg/observability"
	"github.com/aretw0/casefile/pkg/persistence/middleware"
	"github.com/aretw0/casefile/pkg/ports"
	"github.com/aretw0/casefile/pkg/recheck"
	"github.com/aretw0/casefile/pkg/session"
	"github.com/aretw0/casefile/pkg/smswait"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is the release version, set at build time via -ldflags.
var Version = "dev"

// lockMargin is added on top of the longest tool invocation (the SMS form
// wait plus the gateway calls around it) when sizing the call lock TTL.
const lockMargin = 30 * time.Second

// App is a fully wired casefile instance.
type App struct {
	Config   config.Config
	Engine   *runtime.Engine
	Sessions *session.Manager
	Cache    *enrichment.Cache
	Ledger   *consent.Ledger
	Gateway  *gateway.Instrumented
	Recheck  *recheck.Worker
	Sink     *file.Sink
	Metrics  *observability.Metrics
	Logger   *slog.Logger

	callers     ports.CallerStore
	redisLocker ports.DistributedLocker
	closers     []func() error
}

// Option configures New.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	gateway  ports.Gateway
	registry *prometheus.Registry
	hooks    domain.LifecycleHooks
	clock    func() time.Time
}

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithGateway replaces the vendor-backed gateway, e.g. with gatewaytest.Fake.
func WithGateway(gw ports.Gateway) Option {
	return func(o *options) {
		o.gateway = gw
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLifecycleHooks registers observability hooks on the engine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithClock injects the time source of the cache, ledger, worker and engine.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// New wires stores, gateway, cache, ledger, recheck worker and engine from cfg.
// Callers must Close the returned App.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if _, err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  o.logger,
		Metrics: observability.NewMetrics(o.registry),
	}

	calls, consents, err := app.openStores()
	if err != nil {
		app.Close()
		return nil, err
	}
	if cfg.Storage.EncryptionKey != "" {
		keys, err := middleware.ParseKeys(cfg.Storage.EncryptionKey, cfg.Storage.FallbackKeys...)
		if err != nil {
			app.Close()
			return nil, err
		}
		seal, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			app.Close()
			return nil, err
		}
		calls = seal(calls)
	}

	next := o.gateway
	if next == nil {
		next = Vendors(cfg.Vendors)
	}
	app.Gateway = gateway.NewInstrumented(next,
		gateway.WithTimeout(cfg.Engine.GatewayTimeout),
		gateway.WithMetrics(app.Metrics),
		gateway.WithLogger(o.logger),
	)

	cacheOpts := []enrichment.Option{
		enrichment.WithTTLs(enrichment.TTLs{
			Address:  config.Days(cfg.Cache.TTLAddressDays),
			Email:    config.Days(cfg.Cache.TTLEmailDays),
			LineType: config.Days(cfg.Cache.TTLLineTypeDays),
		}),
		enrichment.WithClock(o.clock),
		enrichment.WithLogger(o.logger),
		enrichment.WithMetrics(app.Metrics),
	}
	if app.redisLocker != nil {
		cacheOpts = append(cacheOpts, enrichment.WithLocks(keylock.New(
			keylock.WithPrefix("caller:"),
			keylock.WithLocker(app.redisLocker),
			keylock.WithTTL(CacheLockTTL(cfg.Engine)),
			keylock.WithLogger(o.logger),
		)))
	}
	app.Cache = enrichment.New(app.callers, app.Gateway, cacheOpts...)

	app.Ledger = consent.NewLedger(consents,
		consent.WithClock(o.clock),
		consent.WithLogger(o.logger),
		consent.WithMetrics(app.Metrics),
	)

	app.Sink = file.NewSink(cfg.Storage.SinkDir)
	var sink ports.PostCallSink = logsink.New(o.logger, app.Sink)
	if len(cfg.Storage.RedactFields) > 0 {
		redact, err := middleware.NewPIIMiddleware(cfg.Storage.RedactFields)
		if err != nil {
			app.Close()
			return nil, err
		}
		sink = redact(sink)
	}

	app.Recheck = recheck.New(app.Gateway, app.Cache, sink,
		recheck.WithClock(o.clock),
		recheck.WithLogger(o.logger),
		recheck.WithMetrics(app.Metrics),
	)

	sessionOpts := []session.Option{
		session.WithLogger(o.logger),
		session.WithLockTTL(LockTTL(cfg.Engine)),
	}
	if app.redisLocker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(app.redisLocker))
	}
	app.Sessions = session.NewManager(calls, sessionOpts...)

	app.Engine = runtime.NewEngine(app.Sessions, app.Cache, app.Ledger, app.Gateway,
		runtime.WithPolicy(PolicyFrom(cfg.Engine)),
		runtime.WithSMSWait(cfg.Engine.SMSWait),
		runtime.WithFormURL(cfg.Server.FormURL),
		runtime.WithWaitRegistry(smswait.New(smswait.WithLogger(o.logger), smswait.WithMetrics(app.Metrics))),
		runtime.WithPostCallSink(sink),
		runtime.WithRecheckScheduler(app.Recheck),
		runtime.WithLifecycleHooks(o.hooks),
		runtime.WithClock(o.clock),
		runtime.WithLogger(o.logger),
		runtime.WithMetrics(app.Metrics),
	)
	return app, nil
}

func (a *App) openStores() (ports.CallStateStore, ports.ConsentStore, error) {
	st := a.Config.Storage
	switch st.Driver {
	case config.DriverMemory:
		a.callers = memory.NewCallerStore()
		return memory.NewCallStateStore(), memory.NewConsentStore(), nil

	case config.DriverSQLite:
		db, err := sqlite.Open(st.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.callers = db.Callers()
		return db.Calls(), db.Consent(), nil

	case config.DriverFile:
		db, err := sqlite.Open(st.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.callers = db.Callers()
		return file.New(st.StateDir), db.Consent(), nil

	case config.DriverRedis:
		db, err := sqlite.Open(st.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)

		client := redis.Dial(st.RedisAddr, st.RedisPassword, st.RedisDB)
		a.closers = append(a.closers, client.Close)
		a.callers = redis.NewCallerStore(client)
		a.redisLocker = redis.NewLocker(client, redis.DefaultPrefix)
		return redis.NewCallStateStore(client, redis.WithTTL(st.Retention)), db.Consent(), nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", st.Driver)
}

// Callers exposes the caller store for inspection commands.
func (a *App) Callers() ports.CallerStore {
	return a.callers
}

// Prune removes call state older than the configured retention.
func (a *App) Prune(ctx context.Context) ([]string, error) {
	return a.Sessions.Prune(ctx, time.Now(), a.Config.Storage.Retention)
}

// Close releases databases and connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Vendors builds the gateway out of the configured vendor clients. A client
// without credentials answers ports.ErrNotConfigured, which the engine treats
// as an unknown result.
func Vendors(v config.VendorConfig) *gateway.Composite {
	var trestleOpts, zbOpts []vendor.Option
	if v.TrestleBaseURL != "" {
		trestleOpts = append(trestleOpts, vendor.WithBaseURL(v.TrestleBaseURL))
	}
	if v.ZeroBounceBaseURL != "" {
		zbOpts = append(zbOpts, vendor.WithBaseURL(v.ZeroBounceBaseURL))
	}
	trestle := vendor.NewTrestle(v.TrestleAPIKey, trestleOpts...)
	return &gateway.Composite{
		Phone:      trestle,
		Correlator: trestle,
		Geo:        vendor.NewGoogleGeocoder(v.GoogleMapsAPIKey),
		DPV:        vendor.NewSmarty(v.SmartyAuthID, v.SmartyAuthToken),
		Email:      vendor.NewZeroBounce(v.ZeroBounceAPIKey, zbOpts...),
		SMS:        vendor.NewSignalWire(v.SignalWireProjectID, v.SignalWireToken, v.SignalWireSpace, v.SignalWirePhone),
		Mail:       vendor.NewPostmark(v.PostmarkServerToken, v.PostmarkFromEmail),
	}
}

// PolicyFrom maps engine settings to the call-flow policy.
func PolicyFrom(e config.EngineConfig) runtime.Policy {
	return runtime.Policy{
		SpellingFailures: e.SpellingFailures,
		EmailInvalid:     e.EmailInvalid,
		AddressInvalid:   e.AddressInvalid,
		SMSEnabled:       !e.DisableSMS,
		AddressEnabled:   !e.DisableAddress,
	}
}

// LockTTL is the call lock lifetime: the SMS form wait and the gateway calls
// that can surround it, plus a margin.
func LockTTL(e config.EngineConfig) time.Duration {
	return e.SMSWait + 4*e.GatewayTimeout + lockMargin
}

// CacheLockTTL is the per-ANI lock lifetime of a cache refresh: one reverse
// phone lookup, one geocode and one deliverability check, plus a margin.
func CacheLockTTL(e config.EngineConfig) time.Duration {
	return 4*e.GatewayTimeout + lockMargin
}

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/observability"
	"github.com/aretw0/casefile/pkg/ports"
)

// DefaultTimeout bounds every gateway call.
const DefaultTimeout = 10 * time.Second

// Instrumented wraps a gateway with a per-call timeout, invocation counters
// and metrics. The counters are how the cache's zero-call contract is observed.
type Instrumented struct {
	next    ports.Gateway
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
	counts  map[ports.Capability]*atomic.Int64
}

var _ ports.Gateway = (*Instrumented)(nil)

// Option configures an Instrumented gateway.
type Option func(*Instrumented)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Instrumented) {
		g.timeout = d
	}
}

// WithMetrics records calls and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Instrumented) {
		g.metrics = m
	}
}

// WithLogger configures a logger for failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Instrumented) {
		g.logger = logger
	}
}

// NewInstrumented decorates next.
func NewInstrumented(next ports.Gateway, opts ...Option) *Instrumented {
	g := &Instrumented{
		next:    next,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
		counts:  make(map[ports.Capability]*atomic.Int64, len(ports.Capabilities)),
	}
	for _, c := range ports.Capabilities {
		g.counts[c] = new(atomic.Int64)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Calls returns how many times a capability was invoked.
func (g *Instrumented) Calls(c ports.Capability) int64 {
	if n, ok := g.counts[c]; ok {
		return n.Load()
	}
	return 0
}

// TotalCalls sums every capability counter.
func (g *Instrumented) TotalCalls() int64 {
	var total int64
	for _, n := range g.counts {
		total += n.Load()
	}
	return total
}

func (g *Instrumented) do(ctx context.Context, c ports.Capability, fn func(context.Context) error) error {
	g.counts[c].Add(1)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrNotConfigured):
		outcome = "not_configured"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	g.metrics.GatewayCalled(string(c), outcome, elapsed)

	if err != nil && outcome != "not_configured" {
		g.logger.Warn("Gateway call failed",
			"capability", c,
			"outcome", outcome,
			"duration", elapsed,
			"err", err,
		)
	}
	return err
}

func (g *Instrumented) ReversePhone(ctx context.Context, ani string) (res domain.ReversePhoneResult, err error) {
	err = g.do(ctx, ports.CapReversePhone, func(ctx context.Context) error {
		res, err = g.next.ReversePhone(ctx, ani)
		return err
	})
	return res, err
}

func (g *Instrumented) Geocode(ctx context.Context, address string) (res domain.GeocodeResult, err error) {
	err = g.do(ctx, ports.CapGeocode, func(ctx context.Context) error {
		res, err = g.next.Geocode(ctx, address)
		return err
	})
	return res, err
}

func (g *Instrumented) Deliverability(ctx context.Context, normalized string) (code string, err error) {
	err = g.do(ctx, ports.CapDeliverability, func(ctx context.Context) error {
		code, err = g.next.Deliverability(ctx, normalized)
		return err
	})
	return code, err
}

func (g *Instrumented) ValidateEmail(ctx context.Context, email string) (res domain.EmailValidation, err error) {
	err = g.do(ctx, ports.CapValidateEmail, func(ctx context.Context) error {
		res, err = g.next.ValidateEmail(ctx, email)
		return err
	})
	return res, err
}

func (g *Instrumented) SendSMS(ctx context.Context, to, link string) error {
	return g.do(ctx, ports.CapSendSMS, func(ctx context.Context) error {
		return g.next.SendSMS(ctx, to, link)
	})
}

func (g *Instrumented) SendEmail(ctx context.Context, to string, content domain.EmailContent) (id string, err error) {
	err = g.do(ctx, ports.CapSendEmail, func(ctx context.Context) error {
		id, err = g.next.SendEmail(ctx, to, content)
		return err
	})
	return id, err
}

func (g *Instrumented) CorrelateIdentity(ctx context.Context, email, address, ani string) (score float64, err error) {
	err = g.do(ctx, ports.CapCorrelateIdentity, func(ctx context.Context) error {
		score, err = g.next.CorrelateIdentity(ctx, email, address, ani)
		return err
	})
	return score, err
}

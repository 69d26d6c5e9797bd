// Package recheck re-validates, after the call, emails whose validation came
// back unknown during the call.
package recheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/gateway"
	"github.com/aretw0/casefile/pkg/observability"
	"github.com/aretw0/casefile/pkg/ports"
)

// DefaultQueueSize bounds pending re-checks.
const DefaultQueueSize = 256

// ErrQueueFull is returned by Schedule when the worker is saturated.
var ErrQueueFull = errors.New("recheck queue full")

// Upserter folds a validated email back into the caller record.
type Upserter interface {
	Upsert(ctx context.Context, ani string, patch domain.CallerPatch) (domain.CallerRecord, error)
}

// Worker consumes scheduled payloads one at a time.
type Worker struct {
	validator ports.EmailValidator
	cache     Upserter
	sink      ports.PostCallSink
	queue     chan domain.PostCallPayload
	now       func() time.Time
	logger    *slog.Logger
	metrics   *observability.Metrics
}

var _ ports.RecheckScheduler = (*Worker)(nil)

// Option configures the Worker.
type Option func(*Worker)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		w.queue = make(chan domain.PostCallPayload, n)
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithMetrics counts outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// New creates a worker. Run must be started for scheduled payloads to drain.
func New(validator ports.EmailValidator, cache Upserter, sink ports.PostCallSink, opts ...Option) *Worker {
	w := &Worker{
		validator: validator,
		cache:     cache,
		sink:      sink,
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.queue == nil {
		w.queue = make(chan domain.PostCallPayload, DefaultQueueSize)
	}
	return w
}

// Schedule queues payload without blocking.
func (w *Worker) Schedule(ctx context.Context, payload domain.PostCallPayload) error {
	select {
	case w.queue <- payload:
		w.logger.Info("Email recheck scheduled", "call_id", payload.CallID)
		return nil
	default:
		return fmt.Errorf("%w: call %s", ErrQueueFull, payload.CallID)
	}
}

// Pending reports queued payloads.
func (w *Worker) Pending() int {
	return len(w.queue)
}

// Run drains the queue until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Recheck worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Recheck worker stopped", "pending", len(w.queue))
			return nil
		case p := <-w.queue:
			if _, err := w.Process(ctx, p); err != nil {
				w.logger.Error("Recheck failed", "call_id", p.CallID, "err", err)
			}
		}
	}
}

// Process re-validates the payload's email once and writes the updated
// payload back to the sink.
func (w *Worker) Process(ctx context.Context, p domain.PostCallPayload) (domain.PostCallPayload, error) {
	email := p.WorkingEmail
	if email == "" {
		email = p.ValidatedEmail
	}
	out := p
	out.SessionContext = p.SessionContext.Clone()

	res, err := w.validator.ValidateEmail(ctx, email)
	status, sub := gateway.ClassifyEmail(res, err)
	out.RecheckStatus = status
	out.RecheckRequired = false
	w.metrics.Recheck(string(status))

	switch status {
	case domain.EmailValid:
		out.ValidatedEmail = email
		out.ZBStatus = domain.EmailValid
		out.ZBSubStatus = sub
		now := w.now()
		if _, err := w.cache.Upsert(ctx, p.ANI, domain.CallerPatch{
			ValidatedEmail:   domain.Ptr(email),
			EmailValidatedAt: domain.Ptr(now),
		}); err != nil {
			return out, fmt.Errorf("failed to store rechecked email: %w", err)
		}
	case domain.EmailInvalid:
		out.ValidatedEmail = ""
		out.ZBStatus = domain.EmailInvalid
		out.ZBSubStatus = sub
		flag(&out, domain.ReasonEmailValidationFailed)
	default:
		flag(&out, domain.ReasonEmailUnverified)
	}

	out.WrittenAt = w.now()
	if err := w.sink.Write(ctx, out); err != nil {
		return out, fmt.Errorf("failed to rewrite payload: %w", err)
	}
	w.logger.Info("Email rechecked",
		"call_id", p.CallID,
		"status", status,
		"sub_status", sub,
	)
	return out, nil
}

func flag(p *domain.PostCallPayload, reason domain.FollowUpReason) {
	p.FollowUpRequired = true
	if p.FollowUpReason == "" {
		p.FollowUpReason = reason
	}
}

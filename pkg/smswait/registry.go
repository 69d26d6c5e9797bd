// Package smswait correlates SMS form webhooks with the call that is blocked
// waiting for them. Each wait resolves exactly once, by delivery or by timeout.
package smswait

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/observability"
	"github.com/google/uuid"
)

// DefaultTimeout bounds how long a call waits for the form.
const DefaultTimeout = 120 * time.Second

// Result labels recorded for each resolved wait.
const (
	ResultDelivered = "delivered"
	ResultTimeout   = "timeout"
	ResultLate      = "late"
)

type wait struct {
	token     string
	ch        chan string
	cancel    chan struct{}
	delivered bool
	email     string
}

// Registry holds at most one active wait per call.
type Registry struct {
	mu      sync.Mutex
	waits   map[string]*wait
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics counts wait outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		waits:  make(map[string]*wait),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Arm opens a wait for callID and returns the correlation token to embed in
// the form link. Arming again replaces any previous wait for the call.
func (r *Registry) Arm(callID string) string {
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.waits[callID]; ok {
		close(old.cancel)
	}
	r.waits[callID] = &wait{token: token, ch: make(chan string, 1), cancel: make(chan struct{})}
	return token
}

// Cancel drops the wait for callID without resolving it. A goroutine blocked
// in Wait returns immediately with no email.
func (r *Registry) Cancel(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.waits[callID]; ok {
		close(w.cancel)
		delete(r.waits, callID)
	}
}

// Pending reports whether callID has an open wait.
func (r *Registry) Pending(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waits[callID]
	return ok
}

// Deliver resolves the wait for callID with email. It returns
// domain.ErrNoActiveWait when the call is not waiting, the token does not
// match, or the wait already resolved.
func (r *Registry) Deliver(callID, token, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waits[callID]
	if !ok || w.delivered || (token != "" && token != w.token) {
		r.logger.Warn("SMS form arrived with no active wait",
			"call_id", callID,
			"token_match", ok && token == w.token,
		)
		r.metrics.SMSWait(ResultLate)
		return fmt.Errorf("%w: %s", domain.ErrNoActiveWait, callID)
	}

	w.delivered = true
	w.email = email
	w.ch <- email
	return nil
}

// Wait blocks until the form arrives, the timeout elapses or ctx ends.
// It reports the delivered email and whether one arrived. After Wait returns
// the wait is closed and any later Deliver is refused.
func (r *Registry) Wait(ctx context.Context, callID string, timeout time.Duration) (string, bool) {
	r.mu.Lock()
	w, ok := r.waits[callID]
	r.mu.Unlock()
	if !ok {
		return "", false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case email := <-w.ch:
		r.close(callID, w)
		r.metrics.SMSWait(ResultDelivered)
		return email, true
	case <-timer.C:
	case <-w.cancel:
	case <-ctx.Done():
	}

	// A delivery may have landed between the timer firing and this point.
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.waits[callID]; ok && cur == w {
		delete(r.waits, callID)
	}
	if w.delivered {
		r.metrics.SMSWait(ResultDelivered)
		return w.email, true
	}
	w.delivered = true
	r.metrics.SMSWait(ResultTimeout)
	return "", false
}

func (r *Registry) close(callID string, w *wait) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.waits[callID]; ok && cur == w {
		delete(r.waits, callID)
	}
}

// Package consent implements the append-only consent ledger and the guard
// that refuses every SMS or email send without a granted row.
package consent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/observability"
	"github.com/aretw0/casefile/pkg/ports"
)

// Ledger records and answers consent decisions.
type Ledger struct {
	store   ports.ConsentStore
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithClock injects the time source used to stamp rows.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics counts decisions.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// NewLedger creates a ledger over store.
func NewLedger(store ports.ConsentStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one decision and returns the stored row with its timestamp.
func (l *Ledger) Record(ctx context.Context, ani, callID string, t domain.ConsentType, granted bool, snippet string) (domain.ConsentRecord, error) {
	if !t.Valid() {
		return domain.ConsentRecord{}, fmt.Errorf("unknown consent type %q", t)
	}
	if callID == "" {
		return domain.ConsentRecord{}, fmt.Errorf("consent requires a call id")
	}

	rec, err := l.store.Append(ctx, domain.ConsentRecord{
		ANI:               ani,
		CallID:            callID,
		Type:              t,
		Granted:           granted,
		TranscriptSnippet: snippet,
		Timestamp:         l.now().UTC(),
	})
	if err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("failed to record %s consent: %w", t, err)
	}

	l.metrics.ConsentDecision(string(t), granted)
	l.logger.Info("Consent recorded",
		"call_id", callID,
		"ani", ani,
		"type", t,
		"granted", granted,
	)
	return rec, nil
}

// Check returns nil only when a granted row exists for (ani, callID, t) and
// no later deny. Anything else, including a read failure, is a deny.
func (l *Ledger) Check(ctx context.Context, ani, callID string, t domain.ConsentType) error {
	rows, err := l.store.ByCall(ctx, callID)
	if err != nil {
		return fmt.Errorf("%w: ledger unavailable: %v", domain.ErrConsentNotGranted, err)
	}

	granted := false
	for _, r := range rows {
		if r.ANI != ani || r.Type != t {
			continue
		}
		granted = r.Granted
	}
	if !granted {
		return fmt.Errorf("%w: %s for call %s", domain.ErrConsentNotGranted, t, callID)
	}
	return nil
}

// Declined reports whether the call already holds a deny of type t.
func (l *Ledger) Declined(ctx context.Context, callID string, t domain.ConsentType) (bool, error) {
	rows, err := l.store.ByCall(ctx, callID)
	if err != nil {
		return false, fmt.Errorf("failed to read consent for call %s: %w", callID, err)
	}
	for _, r := range rows {
		if r.Type == t && !r.Granted {
			return true, nil
		}
	}
	return false, nil
}

// Latest returns the most recent decision of type t in the call, if any.
func (l *Ledger) Latest(ctx context.Context, callID string, t domain.ConsentType) (domain.ConsentRecord, bool, error) {
	rows, err := l.store.ByCall(ctx, callID)
	if err != nil {
		return domain.ConsentRecord{}, false, fmt.Errorf("failed to read consent for call %s: %w", callID, err)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Type == t {
			return rows[i], true, nil
		}
	}
	return domain.ConsentRecord{}, false, nil
}

// History returns every decision a caller ever made.
func (l *Ledger) History(ctx context.Context, ani string) ([]domain.ConsentRecord, error) {
	rows, err := l.store.ByANI(ctx, ani)
	if err != nil {
		return nil, fmt.Errorf("failed to read consent history: %w", err)
	}
	return rows, nil
}

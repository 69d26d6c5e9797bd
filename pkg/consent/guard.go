package consent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// Guard is the only path to the SMS and email senders. Every send checks the
// ledger first; without a granted row the send is refused and logged.
type Guard struct {
	ledger *Ledger
	sms    ports.SMSSender
	mail   ports.EmailSender
	logger *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardLogger configures the logger used for refusals.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// NewGuard wraps the senders.
func NewGuard(ledger *Ledger, sms ports.SMSSender, mail ports.EmailSender, opts ...GuardOption) *Guard {
	g := &Guard{
		ledger: ledger,
		sms:    sms,
		mail:   mail,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) permit(ctx context.Context, ani, callID string, t domain.ConsentType) error {
	if err := g.ledger.Check(ctx, ani, callID, t); err != nil {
		g.logger.Error("Consent violation: send refused",
			"call_id", callID,
			"ani", ani,
			"type", t,
			"err", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrConsentViolation, err)
	}
	return nil
}

// SendSMS texts link to the caller once SMS consent is on file for the call.
func (g *Guard) SendSMS(ctx context.Context, ani, callID, to, link string) error {
	if err := g.permit(ctx, ani, callID, domain.ConsentSMS); err != nil {
		return err
	}
	return g.sms.SendSMS(ctx, to, link)
}

// SendEmail sends the confirmation email once send consent is on file for the call.
func (g *Guard) SendEmail(ctx context.Context, ani, callID, to string, content domain.EmailContent) (string, error) {
	if err := g.permit(ctx, ani, callID, domain.ConsentEmailSend); err != nil {
		return "", err
	}
	return g.mail.SendEmail(ctx, to, content)
}

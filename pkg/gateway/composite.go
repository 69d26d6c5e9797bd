// Package gateway assembles the Validation Gateway from per-vendor adapters and
// decorates it with timeouts, invocation counting and metrics.
package gateway

import (
	"context"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// Composite builds a ports.Gateway out of independent capabilities.
// A nil capability answers ports.ErrNotConfigured.
type Composite struct {
	Phone      ports.ReversePhoneLookup
	Geo        ports.Geocoder
	DPV        ports.DeliverabilityChecker
	Email      ports.EmailValidator
	SMS        ports.SMSSender
	Mail       ports.EmailSender
	Correlator ports.IdentityCorrelator
}

var _ ports.Gateway = (*Composite)(nil)

func (c *Composite) ReversePhone(ctx context.Context, ani string) (domain.ReversePhoneResult, error) {
	if c.Phone == nil {
		return domain.ReversePhoneResult{}, ports.ErrNotConfigured
	}
	return c.Phone.ReversePhone(ctx, ani)
}

func (c *Composite) Geocode(ctx context.Context, address string) (domain.GeocodeResult, error) {
	if c.Geo == nil {
		return domain.GeocodeResult{}, ports.ErrNotConfigured
	}
	return c.Geo.Geocode(ctx, address)
}

func (c *Composite) Deliverability(ctx context.Context, normalized string) (string, error) {
	if c.DPV == nil {
		return "", ports.ErrNotConfigured
	}
	return c.DPV.Deliverability(ctx, normalized)
}

func (c *Composite) ValidateEmail(ctx context.Context, email string) (domain.EmailValidation, error) {
	if c.Email == nil {
		return domain.EmailValidation{}, ports.ErrNotConfigured
	}
	return c.Email.ValidateEmail(ctx, email)
}

func (c *Composite) SendSMS(ctx context.Context, to, link string) error {
	if c.SMS == nil {
		return ports.ErrNotConfigured
	}
	return c.SMS.SendSMS(ctx, to, link)
}

func (c *Composite) SendEmail(ctx context.Context, to string, content domain.EmailContent) (string, error) {
	if c.Mail == nil {
		return "", ports.ErrNotConfigured
	}
	return c.Mail.SendEmail(ctx, to, content)
}

func (c *Composite) CorrelateIdentity(ctx context.Context, email, address, ani string) (float64, error) {
	if c.Correlator == nil {
		return 0, ports.ErrNotConfigured
	}
	return c.Correlator.CorrelateIdentity(ctx, email, address, ani)
}

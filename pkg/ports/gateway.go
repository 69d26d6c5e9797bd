package ports

import (
	"context"
	"errors"

	"github.com/aretw0/casefile/pkg/domain"
)

// ErrNotConfigured is returned by an adapter whose vendor credentials are missing.
var ErrNotConfigured = errors.New("gateway capability not configured")

// Capability names one external validator operation.
type Capability string

const (
	CapReversePhone      Capability = "reverse_phone"
	CapGeocode           Capability = "geocode"
	CapDeliverability    Capability = "deliverability"
	CapValidateEmail     Capability = "validate_email"
	CapSendSMS           Capability = "send_sms"
	CapSendEmail         Capability = "send_email"
	CapCorrelateIdentity Capability = "correlate_identity"
)

// Capabilities lists every gateway capability.
var Capabilities = []Capability{
	CapReversePhone,
	CapGeocode,
	CapDeliverability,
	CapValidateEmail,
	CapSendSMS,
	CapSendEmail,
	CapCorrelateIdentity,
}

// ReversePhoneLookup resolves name, email, address and line type from an ANI.
type ReversePhoneLookup interface {
	ReversePhone(ctx context.Context, ani string) (domain.ReversePhoneResult, error)
}

// Geocoder normalizes free-text addresses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.GeocodeResult, error)
}

// DeliverabilityChecker returns the USPS DPV match code for a normalized address.
type DeliverabilityChecker interface {
	Deliverability(ctx context.Context, normalized string) (string, error)
}

// EmailValidator classifies an email address.
type EmailValidator interface {
	ValidateEmail(ctx context.Context, email string) (domain.EmailValidation, error)
}

// SMSSender delivers a text message carrying a link.
type SMSSender interface {
	SendSMS(ctx context.Context, to, link string) error
}

// EmailSender delivers a confirmation email and returns the vendor message ID.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, content domain.EmailContent) (string, error)
}

// IdentityCorrelator scores how well an email and address belong to the ANI owner.
type IdentityCorrelator interface {
	CorrelateIdentity(ctx context.Context, email, address, ani string) (float64, error)
}

// Gateway is the full Validation Gateway. Every method is a single attempt
// with no internal retry; outcome classification belongs to the caller.
type Gateway interface {
	ReversePhoneLookup
	Geocoder
	DeliverabilityChecker
	EmailValidator
	SMSSender
	EmailSender
	IdentityCorrelator
}

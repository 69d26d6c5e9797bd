// Package gatewaytest provides a scripted in-memory Validation Gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// SentSMS records one SMS handed to the fake.
type SentSMS struct {
	To   string
	Link string
}

// SentEmail records one email handed to the fake.
type SentEmail struct {
	To      string
	Content domain.EmailContent
}

// Fake answers every capability from its fields. EmailReplies, when set, is
// consumed in order and its last entry repeats.
type Fake struct {
	mu sync.Mutex

	Phone    domain.ReversePhoneResult
	PhoneErr error

	Geo    domain.GeocodeResult
	GeoErr error

	DPV    string
	DPVErr error

	EmailReplies []EmailReply
	Email        domain.EmailValidation
	EmailErr     error

	SMSErr    error
	MessageID string
	MailErr   error

	Score    float64
	ScoreErr error

	SMS    []SentSMS
	Emails []SentEmail

	// OnSMS runs after a successful SendSMS, outside the fake's lock.
	OnSMS func(to, link string)

	calls map[ports.Capability]int
}

// EmailReply is one scripted ValidateEmail answer.
type EmailReply struct {
	Result domain.EmailValidation
	Err    error
}

var _ ports.Gateway = (*Fake)(nil)

// New returns a fake whose validators all succeed.
func New() *Fake {
	return &Fake{
		Phone:     domain.ReversePhoneResult{LineType: domain.LineTypeMobile},
		Geo:       domain.GeocodeResult{Confidence: "ROOFTOP"},
		DPV:       domain.DPVDeliverable,
		Email:     domain.EmailValidation{Status: domain.EmailValid},
		MessageID: "msg-1",
		Score:     0.9,
	}
}

func (f *Fake) hit(c ports.Capability) {
	if f.calls == nil {
		f.calls = make(map[ports.Capability]int)
	}
	f.calls[c]++
}

// Calls returns the invocation count of a capability.
func (f *Fake) Calls(c ports.Capability) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[c]
}

// TotalCalls sums every capability.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *Fake) ReversePhone(ctx context.Context, ani string) (domain.ReversePhoneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit(ports.CapReversePhone)
	return f.Phone, f.PhoneErr
}

func (f *Fake) Geocode(ctx context.Context, address string) (domain.GeocodeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit(ports.CapGeocode)
	if f.GeoErr != nil {
		return domain.GeocodeResult{}, f.GeoErr
	}
	res := f.Geo
	if res.Normalized == "" {
		res.Normalized = address
	}
	return res, nil
}

func (f *Fake) Deliverability(ctx context.Context, normalized string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit(ports.CapDeliverability)
	return f.DPV, f.DPVErr
}

func (f *Fake) ValidateEmail(ctx context.Context, email string) (domain.EmailValidation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit(ports.CapValidateEmail)
	if len(f.EmailReplies) > 0 {
		r := f.EmailReplies[0]
		if len(f.EmailReplies) > 1 {
			f.EmailReplies = f.EmailReplies[1:]
		}
		return r.Result, r.Err
	}
	return f.Email, f.EmailErr
}

func (f *Fake) SendSMS(ctx context.Context, to, link string) error {
	f.mu.Lock()
	f.hit(ports.CapSendSMS)
	if f.SMSErr != nil {
		f.mu.Unlock()
		return f.SMSErr
	}
	f.SMS = append(f.SMS, SentSMS{To: to, Link: link})
	hook := f.OnSMS
	f.mu.Unlock()

	if hook != nil {
		hook(to, link)
	}
	return nil
}

func (f *Fake) SendEmail(ctx context.Context, to string, content domain.EmailContent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit(ports.CapSendEmail)
	if f.MailErr != nil {
		return "", f.MailErr
	}
	f.Emails = append(f.Emails, SentEmail{To: to, Content: content})
	return f.MessageID, nil
}

func (f *Fake) CorrelateIdentity(ctx context.Context, email, address, ani string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit(ports.CapCorrelateIdentity)
	return f.Score, f.ScoreErr
}

// SentSMSCount returns how many texts went out.
func (f *Fake) SentSMSCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.SMS)
}

// SentEmailCount returns how many emails went out.
func (f *Fake) SentEmailCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Emails)
}

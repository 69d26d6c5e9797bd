package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/casefile/pkg/domain"
)

// EmailCheck is the classified validator reply for validate_email.
type EmailCheck struct {
	Status    domain.EmailStatus
	SubStatus string
}

// AddressCheck is the classified geocode and deliverability result.
// Outcome is hard failure only for an undeliverable DPV code.
type AddressCheck struct {
	Outcome    domain.GatewayOutcome
	Normalized string
	DPV        string
	Confidence string
	Lat        float64
	Lng        float64
}

// Input is everything Transition needs: the decoded answer plus the results
// of any I/O the engine ran for this tool.
type Input struct {
	Tool   domain.Tool
	Answer any
	Now    time.Time

	// Consent is the decision recorded for a consent step. Nil means the
	// step was skipped because the call already holds a decision.
	Consent *domain.Decision

	Email         EmailCheck
	IdentityScore *float64
	Address       AddressCheck

	SMSSent   bool
	FormEmail string
	FormOK    bool

	MessageID string
}

// Outcome tells the conversational layer where the call went and what to say.
type Outcome struct {
	Step     domain.Step `json:"step"`
	Message  string      `json:"message"`
	Readback string      `json:"readback,omitempty"`
}

// move is one step decision. retry marks a failure self-loop, which counts as
// a visit; a plain stay (readback) does not.
type move struct {
	to       domain.Step
	retry    bool
	msg      string
	readback string
}

func stay(c *domain.SessionContext, msg string) move {
	return move{to: c.Step, msg: msg}
}

// Transition decides the next step for one tool invocation. It performs no
// I/O and never mutates c; on error c is returned unchanged.
func Transition(c domain.SessionContext, in Input, policy Policy) (domain.SessionContext, Outcome, error) {
	if c.Terminated() {
		return c, Outcome{}, fmt.Errorf("%w: %s", domain.ErrCallTerminated, c.CallID)
	}
	if !c.Step.Accepts(in.Tool) {
		return c, Outcome{}, fmt.Errorf("%w: %s at %s", domain.ErrToolNotAllowed, in.Tool, c.Step)
	}
	policy = policy.withDefaults()

	next := c.Clone()
	if next.AttemptCounts == nil {
		next.AttemptCounts = make(map[domain.Step]int)
	}

	var m move
	var err error
	if in.Tool == domain.ToolScheduleFollowUp {
		m, err = scheduleFollowUp(&next, in)
	} else {
		m, err = step(&next, in, policy)
	}
	if err != nil {
		return c, Outcome{}, err
	}

	if m.to != c.Step || m.retry {
		if !c.Step.CanMove(m.to) {
			return c, Outcome{}, fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, c.Step, m.to)
		}
		next.History = append(next.History, m.to)
	}
	next.Step = m.to
	return next, Outcome{Step: m.to, Message: m.msg, Readback: m.readback}, nil
}

func step(c *domain.SessionContext, in Input, p Policy) (move, error) {
	switch c.Step {
	case domain.StepGreeting:
		a, err := answer[domain.IdentityAnswer](in)
		if err != nil {
			return move{}, err
		}
		return greeting(c, a), nil
	case domain.StepEmailConfirm:
		a, err := answer[domain.ConfirmAnswer](in)
		if err != nil {
			return move{}, err
		}
		return emailConfirm(c, a), nil
	case domain.StepEmailCollection:
		return emailCollection(c, p), nil
	case domain.StepSMSConsent:
		a, err := answer[domain.ConsentAnswer](in)
		if err != nil {
			return move{}, err
		}
		return smsConsent(c, a, in), nil
	case domain.StepSMSWait:
		return smsWait(c, in), nil
	case domain.StepVoiceSpelling:
		a, err := answer[domain.SpelledEmailAnswer](in)
		if err != nil {
			return move{}, err
		}
		return voiceSpelling(c, a, p), nil
	case domain.StepEmailValidation:
		return emailValidation(c, in, p), nil
	case domain.StepEmailSendConsent:
		a, err := answer[domain.ConsentAnswer](in)
		if err != nil {
			return move{}, err
		}
		return emailSendConsent(c, a, in, p), nil
	case domain.StepAddressConfirm:
		a, err := answer[domain.AddressConfirmAnswer](in)
		if err != nil {
			return move{}, err
		}
		return addressConfirm(c, a), nil
	case domain.StepAddressCollection:
		a, err := answer[domain.SubmittedAddressAnswer](in)
		if err != nil {
			return move{}, err
		}
		return addressCollection(c, a, in), nil
	case domain.StepAddressValidation:
		return addressValidation(c, in, p), nil
	case domain.StepWrapUp:
		return move{}, domain.ErrCallTerminated
	}
	return move{}, fmt.Errorf("%w: unknown step %q", domain.ErrIllegalTransition, c.Step)
}

func answer[T any](in Input) (T, error) {
	a, ok := in.Answer.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s expects %T, got %T", domain.ErrInvalidAnswer, in.Tool, zero, in.Answer)
	}
	return a, nil
}

func greeting(c *domain.SessionContext, a domain.IdentityAnswer) move {
	msg := msgIdentityConfirmed
	if a.Confirmed {
		c.IdentityConfirmed = true
	} else {
		c.IdentityMismatchFlag = true
		if name := strings.TrimSpace(a.CallerName); name != "" {
			c.OwnerName = name
		}
		msg = msgIdentityMismatch
	}
	if c.CandidateEmail != "" {
		return move{to: domain.StepEmailConfirm, msg: msg}
	}
	return move{to: domain.StepEmailCollection, msg: msg}
}

func emailConfirm(c *domain.SessionContext, a domain.ConfirmAnswer) move {
	if a.Confirmed && c.CandidateEmail != "" {
		c.WorkingEmail = c.CandidateEmail
		c.EmailSource = domain.EmailFromTrestle
		return move{to: domain.StepEmailValidation, msg: msgEmailAccepted}
	}
	c.CandidateEmail = ""
	return move{to: domain.StepEmailCollection, msg: msgEmailRejected}
}

func emailCollection(c *domain.SessionContext, p Policy) move {
	smsDenied := c.SMSConsent != nil && !c.SMSConsent.Granted
	if p.SMSEnabled && c.SMSEligible && !c.SMSOffered && !smsDenied {
		return move{to: domain.StepSMSConsent, msg: msgOfferSMS}
	}
	return move{to: domain.StepVoiceSpelling, msg: msgVoiceSpelling}
}

func decision(in Input, granted bool) *domain.Decision {
	if in.Consent != nil {
		d := *in.Consent
		return &d
	}
	return &domain.Decision{Granted: granted, At: in.Now}
}

func smsConsent(c *domain.SessionContext, a domain.ConsentAnswer, in Input) move {
	c.SMSOffered = true
	c.SMSConsent = decision(in, a.Consented)
	switch {
	case !c.SMSConsent.Granted:
		return move{to: domain.StepVoiceSpelling, msg: msgSMSDeclined}
	case !in.SMSSent:
		return move{to: domain.StepVoiceSpelling, msg: msgSMSFailed}
	}
	return move{to: domain.StepSMSWait, msg: msgSMSSent}
}

func smsWait(c *domain.SessionContext, in Input) move {
	email := strings.ToLower(strings.TrimSpace(in.FormEmail))
	if !in.FormOK || !WellFormedEmail(email) {
		return move{to: domain.StepVoiceSpelling, msg: msgFormTimeout}
	}
	c.WorkingEmail = email
	c.EmailSource = domain.EmailFromSMSForm
	return move{to: domain.StepEmailValidation, msg: msgFormArrived}
}

func voiceSpelling(c *domain.SessionContext, a domain.SpelledEmailAnswer, p Policy) move {
	email := NormalizeSpokenEmail(a.Email)
	if email == "" && a.Confirmed != nil {
		email = c.PendingEmail
	}

	if !WellFormedEmail(email) {
		got := email
		if strings.Contains(email, "@") {
			got = NATOSpell(email)
		}
		return spellingFailure(c, p, msgEmailMalformed(got))
	}

	switch {
	case a.Confirmed == nil:
		c.PendingEmail = email
		spelled := NATOSpell(email)
		m := stay(c, msgEmailReadback(spelled))
		m.readback = spelled
		return m
	case !*a.Confirmed:
		c.PendingEmail = ""
		return spellingFailure(c, p, msgSpellRejected)
	}

	c.PendingEmail = ""
	c.WorkingEmail = email
	c.EmailSource = domain.EmailFromCaller
	return move{to: domain.StepEmailValidation, msg: msgSpellConfirmed}
}

func spellingFailure(c *domain.SessionContext, p Policy, msg string) move {
	c.AttemptCounts[domain.StepVoiceSpelling]++
	if c.AttemptCounts[domain.StepVoiceSpelling] >= p.SpellingFailures {
		followUp(c, domain.ReasonSpellingFailure)
		return move{to: domain.StepWrapUp, msg: msgSpellExhausted}
	}
	return move{to: domain.StepVoiceSpelling, retry: true, msg: msg}
}

func emailValidation(c *domain.SessionContext, in Input, p Policy) move {
	if c.WorkingEmail == "" {
		return move{to: domain.StepEmailCollection, msg: msgNoEmail}
	}
	if in.IdentityScore != nil {
		s := *in.IdentityScore
		c.IdentityScore = &s
	}
	c.ZBStatus = in.Email.Status
	c.ZBSubStatus = in.Email.SubStatus

	switch in.Email.Status {
	case domain.EmailValid:
		c.ValidatedEmail = c.WorkingEmail
		return move{to: domain.StepEmailSendConsent, msg: msgEmailValid}
	case domain.EmailInvalid:
		c.AttemptCounts[domain.StepEmailValidation]++
		if c.AttemptCounts[domain.StepEmailValidation] >= p.EmailInvalid {
			followUp(c, domain.ReasonEmailValidationFailed)
			return move{to: domain.StepWrapUp, msg: msgEmailInvalidLast}
		}
		c.WorkingEmail = ""
		c.EmailSource = ""
		return move{to: domain.StepEmailCollection, msg: msgEmailInvalid}
	}

	// Anything we could not classify proceeds and is re-checked after the call.
	c.ZBStatus = domain.EmailUnknown
	c.RecheckRequired = true
	return move{to: domain.StepEmailSendConsent, msg: msgEmailUnknown}
}

func emailSendConsent(c *domain.SessionContext, a domain.ConsentAnswer, in Input, p Policy) move {
	msg := msgSendConsentDenied
	if c.EmailConsent == nil {
		c.EmailConsent = decision(in, a.Consented)
	}
	if in.MessageID != "" {
		c.PostmarkMessageID = in.MessageID
	}
	if c.EmailConsent.Granted {
		msg = msgSendConsentGranted
		if c.PostmarkMessageID != "" {
			msg = msgSendConsentSent
		}
	}

	switch {
	case !p.AddressEnabled:
		return move{to: domain.StepWrapUp, msg: msg}
	case c.CandidateAddress != "":
		return move{to: domain.StepAddressConfirm, msg: msg}
	}
	return move{to: domain.StepAddressCollection, msg: msg}
}

func addressConfirm(c *domain.SessionContext, a domain.AddressConfirmAnswer) move {
	switch a.Response {
	case domain.AddressConfirmed:
		if c.CandidateAddress == "" {
			return move{to: domain.StepAddressCollection, msg: msgAddressDenied}
		}
		c.WorkingAddress = c.CandidateAddress
		c.AddressSource = domain.AddressOnFile
		return move{to: domain.StepAddressValidation, msg: msgAddressConfirmed}
	case domain.AddressDenied:
		return move{to: domain.StepAddressCollection, msg: msgAddressDenied}
	}
	return move{to: domain.StepWrapUp, msg: msgAddressDeclined}
}

func addressCollection(c *domain.SessionContext, a domain.SubmittedAddressAnswer, in Input) move {
	raw := strings.TrimSpace(a.Address)
	if raw == "" && a.Confirmed {
		raw = c.PendingAddress
	}
	if raw == "" {
		return stay(c, msgNoAddress)
	}

	normalized := raw
	c.GeocodeConfidence, c.GeocodeLat, c.GeocodeLng = "", 0, 0
	if in.Address.Outcome == domain.OutcomeSuccess && in.Address.Normalized != "" {
		normalized = in.Address.Normalized
		c.GeocodeConfidence = in.Address.Confidence
		c.GeocodeLat = in.Address.Lat
		c.GeocodeLng = in.Address.Lng
	}

	if !a.Confirmed {
		c.PendingAddress = normalized
		m := stay(c, msgAddressReadback(normalized))
		m.readback = normalized
		return m
	}

	c.PendingAddress = ""
	c.WorkingAddress = normalized
	c.AddressSource = domain.AddressFromVoice
	return move{to: domain.StepAddressValidation, msg: msgAddressCollected}
}

func addressValidation(c *domain.SessionContext, in Input, p Policy) move {
	r := in.Address
	switch r.Outcome {
	case domain.OutcomeHardFailure:
		c.DPVMatchCode = r.DPV
		c.AddressValidationStatus = "invalid"
		c.AttemptCounts[domain.StepAddressValidation]++
		if c.AttemptCounts[domain.StepAddressValidation] >= p.AddressInvalid {
			followUp(c, domain.ReasonAddressValidationFailed)
			return move{to: domain.StepWrapUp, msg: msgAddressInvalidLast}
		}
		c.WorkingAddress = ""
		c.GeocodeConfidence, c.GeocodeLat, c.GeocodeLng = "", 0, 0
		return move{to: domain.StepAddressCollection, msg: msgAddressInvalid}
	case domain.OutcomeSuccess:
		c.ValidatedAddress = c.WorkingAddress
		if r.Normalized != "" {
			c.ValidatedAddress = r.Normalized
		}
		c.DPVMatchCode = r.DPV
		c.AddressValidationStatus = "valid"
		if r.Confidence != "" {
			c.GeocodeConfidence = r.Confidence
			c.GeocodeLat = r.Lat
			c.GeocodeLng = r.Lng
		}
		return move{to: domain.StepWrapUp, msg: msgAddressValid}
	}

	// Gateway trouble never blocks the caller; the raw address is kept.
	c.ValidatedAddress = c.WorkingAddress
	c.AddressValidationStatus = "unverified"
	if r.Confidence != "" {
		c.GeocodeConfidence = r.Confidence
		c.GeocodeLat = r.Lat
		c.GeocodeLng = r.Lng
	}
	return move{to: domain.StepWrapUp, msg: msgAddressNoted}
}

func scheduleFollowUp(c *domain.SessionContext, in Input) (move, error) {
	a, err := answer[domain.FollowUpAnswer](in)
	if err != nil {
		return move{}, err
	}
	reason := domain.ReasonOther
	if s := strings.TrimSpace(a.Reason); s != "" {
		r, ok := domain.ParseFollowUpReason(s)
		if !ok {
			return move{}, fmt.Errorf("%w: follow-up reason %q", domain.ErrInvalidAnswer, s)
		}
		reason = r
	}
	c.FollowUpRequired = true
	c.FollowUpReason = reason
	return move{to: domain.StepWrapUp, msg: msgFollowUp(reason)}, nil
}

func followUp(c *domain.SessionContext, reason domain.FollowUpReason) {
	c.FollowUpRequired = true
	c.FollowUpReason = reason
}

// Finish closes the call at hangup. A call that hangs up before wrap_up is
// moved there and flagged for follow-up with the first thing it is missing.
// Finishing an ended call is a no-op.
func Finish(c domain.SessionContext, policy Policy, now time.Time) domain.SessionContext {
	if c.EndedAt != nil {
		return c
	}
	next := c.Clone()
	if !next.Terminated() {
		next.History = append(next.History, domain.StepWrapUp)
		next.Step = domain.StepWrapUp
		switch {
		case next.ValidatedEmail == "" && !next.RecheckRequired:
			followUp(&next, domain.ReasonEmailNotCaptured)
		case policy.AddressEnabled && next.ValidatedAddress == "":
			followUp(&next, domain.ReasonAddressNotCaptured)
		default:
			followUp(&next, domain.ReasonOther)
		}
	}
	ended := now
	next.EndedAt = &ended
	return next
}

package domain

import "time"

// EmailSource tells where the working email came from.
type EmailSource string

const (
	EmailFromTrestle EmailSource = "trestle-confirmed"
	EmailFromCaller  EmailSource = "caller-provided"
	EmailFromSMSForm EmailSource = "sms-form"
)

// AddressSource tells where the working address came from.
type AddressSource string

const (
	AddressOnFile    AddressSource = "confirmed-on-file"
	AddressFromVoice AddressSource = "caller-provided"
)

// FollowUpReason explains why a call ended with follow_up_required.
type FollowUpReason string

const (
	ReasonSpellingFailure         FollowUpReason = "spelling_failure"
	ReasonEmailValidationFailed   FollowUpReason = "email_validation_failed"
	ReasonEmailUnverified         FollowUpReason = "email_unverified"
	ReasonEmailNotCaptured        FollowUpReason = "email_not_captured"
	ReasonAddressNotCaptured      FollowUpReason = "address_not_captured"
	ReasonAddressValidationFailed FollowUpReason = "address_validation_failed"
	ReasonCallerRefused           FollowUpReason = "caller_refused"
	ReasonOther                   FollowUpReason = "other"
)

// ParseFollowUpReason validates a reason supplied by schedule_followup.
func ParseFollowUpReason(s string) (FollowUpReason, bool) {
	switch r := FollowUpReason(s); r {
	case ReasonSpellingFailure, ReasonEmailValidationFailed, ReasonEmailUnverified,
		ReasonEmailNotCaptured, ReasonAddressNotCaptured, ReasonAddressValidationFailed,
		ReasonCallerRefused, ReasonOther:
		return r, true
	}
	return "", false
}

// Decision is a recorded yes/no with the time it was stored.
type Decision struct {
	Granted bool      `json:"granted"`
	At      time.Time `json:"at"`
}

// SessionContext is the transient per-call record threaded through every step.
// It is owned by one call and replaced, never mutated in place, on each transition.
type SessionContext struct {
	CallID string `json:"call_id"`
	ANI    string `json:"ani"`
	Step   Step   `json:"step"`

	// History tracks every step visited, including retries.
	History       []Step       `json:"history"`
	AttemptCounts map[Step]int `json:"attempt_counts"`

	OwnerName        string       `json:"owner_name,omitempty"`
	CandidateEmail   string       `json:"candidate_email,omitempty"`
	CandidateAddress string       `json:"candidate_address,omitempty"`
	LineType         string       `json:"line_type,omitempty"`
	RecordSource     RecordSource `json:"record_source,omitempty"`

	IdentityConfirmed    bool `json:"identity_confirmed"`
	IdentityMismatchFlag bool `json:"identity_mismatch_flag"`

	SMSEligible  bool      `json:"sms_eligible"`
	SMSOffered   bool      `json:"sms_offered"`
	SMSConsent   *Decision `json:"sms_consent,omitempty"`
	EmailConsent *Decision `json:"email_consent,omitempty"`

	PendingEmail   string      `json:"pending_email,omitempty"`
	WorkingEmail   string      `json:"working_email,omitempty"`
	ValidatedEmail string      `json:"validated_email,omitempty"`
	EmailSource    EmailSource `json:"email_source,omitempty"`
	ZBStatus       EmailStatus `json:"zb_status,omitempty"`
	ZBSubStatus    string      `json:"zb_sub_status,omitempty"`

	PendingAddress          string        `json:"pending_address,omitempty"`
	WorkingAddress          string        `json:"working_address,omitempty"`
	ValidatedAddress        string        `json:"validated_address,omitempty"`
	AddressSource           AddressSource `json:"address_source,omitempty"`
	AddressValidationStatus string        `json:"address_validation_status,omitempty"`
	DPVMatchCode            string        `json:"dpv_match_code,omitempty"`
	GeocodeConfidence       string        `json:"geocode_confidence,omitempty"`
	GeocodeLat              float64       `json:"geocode_lat,omitempty"`
	GeocodeLng              float64       `json:"geocode_lng,omitempty"`

	FollowUpRequired bool           `json:"follow_up_required"`
	FollowUpReason   FollowUpReason `json:"follow_up_reason,omitempty"`
	RecheckRequired  bool           `json:"recheck_required"`

	PostmarkMessageID string   `json:"postmark_message_id,omitempty"`
	IdentityScore     *float64 `json:"identity_score,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Sealed holds the encrypted context when call state is stored
	// encrypted. Only the envelope written to the store carries it.
	Sealed string `json:"sealed,omitempty"`
}

// NewSessionContext creates a clean context sitting at the greeting step.
func NewSessionContext(callID, ani string, now time.Time) SessionContext {
	return SessionContext{
		CallID:        callID,
		ANI:           ani,
		Step:          StepGreeting,
		History:       []Step{StepGreeting},
		AttemptCounts: make(map[Step]int),
		RecordSource:  SourceNew,
		CreatedAt:     now,
	}
}

// Clone returns a deep copy so a transition never aliases its input.
func (c SessionContext) Clone() SessionContext {
	out := c
	out.History = append([]Step(nil), c.History...)
	out.AttemptCounts = make(map[Step]int, len(c.AttemptCounts))
	for k, v := range c.AttemptCounts {
		out.AttemptCounts[k] = v
	}
	if c.SMSConsent != nil {
		d := *c.SMSConsent
		out.SMSConsent = &d
	}
	if c.EmailConsent != nil {
		d := *c.EmailConsent
		out.EmailConsent = &d
	}
	if c.IdentityScore != nil {
		s := *c.IdentityScore
		out.IdentityScore = &s
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Attempts returns the failure count recorded for a step.
func (c SessionContext) Attempts(s Step) int {
	return c.AttemptCounts[s]
}

// Visits counts how many times the call entered a step.
func (c SessionContext) Visits(s Step) int {
	n := 0
	for _, h := range c.History {
		if h == s {
			n++
		}
	}
	return n
}

// Terminated reports whether the call reached wrap_up.
func (c SessionContext) Terminated() bool {
	return c.Step.Terminal()
}

// ApplyCallerRecord seeds the context from the pre-call enrichment record.
func (c SessionContext) ApplyCallerRecord(rec CallerRecord, source RecordSource) SessionContext {
	out := c.Clone()
	out.OwnerName = rec.OwnerName
	out.CandidateEmail = rec.BestEmail()
	out.CandidateAddress = rec.BestAddress()
	out.LineType = rec.LineType
	out.SMSEligible = rec.SMSEligible()
	out.RecordSource = source
	return out
}

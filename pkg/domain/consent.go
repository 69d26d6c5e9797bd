package domain

import "time"

// ConsentType names a gated side effect.
type ConsentType string

const (
	ConsentSMS       ConsentType = "sms"
	ConsentEmailSend ConsentType = "email_send"
)

// Valid reports whether t is one of the known consent types.
func (t ConsentType) Valid() bool {
	return t == ConsentSMS || t == ConsentEmailSend
}

// ConsentRecord is one immutable row of the consent ledger.
type ConsentRecord struct {
	ID                int64       `json:"id"`
	ANI               string      `json:"ani"`
	CallID            string      `json:"call_id"`
	Type              ConsentType `json:"type"`
	Granted           bool        `json:"granted"`
	TranscriptSnippet string      `json:"transcript_snippet,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// SMSRateDisclosure must be read verbatim before SMS consent is requested.
const SMSRateDisclosure = "I can text you a link to drop your email in. " +
	"Just so you know, message and data rates may apply. You okay with that?"

// EmailSendPrompt is the question recorded with an email_send decision.
const EmailSendPrompt = "Want me to send a quick confirmation to that email?"

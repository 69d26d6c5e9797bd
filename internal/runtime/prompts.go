package runtime

import (
	"fmt"
	"html"

	"github.com/aretw0/casefile/pkg/domain"
)

// Messages returned to the conversational layer. Quoted text is meant to be
// spoken to the caller as written.
const (
	msgIdentityConfirmed = "Identity noted."
	msgIdentityMismatch  = "Noted. Different person."

	msgEmailAccepted = "Email confirmed."
	msgEmailRejected = "No problem. Let's get the right one."

	msgOfferSMS      = "Offer to text a link. Read the rate disclosure first: '" + domain.SMSRateDisclosure + "'"
	msgVoiceSpelling = "Collecting email by voice. Ask them to spell it out."

	msgSMSSent     = "Text sent. Tell the caller to fill in the form; I'll wait."
	msgSMSDeclined = "No problem. Let's do it the old-fashioned way."
	msgSMSFailed   = "The text didn't go through. Let's spell it out instead."
	msgFormArrived = "Got it from the form."
	msgFormTimeout = "The form didn't come through. Ask them to spell it out."

	msgSpellConfirmed = "Got it."
	msgSpellRejected  = "Ask them to spell it again, slowly."
	msgSpellExhausted = "Email couldn't be captured after multiple attempts. Follow-up will be scheduled."

	msgNoEmail          = "No email to validate."
	msgEmailValid       = "Email checks out."
	msgEmailUnknown     = "Email check passed."
	msgEmailInvalid     = "That email didn't check out. Tell the caller: 'That one's not checking out on my end. Happens. You got another one I can try?'"
	msgEmailInvalidLast = "Email validation failed after retries. Follow-up will be scheduled. Tell the caller: 'We're not going to crack this one tonight. I'll reach back out. We'll get it sorted.'"

	msgSendConsentSent    = "Consent recorded. Confirmation email sent."
	msgSendConsentGranted = "Consent recorded."
	msgSendConsentDenied  = "Understood. No email will be sent."

	msgAddressConfirmed = "Address confirmed. Let me verify it."
	msgAddressDenied    = "No problem. Let's get the right one."
	msgAddressDeclined  = "That's fine, we can skip that for now."

	msgNoAddress          = "I didn't catch an address. Ask them again."
	msgAddressCollected   = "Got it."
	msgAddressNoted       = "Address noted."
	msgAddressValid       = "Address checks out."
	msgAddressInvalid     = "That address didn't check out. Tell the caller: 'That one's not coming up in my system. Can you double-check it for me?'"
	msgAddressInvalidLast = "Address couldn't be verified. Follow-up will be scheduled. Tell the caller: 'I couldn't verify that one. Don't worry, I'll follow up to get it sorted.'"
)

func msgEmailMalformed(got string) string {
	return fmt.Sprintf("That doesn't look like a valid email. I got: %s. Ask them to try spelling it again.", got)
}

func msgEmailReadback(spelled string) string {
	return fmt.Sprintf("Read back to the caller: '%s'. Ask if that's correct. Then call submit_spelled_email again with confirmed=true.", spelled)
}

func msgAddressReadback(normalized string) string {
	return fmt.Sprintf("Read this back to the caller: '%s'. Ask if that's correct. Then call submit_address again with confirmed=true.", normalized)
}

func msgFollowUp(reason domain.FollowUpReason) string {
	return fmt.Sprintf("Follow-up scheduled: %s", reason)
}

// Greeting is the opening line for a call given its caller file.
func Greeting(f CallerFile) string {
	switch {
	case f.RecordSource == domain.SourceReturning && f.OwnerName != "":
		return fmt.Sprintf("Welcome back. Am I speaking with %s?", f.OwnerName)
	case f.OwnerName != "":
		return fmt.Sprintf("Am I speaking with %s?", f.OwnerName)
	}
	return "Who am I speaking with?"
}

// ConfirmationEmail is sent after the caller agrees to receive it.
func ConfirmationEmail(ownerName string) domain.EmailContent {
	name := ownerName
	if name == "" {
		name = "there"
	}
	return domain.EmailContent{
		Subject: "Your email is on file",
		HTMLBody: fmt.Sprintf("<p>Hey %s,</p>"+
			"<p>This is a quick note confirming we've got your email on file.</p>"+
			"<p>If you didn't just speak with us, reply to this message and we'll sort it out.</p>",
			html.EscapeString(name)),
		TextBody: fmt.Sprintf("Hey %s,\n\n"+
			"This is a quick note confirming we've got your email on file.\n\n"+
			"If you didn't just speak with us, reply to this message and we'll sort it out.\n",
			name),
	}
}

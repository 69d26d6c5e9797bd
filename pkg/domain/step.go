package domain

import "fmt"

// Step identifies one stage of the call flow.
// The set is closed: every switch over Step in this module is exhaustive.
type Step string

const (
	StepGreeting          Step = "greeting"
	StepEmailConfirm      Step = "email_confirm"
	StepEmailCollection   Step = "email_collection"
	StepSMSConsent        Step = "sms_consent"
	StepSMSWait           Step = "sms_wait"
	StepVoiceSpelling     Step = "voice_spelling"
	StepEmailValidation   Step = "email_validation"
	StepEmailSendConsent  Step = "email_send_consent"
	StepAddressConfirm    Step = "address_confirm"
	StepAddressCollection Step = "address_collection"
	StepAddressValidation Step = "address_validation"
	StepWrapUp            Step = "wrap_up"
)

// Steps lists every step in graph order.
var Steps = []Step{
	StepGreeting,
	StepEmailConfirm,
	StepEmailCollection,
	StepSMSConsent,
	StepSMSWait,
	StepVoiceSpelling,
	StepEmailValidation,
	StepEmailSendConsent,
	StepAddressConfirm,
	StepAddressCollection,
	StepAddressValidation,
	StepWrapUp,
}

// edges is the fixed directed graph of allowed moves. Self-loops are retries.
var edges = map[Step][]Step{
	StepGreeting:          {StepEmailConfirm, StepEmailCollection},
	StepEmailConfirm:      {StepEmailValidation, StepEmailCollection},
	StepEmailCollection:   {StepSMSConsent, StepVoiceSpelling},
	StepSMSConsent:        {StepSMSWait, StepVoiceSpelling},
	StepSMSWait:           {StepEmailValidation, StepVoiceSpelling},
	StepVoiceSpelling:     {StepVoiceSpelling, StepEmailValidation},
	StepEmailValidation:   {StepEmailSendConsent, StepEmailCollection},
	StepEmailSendConsent:  {StepAddressConfirm, StepAddressCollection},
	StepAddressConfirm:    {StepAddressValidation, StepAddressCollection},
	StepAddressCollection: {StepAddressCollection, StepAddressValidation},
	StepAddressValidation: {StepAddressCollection},
	StepWrapUp:            nil,
}

// ParseStep converts a wire name into a Step.
func ParseStep(s string) (Step, error) {
	for _, st := range Steps {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown step %q", s)
}

// Terminal reports whether the step is a sink.
func (s Step) Terminal() bool {
	return s == StepWrapUp
}

// CanMove reports whether the graph allows moving from s to next.
// Every non-terminal step may always fall through to wrap_up.
func (s Step) CanMove(next Step) bool {
	if s.Terminal() {
		return false
	}
	if next == StepWrapUp {
		return true
	}
	for _, to := range edges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Next lists the steps reachable from s, excluding the implicit wrap_up.
func (s Step) Next() []Step {
	return append([]Step(nil), edges[s]...)
}

// Tool returns the single tool the conversational layer may invoke while
// the call sits at this step. Wrap-up accepts none.
func (s Step) Tool() (Tool, bool) {
	switch s {
	case StepGreeting:
		return ToolConfirmIdentity, true
	case StepEmailConfirm:
		return ToolProcessEmailConfirmation, true
	case StepEmailCollection:
		return ToolInitiateEmailCollection, true
	case StepSMSConsent:
		return ToolProcessSMSConsent, true
	case StepSMSWait:
		return ToolAwaitSMSForm, true
	case StepVoiceSpelling:
		return ToolSubmitSpelledEmail, true
	case StepEmailValidation:
		return ToolValidateEmail, true
	case StepEmailSendConsent:
		return ToolProcessEmailConsent, true
	case StepAddressConfirm:
		return ToolProcessAddressConfirmation, true
	case StepAddressCollection:
		return ToolSubmitAddress, true
	case StepAddressValidation:
		return ToolValidateAddress, true
	case StepWrapUp:
		return "", false
	}
	return "", false
}

// Accepts reports whether tool may be invoked at step s.
// schedule_followup is accepted at every non-terminal step.
func (s Step) Accepts(tool Tool) bool {
	if s.Terminal() {
		return false
	}
	if tool == ToolScheduleFollowUp {
		return true
	}
	own, ok := s.Tool()
	return ok && own == tool
}

// Tool is the name of a structured tool invocation from the conversational layer.
type Tool string

const (
	ToolConfirmIdentity            Tool = "confirm_identity"
	ToolProcessEmailConfirmation   Tool = "process_email_confirmation"
	ToolInitiateEmailCollection    Tool = "initiate_email_collection"
	ToolProcessSMSConsent          Tool = "process_sms_consent"
	ToolAwaitSMSForm               Tool = "await_sms_form"
	ToolSubmitSpelledEmail         Tool = "submit_spelled_email"
	ToolValidateEmail              Tool = "validate_email"
	ToolProcessEmailConsent        Tool = "process_email_consent"
	ToolProcessAddressConfirmation Tool = "process_address_confirmation"
	ToolSubmitAddress              Tool = "submit_address"
	ToolValidateAddress            Tool = "validate_address"
	ToolScheduleFollowUp           Tool = "schedule_followup"
)

// Tools lists every tool the engine understands.
var Tools = []Tool{
	ToolConfirmIdentity,
	ToolProcessEmailConfirmation,
	ToolInitiateEmailCollection,
	ToolProcessSMSConsent,
	ToolAwaitSMSForm,
	ToolSubmitSpelledEmail,
	ToolValidateEmail,
	ToolProcessEmailConsent,
	ToolProcessAddressConfirmation,
	ToolSubmitAddress,
	ToolValidateAddress,
	ToolScheduleFollowUp,
}

// ParseTool converts a wire name into a Tool.
func ParseTool(s string) (Tool, error) {
	for _, t := range Tools {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

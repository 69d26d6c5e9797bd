package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// IdentityAnswer is the interpreted reply to "am I speaking with ...?".
type IdentityAnswer struct {
	Confirmed  bool   `json:"confirmed" mapstructure:"confirmed"`
	CallerName string `json:"caller_name,omitempty" mapstructure:"caller_name"`
}

// ConfirmAnswer is a plain yes/no.
type ConfirmAnswer struct {
	Confirmed bool `json:"confirmed" mapstructure:"confirmed"`
}

// ConsentAnswer is the caller's yes/no to a gated action.
type ConsentAnswer struct {
	Consented bool `json:"consented" mapstructure:"consented"`
}

// SpelledEmailAnswer is the email reconstructed from voice spelling.
// Confirmed is nil until the caller has heard the readback.
type SpelledEmailAnswer struct {
	Email     string `json:"email" mapstructure:"email"`
	Confirmed *bool  `json:"confirmed,omitempty" mapstructure:"confirmed"`
}

// AddressResponse is the caller's reaction to the address on file.
type AddressResponse string

const (
	AddressConfirmed AddressResponse = "confirmed"
	AddressDenied    AddressResponse = "denied"
	AddressDeclined  AddressResponse = "declined"
)

// AddressConfirmAnswer wraps the confirmed/denied/declined answer.
type AddressConfirmAnswer struct {
	Response AddressResponse `json:"response" mapstructure:"response"`
}

// SubmittedAddressAnswer is the reconstructed spoken address.
type SubmittedAddressAnswer struct {
	Address   string `json:"address" mapstructure:"address"`
	Confirmed bool   `json:"confirmed" mapstructure:"confirmed"`
}

// FollowUpAnswer carries the reason given to schedule_followup.
type FollowUpAnswer struct {
	Reason string `json:"reason" mapstructure:"reason"`
}

// NoAnswer is used by bridge tools that carry no caller input.
type NoAnswer struct{}

// DecodeAnswer converts loosely typed tool arguments into the typed answer the tool expects.
func DecodeAnswer(tool Tool, args map[string]any) (any, error) {
	var target any
	switch tool {
	case ToolConfirmIdentity:
		target = &IdentityAnswer{}
	case ToolProcessEmailConfirmation:
		target = &ConfirmAnswer{}
	case ToolProcessSMSConsent, ToolProcessEmailConsent:
		target = &ConsentAnswer{}
	case ToolSubmitSpelledEmail:
		target = &SpelledEmailAnswer{}
	case ToolProcessAddressConfirmation:
		target = &AddressConfirmAnswer{}
	case ToolSubmitAddress:
		target = &SubmittedAddressAnswer{}
	case ToolScheduleFollowUp:
		target = &FollowUpAnswer{}
	case ToolInitiateEmailCollection, ToolAwaitSMSForm, ToolValidateEmail, ToolValidateAddress:
		return NoAnswer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidAnswer, tool, err)
	}

	switch a := target.(type) {
	case *IdentityAnswer:
		return *a, nil
	case *ConfirmAnswer:
		return *a, nil
	case *ConsentAnswer:
		return *a, nil
	case *SpelledEmailAnswer:
		return *a, nil
	case *AddressConfirmAnswer:
		switch a.Response {
		case AddressConfirmed, AddressDenied, AddressDeclined:
		case "":
			a.Response = AddressDeclined
		default:
			return nil, fmt.Errorf("%w: response %q", ErrInvalidAnswer, a.Response)
		}
		return *a, nil
	case *SubmittedAddressAnswer:
		return *a, nil
	case *FollowUpAnswer:
		return *a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
}

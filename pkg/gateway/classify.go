package gateway

import (
	"errors"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// Classify turns a single gateway attempt into success, unknown or hard failure.
// Transport errors, timeouts and missing configuration are never hard failures.
func Classify(err error, hardFailure bool) domain.GatewayOutcome {
	switch {
	case err != nil:
		return domain.OutcomeUnknown
	case hardFailure:
		return domain.OutcomeHardFailure
	}
	return domain.OutcomeSuccess
}

// ClassifyEmail maps a validator reply to valid, invalid or unknown.
// Any error, and any status outside valid/invalid, is unknown.
func ClassifyEmail(v domain.EmailValidation, err error) (domain.EmailStatus, string) {
	if err != nil {
		if errors.Is(err, ports.ErrNotConfigured) {
			return domain.EmailUnknown, "not_configured"
		}
		return domain.EmailUnknown, "gateway_error"
	}
	switch v.Status {
	case domain.EmailValid, domain.EmailInvalid:
		return v.Status, v.SubStatus
	}
	return domain.EmailUnknown, v.SubStatus
}

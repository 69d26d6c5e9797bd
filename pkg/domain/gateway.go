package domain

// EmailStatus is the classified outcome of an email validation.
type EmailStatus string

const (
	EmailValid   EmailStatus = "valid"
	EmailInvalid EmailStatus = "invalid"
	EmailUnknown EmailStatus = "unknown"
)

// DPV match codes returned by USPS delivery-point validation.
const (
	DPVDeliverable    = "Y"
	DPVMissingUnit    = "S"
	DPVMissingUnitAlt = "D"
	DPVUndeliverable  = "N"
)

// Deliverable reports whether a DPV code should be accepted.
// An empty code means the check could not be completed and is accepted as unknown.
func Deliverable(code string) bool {
	switch code {
	case DPVDeliverable, DPVMissingUnit, DPVMissingUnitAlt, "":
		return true
	}
	return false
}

// ReversePhoneResult covers name, email, address and line type in one lookup,
// plus the secondary detail kept as CallerExtras.
type ReversePhoneResult struct {
	OwnerName string       `json:"owner_name,omitempty"`
	Email     string       `json:"email,omitempty"`
	Address   string       `json:"address,omitempty"`
	LineType  string       `json:"line_type,omitempty"`
	Extras    CallerExtras `json:"extras"`
}

// GeocodeResult is the normalized form of a free-text address.
type GeocodeResult struct {
	Normalized string  `json:"normalized"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Confidence string  `json:"confidence"`
}

// EmailValidation is the raw vendor verdict before classification.
type EmailValidation struct {
	Status    EmailStatus `json:"status"`
	SubStatus string      `json:"sub_status,omitempty"`
}

// EmailContent is a confirmation email body.
type EmailContent struct {
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body,omitempty"`
}

// GatewayOutcome is how the engine classifies a single gateway attempt.
type GatewayOutcome string

const (
	OutcomeSuccess     GatewayOutcome = "success"
	OutcomeUnknown     GatewayOutcome = "unknown"
	OutcomeHardFailure GatewayOutcome = "hard_failure"
)

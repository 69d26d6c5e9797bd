package runtime

// Policy holds the tunable limits and feature switches of the call flow.
type Policy struct {
	// SpellingFailures is the failed voice-spelling count that ends collection.
	SpellingFailures int
	// EmailInvalid is the invalid-validation count that ends collection.
	EmailInvalid int
	// AddressInvalid is the undeliverable-address count that ends collection.
	AddressInvalid int

	SMSEnabled     bool
	AddressEnabled bool
}

// DefaultPolicy allows 3 spelling failures and 2 invalid results per check,
// with the SMS and address paths on.
func DefaultPolicy() Policy {
	return Policy{
		SpellingFailures: 3,
		EmailInvalid:     2,
		AddressInvalid:   2,
		SMSEnabled:       true,
		AddressEnabled:   true,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.SpellingFailures <= 0 {
		p.SpellingFailures = d.SpellingFailures
	}
	if p.EmailInvalid <= 0 {
		p.EmailInvalid = d.EmailInvalid
	}
	if p.AddressInvalid <= 0 {
		p.AddressInvalid = d.AddressInvalid
	}
	return p
}

package domain

import "slices"

// AlternatePhone is another number listed for the primary owner.
type AlternatePhone struct {
	Number   string `json:"number"`
	LineType string `json:"line_type,omitempty"`
}

// OwnerSummary describes one owner of a number that has several.
type OwnerSummary struct {
	Name       string  `json:"name,omitempty"`
	Type       string  `json:"type,omitempty"`
	AgeRange   string  `json:"age_range,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// CallerExtras is the secondary reverse-phone detail the conversational layer
// may use naturally (first name, alternate emails, other owners). It is kept
// on the caller record so a returning caller gets the same file as a new one.
type CallerExtras struct {
	FirstName       string           `json:"first_name,omitempty"`
	MiddleName      string           `json:"middle_name,omitempty"`
	LastName        string           `json:"last_name,omitempty"`
	AlternateNames  []string         `json:"alternate_names,omitempty"`
	AgeRange        string           `json:"age_range,omitempty"`
	Gender          string           `json:"gender,omitempty"`
	OwnerType       string           `json:"owner_type,omitempty"`
	Carrier         string           `json:"carrier,omitempty"`
	IsPrepaid       *bool            `json:"is_prepaid,omitempty"`
	IsCommercial    *bool            `json:"is_commercial,omitempty"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
	AllEmails       []string         `json:"all_emails,omitempty"`
	AllAddresses    []string         `json:"all_addresses,omitempty"`
	AlternatePhones []AlternatePhone `json:"alternate_phones,omitempty"`
	OwnerCount      int              `json:"owner_count,omitempty"`
	Owners          []OwnerSummary   `json:"owners,omitempty"`
}

// Empty reports whether the lookup returned no extra detail at all.
func (e CallerExtras) Empty() bool {
	return e.Equal(CallerExtras{})
}

// Equal compares two snapshots field by field.
func (e CallerExtras) Equal(o CallerExtras) bool {
	return e.FirstName == o.FirstName &&
		e.MiddleName == o.MiddleName &&
		e.LastName == o.LastName &&
		slices.Equal(e.AlternateNames, o.AlternateNames) &&
		e.AgeRange == o.AgeRange &&
		e.Gender == o.Gender &&
		e.OwnerType == o.OwnerType &&
		e.Carrier == o.Carrier &&
		equalPtr(e.IsPrepaid, o.IsPrepaid) &&
		equalPtr(e.IsCommercial, o.IsCommercial) &&
		equalPtr(e.ConfidenceScore, o.ConfidenceScore) &&
		slices.Equal(e.AllEmails, o.AllEmails) &&
		slices.Equal(e.AllAddresses, o.AllAddresses) &&
		slices.Equal(e.AlternatePhones, o.AlternatePhones) &&
		e.OwnerCount == o.OwnerCount &&
		slices.Equal(e.Owners, o.Owners)
}

// Clone returns a deep copy.
func (e CallerExtras) Clone() CallerExtras {
	out := e
	out.AlternateNames = slices.Clone(e.AlternateNames)
	out.AllEmails = slices.Clone(e.AllEmails)
	out.AllAddresses = slices.Clone(e.AllAddresses)
	out.AlternatePhones = slices.Clone(e.AlternatePhones)
	out.Owners = slices.Clone(e.Owners)
	if e.IsPrepaid != nil {
		out.IsPrepaid = Ptr(*e.IsPrepaid)
	}
	if e.IsCommercial != nil {
		out.IsCommercial = Ptr(*e.IsCommercial)
	}
	if e.ConfidenceScore != nil {
		out.ConfidenceScore = Ptr(*e.ConfidenceScore)
	}
	return out
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

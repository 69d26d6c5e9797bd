package domain

import (
	"strings"
	"time"
)

// RecordSource tells how the pre-call record was obtained.
type RecordSource string

const (
	SourceNew       RecordSource = "new"
	SourceReturning RecordSource = "returning"
	SourceRefreshed RecordSource = "refreshed"
)

// FieldGroup is a set of caller fields that age together.
type FieldGroup string

const (
	GroupAddress  FieldGroup = "address"
	GroupEmail    FieldGroup = "email"
	GroupLineType FieldGroup = "line_type"
)

// FieldGroups lists every refreshable group.
var FieldGroups = []FieldGroup{GroupAddress, GroupEmail, GroupLineType}

// Freshness is the staleness verdict for one field group.
type Freshness string

const (
	Fresh  Freshness = "fresh"
	Stale  Freshness = "stale"
	Absent Freshness = "absent"
)

// Staleness maps each field group to its freshness.
type Staleness map[FieldGroup]Freshness

// AllFresh reports whether nothing needs a refresh.
func (s Staleness) AllFresh() bool {
	for _, g := range FieldGroups {
		if s[g] != Fresh {
			return false
		}
	}
	return true
}

// Needs reports whether the group is absent or stale.
func (s Staleness) Needs(g FieldGroup) bool {
	return s[g] != Fresh
}

// LineTypeMobile is the only line type eligible for SMS.
const LineTypeMobile = "mobile"

// CallerRecord is the persistent, ANI-keyed enrichment record.
type CallerRecord struct {
	ANI                        string        `json:"ani"`
	OwnerName                  string        `json:"owner_name,omitempty"`
	CandidateEmail             string        `json:"candidate_email,omitempty"`
	CandidateAddressRaw        string        `json:"candidate_address_raw,omitempty"`
	CandidateAddressNormalized string        `json:"candidate_address_normalized,omitempty"`
	LineType                   string        `json:"line_type,omitempty"`
	GeocodeLat                 float64       `json:"geocode_lat,omitempty"`
	GeocodeLng                 float64       `json:"geocode_lng,omitempty"`
	GeocodeConfidence          string        `json:"geocode_confidence,omitempty"`
	DPVMatchCode               string        `json:"dpv_match_code,omitempty"`
	ValidatedEmail             string        `json:"validated_email,omitempty"`
	ValidatedAddress           string        `json:"validated_address,omitempty"`
	AddressValidatedAt         time.Time     `json:"last_validated_at_address,omitempty"`
	EmailValidatedAt           time.Time     `json:"last_validated_at_email,omitempty"`
	LineTypeValidatedAt        time.Time     `json:"last_validated_at_linetype,omitempty"`
	RecordSource               RecordSource  `json:"record_source,omitempty"`
	DeltaFlags                 []Delta       `json:"delta_flags,omitempty"`
	LastCallAt                 time.Time     `json:"last_call_at,omitempty"`
	Extras                     *CallerExtras `json:"extras,omitempty"`

	// Version increments on every committed write. Stores reject writes whose
	// expected version does not match.
	Version int64 `json:"version"`
}

// SMSEligible reports whether the line can receive a text.
func (r CallerRecord) SMSEligible() bool {
	return strings.EqualFold(r.LineType, LineTypeMobile)
}

// BestEmail prefers a validated email over the reverse-phone candidate.
func (r CallerRecord) BestEmail() string {
	if r.ValidatedEmail != "" {
		return r.ValidatedEmail
	}
	return r.CandidateEmail
}

// BestAddress prefers validated, then normalized, then raw address text.
func (r CallerRecord) BestAddress() string {
	switch {
	case r.ValidatedAddress != "":
		return r.ValidatedAddress
	case r.CandidateAddressNormalized != "":
		return r.CandidateAddressNormalized
	}
	return r.CandidateAddressRaw
}

// ValidatedAt returns the timestamp of the last validation of a group.
func (r CallerRecord) ValidatedAt(g FieldGroup) time.Time {
	switch g {
	case GroupAddress:
		return r.AddressValidatedAt
	case GroupEmail:
		return r.EmailValidatedAt
	case GroupLineType:
		return r.LineTypeValidatedAt
	}
	return time.Time{}
}

// Clone returns a deep copy.
func (r CallerRecord) Clone() CallerRecord {
	out := r
	if r.DeltaFlags != nil {
		out.DeltaFlags = append([]Delta(nil), r.DeltaFlags...)
	}
	if r.Extras != nil {
		out.Extras = Ptr(r.Extras.Clone())
	}
	return out
}

// Delta records a material change observed on refresh or upsert.
// Both values are kept so nothing is silently overwritten.
type Delta struct {
	Field      string    `json:"field"`
	Old        string    `json:"old"`
	New        string    `json:"new"`
	ObservedAt time.Time `json:"observed_at"`
}

// CallerPatch carries the values to fold into a CallerRecord.
// Nil fields are left untouched; empty strings never blank stored values.
type CallerPatch struct {
	OwnerName                  *string       `json:"owner_name,omitempty"`
	CandidateEmail             *string       `json:"candidate_email,omitempty"`
	CandidateAddressRaw        *string       `json:"candidate_address_raw,omitempty"`
	CandidateAddressNormalized *string       `json:"candidate_address_normalized,omitempty"`
	LineType                   *string       `json:"line_type,omitempty"`
	GeocodeLat                 *float64      `json:"geocode_lat,omitempty"`
	GeocodeLng                 *float64      `json:"geocode_lng,omitempty"`
	GeocodeConfidence          *string       `json:"geocode_confidence,omitempty"`
	DPVMatchCode               *string       `json:"dpv_match_code,omitempty"`
	ValidatedEmail             *string       `json:"validated_email,omitempty"`
	ValidatedAddress           *string       `json:"validated_address,omitempty"`
	AddressValidatedAt         *time.Time    `json:"last_validated_at_address,omitempty"`
	EmailValidatedAt           *time.Time    `json:"last_validated_at_email,omitempty"`
	LineTypeValidatedAt        *time.Time    `json:"last_validated_at_linetype,omitempty"`
	RecordSource               *RecordSource `json:"record_source,omitempty"`
	LastCallAt                 *time.Time    `json:"last_call_at,omitempty"`
	Extras                     *CallerExtras `json:"extras,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p CallerPatch) Empty() bool {
	return p == CallerPatch{}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

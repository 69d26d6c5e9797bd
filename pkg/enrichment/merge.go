package enrichment

import (
	"strings"
	"time"

	"github.com/aretw0/casefile/pkg/domain"
)

// material reports whether two values differ beyond case and whitespace.
func material(old, new string) bool {
	return normalize(old) != normalize(new)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// merger folds a patch into a record, recording deltas.
type merger struct {
	rec     domain.CallerRecord
	now     time.Time
	changed bool
}

func (m *merger) str(field string, dst *string, v *string) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return
	}
	switch {
	case *dst == "":
		*dst = *v
		m.changed = true
	case material(*dst, *v):
		m.rec.DeltaFlags = append(m.rec.DeltaFlags, domain.Delta{
			Field:      field,
			Old:        *dst,
			New:        *v,
			ObservedAt: m.now,
		})
		*dst = *v
		m.changed = true
	}
}

func (m *merger) num(dst *float64, v *float64) {
	if v == nil || *v == 0 || *dst == *v {
		return
	}
	*dst = *v
	m.changed = true
}

func (m *merger) ts(dst *time.Time, v *time.Time) {
	if v == nil || v.IsZero() || dst.Equal(*v) {
		return
	}
	*dst = *v
	m.changed = true
}

// merge applies p to rec. Empty values never overwrite stored ones and
// re-applying the same patch is a no-op.
func merge(rec domain.CallerRecord, p domain.CallerPatch, now time.Time) (domain.CallerRecord, bool) {
	m := &merger{rec: rec.Clone(), now: now}
	r := &m.rec

	m.str("owner_name", &r.OwnerName, p.OwnerName)
	m.str("candidate_email", &r.CandidateEmail, p.CandidateEmail)
	m.str("candidate_address_raw", &r.CandidateAddressRaw, p.CandidateAddressRaw)
	m.str("candidate_address_normalized", &r.CandidateAddressNormalized, p.CandidateAddressNormalized)
	m.str("line_type", &r.LineType, p.LineType)
	m.str("geocode_confidence", &r.GeocodeConfidence, p.GeocodeConfidence)
	m.str("dpv_match_code", &r.DPVMatchCode, p.DPVMatchCode)
	m.str("validated_email", &r.ValidatedEmail, p.ValidatedEmail)
	m.str("validated_address", &r.ValidatedAddress, p.ValidatedAddress)

	m.num(&r.GeocodeLat, p.GeocodeLat)
	m.num(&r.GeocodeLng, p.GeocodeLng)

	m.ts(&r.AddressValidatedAt, p.AddressValidatedAt)
	m.ts(&r.EmailValidatedAt, p.EmailValidatedAt)
	m.ts(&r.LineTypeValidatedAt, p.LineTypeValidatedAt)
	m.ts(&r.LastCallAt, p.LastCallAt)

	// Extras are a snapshot of the last lookup: replaced whole, never blanked.
	if p.Extras != nil && !p.Extras.Empty() && (r.Extras == nil || !r.Extras.Equal(*p.Extras)) {
		r.Extras = domain.Ptr(p.Extras.Clone())
		m.changed = true
	}

	if p.RecordSource != nil && *p.RecordSource != "" && r.RecordSource != *p.RecordSource {
		r.RecordSource = *p.RecordSource
		m.changed = true
	}
	return m.rec, m.changed
}

package domain

import "time"

// PostCallPayload is the end-of-call summary handed to external sinks.
type PostCallPayload struct {
	SessionContext

	CollectionSource EmailSource `json:"collection_source,omitempty"`
	RecheckStatus    EmailStatus `json:"recheck_status,omitempty"`
	WrittenAt        time.Time   `json:"written_at"`
}

// NewPostCallPayload summarizes a finished call.
func NewPostCallPayload(c SessionContext, now time.Time) PostCallPayload {
	return PostCallPayload{
		SessionContext:   c.Clone(),
		CollectionSource: c.EmailSource,
		WrittenAt:        now,
	}
}

// CallerPatch folds the validated outcome of a call back into the caller record.
// Only values the call actually confirmed are carried.
func (c SessionContext) CallerPatch(at time.Time) CallerPatch {
	p := CallerPatch{LastCallAt: Ptr(at)}

	if c.IdentityMismatchFlag && c.OwnerName != "" {
		p.OwnerName = Ptr(c.OwnerName)
	}
	if c.ValidatedEmail != "" && c.ZBStatus == EmailValid {
		p.ValidatedEmail = Ptr(c.ValidatedEmail)
		p.EmailValidatedAt = Ptr(at)
	}
	if c.ValidatedAddress != "" {
		p.ValidatedAddress = Ptr(c.ValidatedAddress)
		if c.DPVMatchCode != "" {
			p.DPVMatchCode = Ptr(c.DPVMatchCode)
			p.AddressValidatedAt = Ptr(at)
		}
		if c.GeocodeConfidence != "" {
			p.GeocodeConfidence = Ptr(c.GeocodeConfidence)
			p.GeocodeLat = Ptr(c.GeocodeLat)
			p.GeocodeLng = Ptr(c.GeocodeLng)
		}
	}
	return p
}

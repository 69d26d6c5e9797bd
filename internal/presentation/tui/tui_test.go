package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestCallerMarkdown(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.CallerRecord{
		ANI:            "+15551230000",
		OwnerName:      "Fox Mulder",
		CandidateEmail: "fox@example.com",
		LineType:       domain.LineTypeMobile,
		DeltaFlags: []domain.Delta{
			{Field: "owner_name", Old: "Fox Mulder", New: "F. Mulder", ObservedAt: at},
		},
		EmailValidatedAt: at,
		Version:          3,
		Extras: &domain.CallerExtras{
			FirstName:  "Fox",
			LastName:   "Mulder",
			Carrier:    "T-Mobile",
			OwnerCount: 2,
			Owners:     []domain.OwnerSummary{{Name: "Fox Mulder", AgeRange: "60-64"}, {Name: "Samantha Mulder"}},
		},
	}
	staleness := domain.Staleness{
		domain.GroupEmail:    domain.Fresh,
		domain.GroupAddress:  domain.Absent,
		domain.GroupLineType: domain.Stale,
	}

	md := CallerMarkdown(rec, staleness)
	assert.Contains(t, md, "# Caller +15551230000")
	assert.Contains(t, md, "SMS eligible: true")
	assert.Contains(t, md, "| email | fox@example.com | - | 2026-03-01T12:00:00Z | fresh |")
	assert.Contains(t, md, "| address | - | - | never | absent |")
	assert.Contains(t, md, "**owner_name**: `Fox Mulder` -> `F. Mulder`")
	assert.Contains(t, md, "- **Carrier:** T-Mobile")
	assert.Contains(t, md, "  - Fox Mulder (60-64)")
	assert.Contains(t, md, "  - Samantha Mulder (-)")
}

func TestConsentMarkdown(t *testing.T) {
	assert.Contains(t, ConsentMarkdown("+1555", nil), "No consent decisions recorded.")

	md := ConsentMarkdown("+1555", []domain.ConsentRecord{
		{ID: 1, CallID: "call-1", Type: domain.ConsentSMS, Granted: true, TranscriptSnippet: "yes | sure"},
		{ID: 2, CallID: "call-1", Type: domain.ConsentEmailSend},
	})
	assert.Contains(t, md, "| 1 | never | call-1 | sms | granted | yes \\| sure |")
	assert.Contains(t, md, "| 2 | never | call-1 | email_send | denied | - |")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "___")
}

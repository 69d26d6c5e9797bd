package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/casefile/pkg/domain"
)

func stamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// CallerMarkdown renders a caller record with its staleness verdict.
func CallerMarkdown(rec domain.CallerRecord, staleness domain.Staleness) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Caller %s\n\n", rec.ANI)
	fmt.Fprintf(&sb, "**Owner:** %s  \n", orDash(rec.OwnerName))
	fmt.Fprintf(&sb, "**Line type:** %s (SMS eligible: %t)  \n", orDash(rec.LineType), rec.SMSEligible())
	fmt.Fprintf(&sb, "**Last call:** %s  \n", stamp(rec.LastCallAt))
	fmt.Fprintf(&sb, "**Version:** %d\n\n", rec.Version)

	sb.WriteString("## Fields\n\n")
	sb.WriteString("| Field | Candidate | Validated | Last validated | Freshness |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&sb, "| email | %s | %s | %s | %s |\n",
		orDash(rec.CandidateEmail), orDash(rec.ValidatedEmail), stamp(rec.EmailValidatedAt), staleness[domain.GroupEmail])
	fmt.Fprintf(&sb, "| address | %s | %s | %s | %s |\n",
		orDash(rec.BestAddress()), orDash(rec.ValidatedAddress), stamp(rec.AddressValidatedAt), staleness[domain.GroupAddress])
	fmt.Fprintf(&sb, "| line type | %s | - | %s | %s |\n",
		orDash(rec.LineType), stamp(rec.LineTypeValidatedAt), staleness[domain.GroupLineType])

	if rec.DPVMatchCode != "" || rec.GeocodeConfidence != "" {
		fmt.Fprintf(&sb, "\nDPV `%s`, geocode `%s` at %.5f, %.5f\n",
			orDash(rec.DPVMatchCode), orDash(rec.GeocodeConfidence), rec.GeocodeLat, rec.GeocodeLng)
	}

	if ex := rec.Extras; ex != nil {
		sb.WriteString("\n## Reverse phone detail\n\n")
		if name := strings.TrimSpace(ex.FirstName + " " + ex.LastName); name != "" {
			fmt.Fprintf(&sb, "- **Name:** %s\n", name)
		}
		if ex.AgeRange != "" {
			fmt.Fprintf(&sb, "- **Age range:** %s\n", ex.AgeRange)
		}
		if ex.Carrier != "" {
			fmt.Fprintf(&sb, "- **Carrier:** %s\n", ex.Carrier)
		}
		if len(ex.AllEmails) > 0 {
			fmt.Fprintf(&sb, "- **Emails:** %s\n", strings.Join(ex.AllEmails, ", "))
		}
		for _, p := range ex.AlternatePhones {
			fmt.Fprintf(&sb, "- **Alternate phone:** %s (%s)\n", p.Number, orDash(p.LineType))
		}
		if ex.OwnerCount > 1 {
			fmt.Fprintf(&sb, "- **Owners:** %d\n", ex.OwnerCount)
			for _, o := range ex.Owners {
				fmt.Fprintf(&sb, "  - %s (%s)\n", orDash(o.Name), orDash(o.AgeRange))
			}
		}
	}

	if len(rec.DeltaFlags) > 0 {
		sb.WriteString("\n## Deltas\n\n")
		for _, d := range rec.DeltaFlags {
			fmt.Fprintf(&sb, "- **%s**: `%s` -> `%s` (%s)\n", d.Field, d.Old, d.New, stamp(d.ObservedAt))
		}
	}
	return sb.String()
}

// ConsentMarkdown renders a caller's consent history, oldest first.
func ConsentMarkdown(ani string, rows []domain.ConsentRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Consent history for %s\n\n", ani)
	if len(rows) == 0 {
		sb.WriteString("No consent decisions recorded.\n")
		return sb.String()
	}
	sb.WriteString("| # | When | Call | Type | Decision | Transcript |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range rows {
		decision := "denied"
		if r.Granted {
			decision = "granted"
		}
		snippet := strings.ReplaceAll(r.TranscriptSnippet, "|", "\\|")
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | %s |\n",
			r.ID, stamp(r.Timestamp), r.CallID, r.Type, decision, orDash(snippet))
	}
	return sb.String()
}

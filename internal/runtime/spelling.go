package runtime

import (
	"regexp"
	"strings"
)

var nato = map[rune]string{
	'a': "Alpha", 'b': "Bravo", 'c': "Charlie", 'd': "Delta",
	'e': "Echo", 'f': "Foxtrot", 'g': "Golf", 'h': "Hotel",
	'i': "India", 'j': "Juliet", 'k': "Kilo", 'l': "Lima",
	'm': "Mike", 'n': "November", 'o': "Oscar", 'p': "Papa",
	'q': "Quebec", 'r': "Romeo", 's': "Sierra", 't': "Tango",
	'u': "Uniform", 'v': "Victor", 'w': "Whiskey", 'x': "X-ray",
	'y': "Yankee", 'z': "Zulu",
	'0': "Zero", '1': "One", '2': "Two", '3': "Three", '4': "Four",
	'5': "Five", '6': "Six", '7': "Seven", '8': "Eight", '9': "Nine",
}

// NATOSpell renders an email for voice readback, one word per character.
func NATOSpell(email string) string {
	parts := make([]string, 0, len(email))
	for _, r := range strings.ToLower(email) {
		switch r {
		case '@':
			parts = append(parts, "at")
		case '.':
			parts = append(parts, "dot")
		case '-':
			parts = append(parts, "dash")
		case '_':
			parts = append(parts, "underscore")
		default:
			if w, ok := nato[r]; ok {
				parts = append(parts, w)
			} else {
				parts = append(parts, string(r))
			}
		}
	}
	return strings.Join(parts, " ")
}

var (
	fillerRe     = regexp.MustCompile(`\b(um|uh|like|so)\b`)
	atSignRe     = regexp.MustCompile(`\bat\s*sign\b`)
	spokenAtRe   = regexp.MustCompile(`\s+at\s+`)
	spokenDotRe  = regexp.MustCompile(`\b(dot|period)\s+`)
	dashRe       = regexp.MustCompile(`\b(dash|hyphen)\b`)
	underscoreRe = regexp.MustCompile(`\bunderscore\b`)
	spaceRe      = regexp.MustCompile(`\s+`)
	emailRe      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// tldFixes repairs common speech-to-text misses on the top-level domain.
var tldFixes = map[string]string{
	".con": ".com",
	".nrt": ".net",
	".ogr": ".org",
}

// NormalizeSpokenEmail turns an ASR transcript of a spelled email into an
// address: filler words dropped, spoken symbols mapped, whitespace removed.
func NormalizeSpokenEmail(spoken string) string {
	text := strings.ToLower(strings.TrimSpace(spoken))
	text = fillerRe.ReplaceAllString(text, "")
	text = atSignRe.ReplaceAllString(text, "@")
	text = spokenAtRe.ReplaceAllString(text, "@")
	text = spokenDotRe.ReplaceAllString(text, ".")
	text = dashRe.ReplaceAllString(text, "-")
	text = underscoreRe.ReplaceAllString(text, "_")
	text = spaceRe.ReplaceAllString(text, "")

	for bad, good := range tldFixes {
		if strings.HasSuffix(text, bad) {
			text = strings.TrimSuffix(text, bad) + good
			break
		}
	}
	return text
}

// WellFormedEmail is the shape check applied before any readback or validation.
func WellFormedEmail(email string) bool {
	return emailRe.MatchString(email)
}

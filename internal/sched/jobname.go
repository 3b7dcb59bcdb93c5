package sched

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxJobNameLen keeps names within what schedulers display untruncated.
const maxJobNameLen = 64

// FallbackJobName is used when sanitizing leaves nothing.
const FallbackJobName = "poolpilot"

// jobNameFolder decomposes unicode (NFKD) and strips combining marks so
// accented names fold to their ASCII base characters.
var jobNameFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeJobName folds a job name into the portable set [A-Za-z0-9._-].
// Anything else becomes a dash; runs of dashes collapse and the result is
// trimmed and length-capped.
func SanitizeJobName(name string) string {
	folded, _, err := transform.String(jobNameFolder, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	out := strings.Trim(collapseDashes(b.String()), "-")
	if out == "" {
		return FallbackJobName
	}
	if len(out) > maxJobNameLen {
		out = strings.Trim(out[:maxJobNameLen], "-")
	}
	return out
}

func collapseDashes(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

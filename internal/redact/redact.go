// Package redact removes known PII patterns from extracted report text before
// it crosses the trust boundary into any network-bound analysis call.
package redact

import "regexp"

const Marker = "[REDACTED]"

var (
	// A labeled name field: "Name:" followed by letters and spaces. The first
	// character after the label must be a letter so an already-redacted
	// "Name: [REDACTED]" is not matched again.
	namePattern = regexp.MustCompile(`(?i)Name:\s*[A-Za-z][A-Za-z ]*`)

	// A contiguous 10-digit run, treated as a phone number.
	phonePattern = regexp.MustCompile(`\b\d{10}\b`)
)

// Redact replaces every occurrence of each recognized PII pattern. It is a
// pure function and a stable fixed point: Redact(Redact(s)) == Redact(s).
func Redact(text string) string {
	out := namePattern.ReplaceAllString(text, "Name: "+Marker)
	out = phonePattern.ReplaceAllString(out, Marker)
	return out
}

// Package pii masks personal data in free text before it is stored.
package pii

import (
	"regexp"
	"strings"
)

const (
	Marker      = "[REDACTED]"
	EmailMarker = "[EMAIL_REDACTED]"
)

type rule struct {
	name    string
	pattern *regexp.Regexp
}

// Rules run in this order; card numbers go first so their digit groups are
// not half-consumed by the shorter SSN and phone shapes.
var rules = []rule{
	{name: "card", pattern: regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
	{name: "ssn", pattern: regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`)},
	{name: "phone", pattern: regexp.MustCompile(`\b\d{3}[-\s]?\d{3}[-\s]?\d{4}\b`)},
	{name: "email", pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{name: "ipv4", pattern: regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// Redactor masks card numbers, SSNs, phone numbers, email addresses and
// IPv4 addresses.
type Redactor struct{}

// NewRedactor returns a Redactor.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// Redact returns body with every match replaced by a marker. The sender's
// own address (compared case-insensitively) is kept verbatim.
func (r *Redactor) Redact(body, senderEmail string) string {
	if body == "" {
		return body
	}
	sender := strings.TrimSpace(senderEmail)
	out := body
	for _, ru := range rules {
		if ru.name == "email" {
			out = ru.pattern.ReplaceAllStringFunc(out, func(match string) string {
				if sender != "" && strings.EqualFold(match, sender) {
					return match
				}
				return EmailMarker
			})
			continue
		}
		out = ru.pattern.ReplaceAllString(out, Marker)
	}
	return out
}

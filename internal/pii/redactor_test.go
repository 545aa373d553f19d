package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactor_Redact(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name   string
		body   string
		sender string
		want   string
	}{
		{
			name:   "card and foreign email, sender kept",
			body:   "Card 4111-1111-1111-1111, me a@b.com, cc c@d.com",
			sender: "a@b.com",
			want:   "Card [REDACTED], me a@b.com, cc [EMAIL_REDACTED]",
		},
		{
			name:   "sender compared case-insensitively",
			body:   "reply to Jane.Doe@Example.com please",
			sender: "jane.doe@example.com",
			want:   "reply to Jane.Doe@Example.com please",
		},
		{
			name: "card without separators",
			body: "pay with 4111111111111111 now",
			want: "pay with [REDACTED] now",
		},
		{
			name: "ssn",
			body: "SSN 123-45-6789.",
			want: "SSN [REDACTED].",
		},
		{
			name: "phone",
			body: "call 555-123-4567 or 555 123 4567",
			want: "call [REDACTED] or [REDACTED]",
		},
		{
			name: "ipv4",
			body: "from 192.168.10.200 today",
			want: "from [REDACTED] today",
		},
		{
			name:   "no sender redacts every address",
			body:   "a@b.com c@d.org",
			sender: "",
			want:   "[EMAIL_REDACTED] [EMAIL_REDACTED]",
		},
		{
			name: "nothing to redact",
			body: "My printer is broken again.",
			want: "My printer is broken again.",
		},
		{
			name: "empty body",
			body: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Redact(tt.body, tt.sender))
		})
	}
}

func TestRedactor_Deterministic(t *testing.T) {
	r := NewRedactor()
	body := "4111 1111 1111 1111 x@y.io 10.0.0.1"

	first := r.Redact(body, "")
	assert.Equal(t, first, r.Redact(body, ""))
	assert.NotContains(t, first, "4111")
	assert.NotContains(t, first, "x@y.io")
	assert.NotContains(t, first, "10.0.0.1")
}

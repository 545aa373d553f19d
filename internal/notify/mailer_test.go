package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/config"
)

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("support@example.com", Message{
		To:      []string{" jane@example.com ", ""},
		Subject: "Re: printer",
		Body:    "We received your request.",
		Headers: map[string]string{"In-Reply-To": "<m1@example.com>", "": "skip"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"jane@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"<m1@example.com>"}, msg.GetHeader("In-Reply-To"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "We received your request.")
}

func TestBuildMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		from string
		msg  Message
	}{
		{"missing from", "", Message{To: []string{"a@b.c"}, Subject: "s"}},
		{"missing recipient", "x@y.z", Message{To: []string{"  "}, Subject: "s"}},
		{"missing subject", "x@y.z", Message{To: []string{"a@b.c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildMessage(tt.from, tt.msg)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestNewMailer_DisabledWithoutHost(t *testing.T) {
	m := NewMailer(config.NotificationConfig{EmailFrom: "x@y.z"}, zap.NewNop())
	_, ok := m.(*LogMailer)
	require.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), Message{To: []string{"a@b.c"}, Subject: "hi"}))

	m = NewMailer(config.NotificationConfig{EmailFrom: "x@y.z", SMTPHost: "smtp.example.com", SMTPPort: 587}, zap.NewNop())
	_, ok = m.(*SMTPMailer)
	assert.True(t, ok)
}

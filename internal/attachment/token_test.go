package attachment

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline-labs/support-desk/internal/domain"
)

func TestGenerateDownloadToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := GenerateDownloadToken()
		require.NoError(t, err)
		assert.NotContains(t, tok, "=")

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestVerifyDownload(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		stored  string
		expires *time.Time
		given   string
		wantErr error
	}{
		{"match without expiry", "tok", nil, "tok", nil},
		{"match future expiry", "tok", &future, "tok", nil},
		{"match expired", "tok", &past, "tok", ErrTokenExpired},
		{"expiry equals now", "tok", &now, "tok", ErrTokenExpired},
		{"mismatch", "tok", &future, "tok2", ErrInvalidToken},
		{"prefix only", "token", nil, "tok", ErrInvalidToken},
		{"empty supplied", "tok", nil, "", ErrInvalidToken},
		{"empty stored", "", nil, "", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := &domain.TicketAttachment{DownloadToken: tt.stored, TokenExpiresAt: tt.expires}
			err := VerifyDownload(att, tt.given, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDownloadURL(t *testing.T) {
	att := &domain.TicketAttachment{ID: "a-1", DownloadToken: "abc_-"}
	assert.Equal(t, "/api/attachments/download/a-1?token=abc_-", DownloadURL(att))
}

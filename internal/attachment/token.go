package attachment

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/helpline-labs/support-desk/internal/domain"
)

const tokenBytes = 32

var (
	ErrInvalidToken = errors.New("attachment: download token does not match")
	ErrTokenExpired = errors.New("attachment: download token expired")
)

// GenerateDownloadToken returns 32 random bytes, base64url encoded without
// padding.
func GenerateDownloadToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate download token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyDownload checks the supplied token against the attachment record.
// A missing expiry never expires; an expiry at or before now has.
func VerifyDownload(att *domain.TicketAttachment, token string, now time.Time) error {
	if att.DownloadToken == "" || token == "" ||
		subtle.ConstantTimeCompare([]byte(att.DownloadToken), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	if att.TokenExpiresAt != nil && !now.Before(*att.TokenExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// DownloadURL builds the relative URL that serves an attachment.
func DownloadURL(att *domain.TicketAttachment) string {
	return fmt.Sprintf("/api/attachments/download/%s?token=%s", att.ID, att.DownloadToken)
}

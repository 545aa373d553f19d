package dto

import (
	"time"

	"github.com/helpline-labs/support-desk/internal/attachment"
	"github.com/helpline-labs/support-desk/internal/domain"
)

// AttachmentResponse is attachment metadata plus its secure download URL.
// Storage names never leave the service.
type AttachmentResponse struct {
	ID             string     `json:"id"`
	TicketID       string     `json:"ticket_id"`
	FileName       string     `json:"file_name"`
	ContentType    string     `json:"content_type"`
	SizeBytes      int64      `json:"size_bytes"`
	Checksum       string     `json:"checksum"`
	UploadedByID   string     `json:"uploaded_by_id"`
	UploadedAt     time.Time  `json:"uploaded_at"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	DownloadURL    string     `json:"download_url"`
}

func NewAttachmentResponse(a *domain.TicketAttachment) AttachmentResponse {
	return AttachmentResponse{
		ID:             a.ID,
		TicketID:       a.TicketID,
		FileName:       a.OriginalFileName,
		ContentType:    a.ContentType,
		SizeBytes:      a.SizeBytes,
		Checksum:       a.Checksum,
		UploadedByID:   a.UploadedByID,
		UploadedAt:     a.UploadedAt,
		TokenExpiresAt: a.TokenExpiresAt,
		DownloadURL:    attachment.DownloadURL(a),
	}
}

package domain

import "time"

// TicketAttachment stores metadata for a file attached to a ticket. The
// original file name is display-only; bytes live under StoredFileName.
type TicketAttachment struct {
	ID               string
	TicketID         string
	UploadedByID     string
	OriginalFileName string
	StoredFileName   string
	ContentType      string
	SizeBytes        int64
	Checksum         string
	UploadedAt       time.Time
	DownloadToken    string
	TokenExpiresAt   *time.Time
}

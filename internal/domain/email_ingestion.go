package domain

import "time"

// EmailIngestion records one inbound message, keyed by the provider message id.
type EmailIngestion struct {
	ID              string
	MessageID       string
	Subject         string
	OriginalBody    string
	ProcessedBody   string
	FromEmail       string
	FromName        *string
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	IsProcessed     bool
	ProcessingError *string
	CreatedTicketID *string
}

// Completed reports whether the message already produced a ticket.
func (e *EmailIngestion) Completed() bool {
	return e.IsProcessed && e.CreatedTicketID != nil
}

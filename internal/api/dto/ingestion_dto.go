package dto

import (
	"time"

	"github.com/helpline-labs/support-desk/internal/domain"
)

// ProcessEmailRequest is an inbound message posted by the mail provider.
type ProcessEmailRequest struct {
	MessageID string  `json:"message_id"`
	Subject   string  `json:"subject"`
	Body      string  `json:"body"`
	FromEmail string  `json:"from_email"`
	FromName  *string `json:"from_name"`
}

// IngestionResultResponse reports one processing attempt.
type IngestionResultResponse struct {
	IngestionID     string  `json:"ingestion_id"`
	Success         bool    `json:"success"`
	CreatedTicketID *string `json:"created_ticket_id"`
	ProcessedBody   string  `json:"processed_body"`
	Error           string  `json:"error,omitempty"`
}

// IngestionResponse is the staff view of an ingestion record. The original
// body is never returned.
type IngestionResponse struct {
	ID              string     `json:"id"`
	MessageID       string     `json:"message_id"`
	Subject         string     `json:"subject"`
	ProcessedBody   string     `json:"processed_body"`
	FromEmail       string     `json:"from_email"`
	FromName        *string    `json:"from_name"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at"`
	IsProcessed     bool       `json:"is_processed"`
	ProcessingError *string    `json:"processing_error"`
	CreatedTicketID *string    `json:"created_ticket_id"`
}

func NewIngestionResponse(e *domain.EmailIngestion) IngestionResponse {
	return IngestionResponse{
		ID:              e.ID,
		MessageID:       e.MessageID,
		Subject:         e.Subject,
		ProcessedBody:   e.ProcessedBody,
		FromEmail:       e.FromEmail,
		FromName:        e.FromName,
		ReceivedAt:      e.ReceivedAt,
		ProcessedAt:     e.ProcessedAt,
		IsProcessed:     e.IsProcessed,
		ProcessingError: e.ProcessingError,
		CreatedTicketID: e.CreatedTicketID,
	}
}

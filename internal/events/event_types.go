package events

import (
	"time"

	"github.com/helpline-labs/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated        EventType = "ticket_created"
	EventTicketUpdated        EventType = "ticket_updated"
	EventTicketStatusChanged  EventType = "ticket_status_changed"
	EventTicketDeleted        EventType = "ticket_deleted"
	EventTicketCommentAdded   EventType = "ticket_comment_added"
	EventAttachmentUploaded   EventType = "attachment_uploaded"
	EventAttachmentDeleted    EventType = "attachment_deleted"
	EventEmailIngested        EventType = "email_ingested"
	EventEmailIngestionFailed EventType = "email_ingestion_failed"
)

// ActorType distinguishes user actions from background processing.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   ActorType `json:"type"`
	UserID *string   `json:"user_id,omitempty"`
}

// UserActor builds the actor for an authenticated principal.
func UserActor(p domain.Principal) Actor {
	id := p.ID
	return Actor{Type: ActorUser, UserID: &id}
}

// SystemActor is used for ingestion and other unattended work.
func SystemActor() Actor {
	return Actor{Type: ActorSystem}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CustomerID string                `json:"customer_id"`
	Priority   domain.TicketPriority `json:"priority"`
	Title      string                `json:"title"`
	Source     string                `json:"source"`
}

// TicketUpdatedPayload lists the fields that actually changed.
type TicketUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	IsInternal  bool   `json:"is_internal"`
	BodyPreview string `json:"body_preview"`
}

// AttachmentPayload is shared by the attachment events.
type AttachmentPayload struct {
	AttachmentID string `json:"attachment_id"`
	FileName     string `json:"file_name,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

// EmailIngestedPayload payload.
type EmailIngestedPayload struct {
	IngestionID string  `json:"ingestion_id"`
	MessageID   string  `json:"message_id"`
	FromEmail   string  `json:"from_email"`
	FromName    *string `json:"from_name,omitempty"`
	Subject     string  `json:"subject"`
}

// EmailIngestionFailedPayload payload.
type EmailIngestionFailedPayload struct {
	IngestionID string `json:"ingestion_id"`
	MessageID   string `json:"message_id"`
	Error       string `json:"error"`
}

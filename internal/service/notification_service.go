package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/notify"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     notify.Mailer
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mailer notify.Mailer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		mailer:     mailer,
		logger:     logger,
	}
}

// RegisterHandlers subscribes the audit log handlers. Acknowledgement mail
// is delivered by the notification worker through Acknowledge.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketDeleted, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketCommentAdded, n.logEvent)
	n.dispatcher.Subscribe(events.EventAttachmentUploaded, n.logEvent)
	n.dispatcher.Subscribe(events.EventAttachmentDeleted, n.logEvent)
	n.dispatcher.Subscribe(events.EventEmailIngestionFailed, n.logEvent)
	n.dispatcher.Subscribe(events.EventEmailIngested, n.logEvent)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

// Acknowledge mails the sender of an ingested email, threading the reply
// onto the original message.
func (n *NotificationService) Acknowledge(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.EmailIngestedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if n.mailer == nil || strings.TrimSpace(payload.FromEmail) == "" {
		return nil
	}

	greeting := "Hello"
	if payload.FromName != nil && *payload.FromName != "" {
		greeting = "Hello " + *payload.FromName
	}
	msg := notify.Message{
		To:      []string{payload.FromEmail},
		Subject: "Re: " + payload.Subject,
		Body: fmt.Sprintf("%s,\n\nWe received your message and opened ticket %s. "+
			"Our team will get back to you shortly.\n", greeting, event.TicketID),
		Headers: map[string]string{
			"In-Reply-To": payload.MessageID,
			"References":  payload.MessageID,
		},
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send acknowledgement: %w", err)
	}
	n.logger.Info("acknowledgement sent",
		zap.String("ticket_id", event.TicketID),
		zap.String("ingestion_id", payload.IngestionID))
	return nil
}

package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/clock"
	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/pii"
	"github.com/helpline-labs/support-desk/internal/policy"
	"github.com/helpline-labs/support-desk/internal/repository"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

const (
	defaultSubject   = "(no subject)"
	defaultFirstName = "Customer"
	defaultLastName  = "User"
)

// MessageLock serializes work on one message id across concurrent callers.
// Acquire hands out an owner token; Release only frees a lock that token
// still holds.
type MessageLock interface {
	Acquire(ctx context.Context, messageID string) (string, bool, error)
	Release(ctx context.Context, messageID, owner string) error
}

// IngestionService turns inbound email into tickets.
type IngestionService struct {
	ingestions repository.EmailIngestionRepository
	users      repository.UserRepository
	tickets    repository.TicketRepository
	redactor   *pii.Redactor
	lock       MessageLock
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// IngestionDependencies bundles collaborators for IngestionService.
type IngestionDependencies struct {
	IngestionRepo repository.EmailIngestionRepository
	UserRepo      repository.UserRepository
	TicketRepo    repository.TicketRepository
	Redactor      *pii.Redactor
	Lock          MessageLock
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
}

// InboundEmail is one message handed over by the mail provider.
type InboundEmail struct {
	MessageID string
	Subject   string
	Body      string
	FromEmail string
	FromName  *string
}

// IngestionResult reports the outcome of processing one message. A failed
// ticket creation is not an error: the record is kept for retry.
type IngestionResult struct {
	Ingestion       *domain.EmailIngestion
	Success         bool
	CreatedTicketID *string
	ProcessedBody   string
	Error           string
}

// IngestionListFilter pages through ingestion records.
type IngestionListFilter struct {
	Processed *bool
	Limit     int
	Offset    int
}

func NewIngestionService(deps IngestionDependencies) *IngestionService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Redactor == nil {
		deps.Redactor = pii.NewRedactor()
	}
	return &IngestionService{
		ingestions: deps.IngestionRepo,
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		redactor:   deps.Redactor,
		lock:       deps.Lock,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Process ingests a message once. A message id seen before is rejected as
// already processed without touching the existing record.
func (s *IngestionService) Process(ctx context.Context, p domain.Principal, in InboundEmail) (*IngestionResult, error) {
	if err := policy.CanManageEmailIngestion(p).Err(); err != nil {
		return nil, err
	}
	in, err := normalizeInbound(in)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.ingestions.GetByMessageID(ctx, in.MessageID); err == nil {
		return nil, alreadyProcessed(in.MessageID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, mapRepoError(err, "email ingestion")
	}

	record := &domain.EmailIngestion{
		ID:            uuid.NewString(),
		MessageID:     in.MessageID,
		Subject:       in.Subject,
		OriginalBody:  in.Body,
		ProcessedBody: s.redactor.Redact(in.Body, in.FromEmail),
		FromEmail:     in.FromEmail,
		FromName:      in.FromName,
		ReceivedAt:    s.clock.Now(),
	}
	// The record must exist before any ticket is attempted.
	if err := s.ingestions.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, alreadyProcessed(in.MessageID)
		}
		return nil, mapRepoError(err, "email ingestion")
	}
	s.logger.Info("email ingested",
		zap.String("ingestion_id", record.ID),
		zap.String("message_id", record.MessageID))

	return s.run(ctx, record)
}

// Retry re-runs a record that has not produced a ticket yet. The body is
// redacted again from the original text.
func (s *IngestionService) Retry(ctx context.Context, p domain.Principal, id string) (*IngestionResult, error) {
	if err := policy.CanManageEmailIngestion(p).Err(); err != nil {
		return nil, err
	}
	record, err := s.ingestions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "email ingestion")
	}

	release, err := s.acquire(ctx, record.MessageID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock so a concurrent retry that just finished wins.
	record, err = s.ingestions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "email ingestion")
	}
	if record.Completed() {
		return nil, alreadyProcessed(record.MessageID)
	}

	record.IsProcessed = false
	record.ProcessedAt = nil
	record.ProcessingError = nil
	record.CreatedTicketID = nil
	record.ProcessedBody = s.redactor.Redact(record.OriginalBody, record.FromEmail)
	if err := s.ingestions.Update(ctx, record); err != nil {
		return nil, mapRepoError(err, "email ingestion")
	}

	s.logger.Info("retrying email ingestion", zap.String("ingestion_id", record.ID))
	return s.run(ctx, record)
}

// Get returns one record.
func (s *IngestionService) Get(ctx context.Context, p domain.Principal, id string) (*domain.EmailIngestion, error) {
	if err := policy.CanManageEmailIngestion(p).Err(); err != nil {
		return nil, err
	}
	record, err := s.ingestions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "email ingestion")
	}
	return record, nil
}

// List pages through records, newest first, with the total match count.
func (s *IngestionService) List(ctx context.Context, p domain.Principal, filter IngestionListFilter) ([]domain.EmailIngestion, int, error) {
	if err := policy.CanManageEmailIngestion(p).Err(); err != nil {
		return nil, 0, err
	}
	items, total, err := s.ingestions.List(ctx, repository.EmailIngestionFilter{
		Processed: filter.Processed,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
	if err != nil {
		return nil, 0, mapRepoError(err, "email ingestion")
	}
	return items, total, nil
}

// run resolves the customer, creates the ticket and records the outcome on
// the ingestion record.
func (s *IngestionService) run(ctx context.Context, record *domain.EmailIngestion) (*IngestionResult, error) {
	ticket, runErr := s.createTicket(ctx, record)
	if runErr != nil {
		s.logger.Warn("email ingestion failed",
			zap.String("ingestion_id", record.ID),
			zap.String("message_id", record.MessageID),
			zap.Error(runErr))

		msg := failureMessage(runErr)
		record.IsProcessed = false
		record.ProcessingError = &msg
		if err := s.ingestions.Update(ctx, record); err != nil {
			return nil, mapRepoError(err, "email ingestion")
		}
		s.publishEvent(ctx, events.Event{
			Type:  events.EventEmailIngestionFailed,
			Actor: events.SystemActor(),
			Payload: events.EmailIngestionFailedPayload{
				IngestionID: record.ID,
				MessageID:   record.MessageID,
				Error:       msg,
			},
		})
		return &IngestionResult{
			Ingestion:     record,
			ProcessedBody: record.ProcessedBody,
			Error:         msg,
		}, nil
	}

	now := s.clock.Now()
	record.IsProcessed = true
	record.ProcessedAt = &now
	record.ProcessingError = nil
	record.CreatedTicketID = &ticket.ID
	if err := s.ingestions.Update(ctx, record); err != nil {
		return nil, mapRepoError(err, "email ingestion")
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.SystemActor(),
		Payload: events.TicketCreatedPayload{
			CustomerID: ticket.CustomerID,
			Priority:   ticket.Priority,
			Title:      ticket.Title,
			Source:     "email",
		},
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventEmailIngested,
		TicketID: ticket.ID,
		Actor:    events.SystemActor(),
		Payload: events.EmailIngestedPayload{
			IngestionID: record.ID,
			MessageID:   record.MessageID,
			FromEmail:   record.FromEmail,
			FromName:    record.FromName,
			Subject:     record.Subject,
		},
	})
	return &IngestionResult{
		Ingestion:       record,
		Success:         true,
		CreatedTicketID: record.CreatedTicketID,
		ProcessedBody:   record.ProcessedBody,
	}, nil
}

func (s *IngestionService) createTicket(ctx context.Context, record *domain.EmailIngestion) (*domain.Ticket, error) {
	customer, err := s.resolveCustomer(ctx, record.FromEmail, record.FromName)
	if err != nil {
		return nil, err
	}
	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       record.Subject,
		Description: record.ProcessedBody,
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityMedium,
		CustomerID:  customer.ID,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// resolveCustomer finds the sender's account or creates a confirmed
// customer for it. Losing a creation race falls back to the winner.
func (s *IngestionService) resolveCustomer(ctx context.Context, email string, name *string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	first, last := splitName(name)
	user = &domain.User{
		ID:             uuid.NewString(),
		Email:          strings.ToLower(email),
		FirstName:      first,
		LastName:       last,
		Roles:          []domain.Role{domain.RoleCustomer},
		EmailConfirmed: true,
		IsActive:       true,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return s.users.GetByEmail(ctx, email)
		}
		return nil, err
	}
	s.logger.Info("created customer from email", zap.String("user_id", user.ID))
	return user, nil
}

// acquire takes the message lock. An unreachable lock backend is logged and
// the storage uniqueness constraint is relied on instead.
func (s *IngestionService) acquire(ctx context.Context, messageID string) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	owner, ok, err := s.lock.Acquire(ctx, messageID)
	if err != nil {
		s.logger.Warn("message lock unavailable", zap.String("message_id", messageID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, apperrors.NewAlreadyProcessed("message is already being processed",
			map[string]any{"message_id": messageID})
	}
	return func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), messageID, owner); err != nil {
			s.logger.Warn("failed to release message lock", zap.String("message_id", messageID), zap.Error(err))
		}
	}, nil
}

func (s *IngestionService) publishEvent(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.clock, event)
}

func normalizeInbound(in InboundEmail) (InboundEmail, error) {
	details := map[string]any{}
	in.MessageID = strings.TrimSpace(in.MessageID)
	if in.MessageID == "" {
		details["messageId"] = "required"
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.FromEmail))
	if err != nil {
		details["fromEmail"] = "must be a valid email address"
	} else {
		in.FromEmail = addr.Address
		if in.FromName == nil && addr.Name != "" {
			in.FromName = strPtr(addr.Name)
		}
	}
	if len(details) > 0 {
		return in, apperrors.NewValidationError("invalid inbound email", details)
	}
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" {
		in.Subject = defaultSubject
	}
	in.FromName = normalizeOptional(in.FromName)
	return in, nil
}

func splitName(name *string) (string, string) {
	parts := strings.Fields(derefString(name))
	switch len(parts) {
	case 0:
		return defaultFirstName, defaultLastName
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func alreadyProcessed(messageID string) error {
	return apperrors.NewAlreadyProcessed("email has already been processed",
		map[string]any{"message_id": messageID})
}

// failureMessage is the reason stored on the record. The field is only shown
// to staff, so collaborator errors are kept, bounded in length.
func failureMessage(err error) string {
	if de := apperrors.ToDomainError(err); de.Code != apperrors.CodeInternal {
		return de.Message
	}
	return stringPreview("ticket creation failed: "+err.Error(), 500)
}

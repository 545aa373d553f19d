package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/attachment"
	"github.com/helpline-labs/support-desk/internal/clock"
	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/policy"
	"github.com/helpline-labs/support-desk/internal/repository"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// errNoChange short-circuits an update that would not modify the ticket.
var errNoChange = errors.New("no change")

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	comments    repository.TicketCommentRepository
	history     repository.TicketHistoryRepository
	attachments repository.AttachmentRepository
	files       *attachment.Store
	dispatcher  events.Dispatcher
	clock       clock.Clock
	logger      *zap.Logger
	editWindow  time.Duration
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.TicketCommentRepository
	HistoryRepo    repository.TicketHistoryRepository
	AttachmentRepo repository.AttachmentRepository
	Files          *attachment.Store
	Dispatcher     events.Dispatcher
	Clock          clock.Clock
	Logger         *zap.Logger
	EditWindow     time.Duration
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    *string
	Priority    domain.TicketPriority
	// CustomerID and AssigneeID are honored for staff only.
	CustomerID *string
	AssigneeID *string
}

// TicketUpdateInput carries optional field changes. Nil means unchanged; an
// empty AssigneeID unassigns.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Priority    *domain.TicketPriority
	AssigneeID  *string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	AssigneeID *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SearchTerm *string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.EditWindow <= 0 {
		deps.EditWindow = policy.DefaultEditWindow
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		history:     deps.HistoryRepo,
		attachments: deps.AttachmentRepo,
		files:       deps.Files,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
		editWindow:  deps.EditWindow,
	}
}

// CreateTicket opens a ticket. Customers always own what they create and
// cannot pick priority or assignee.
func (s *TicketService) CreateTicket(ctx context.Context, p domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if err := policy.AuthorizeTicketCreate(p).Err(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Category:    normalizeOptional(input.Category),
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityMedium,
		CustomerID:  p.ID,
		CreatedAt:   s.clock.Now(),
	}
	if policy.CanManageTicketFields(p) {
		if input.Priority != "" {
			if !input.Priority.Valid() {
				return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(input.Priority)})
			}
			ticket.Priority = input.Priority
		}
		if id := normalizeOptional(input.CustomerID); id != nil {
			ticket.CustomerID = *id
		}
		ticket.AssigneeID = normalizeOptional(input.AssigneeID)
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.UserActor(p),
		Payload: events.TicketCreatedPayload{
			CustomerID: ticket.CustomerID,
			Priority:   ticket.Priority,
			Title:      ticket.Title,
			Source:     "api",
		},
	})
	return ticket, nil
}

// GetTicket returns a ticket visible to p.
func (s *TicketService) GetTicket(ctx context.Context, p domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	if err := policy.AuthorizeTicketView(p, ticket).Err(); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns tickets visible to p. Customers only ever see their own.
func (s *TicketService) ListTickets(ctx context.Context, p domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		AssigneeID: filter.AssigneeID,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch {
	case p.IsStaff():
	case p.HasRole(domain.RoleCustomer):
		repoFilter.CustomerID = &p.ID
	default:
		return nil, apperrors.NewAuthorizationDenied(policy.PolicyViewTicket)
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	return tickets, nil
}

// UpdateStatus moves a ticket through the lifecycle. Authorization is checked
// before the transition table so that callers without rights learn nothing
// about the ticket's state.
func (s *TicketService) UpdateStatus(ctx context.Context, p domain.Principal, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	var oldStatus domain.TicketStatus
	ticket, err := s.updateWithRetry(ctx, ticketID, func(t *domain.Ticket) error {
		if err := policy.AuthorizeTransition(p, t).Err(); err != nil {
			return err
		}
		if d := policy.ValidateTransition(t.Status, newStatus); !d.Allowed {
			return apperrors.NewValidationError("status transition is not allowed", map[string]any{
				"reason": d.Reason,
				"from":   string(t.Status),
				"to":     string(newStatus),
			})
		}
		oldStatus = t.Status
		t.Status = newStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordHistory(ctx, p, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": string(oldStatus)},
		map[string]any{"status": string(newStatus)})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.UserActor(p),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

// UpdateTicket applies field edits. Priority and assignee changes from
// principals who may not manage them are dropped without error; blank titles
// and descriptions are ignored.
func (s *TicketService) UpdateTicket(ctx context.Context, p domain.Principal, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	var (
		content  map[string][2]any
		priority [2]domain.TicketPriority
		assignee [2]*string
	)
	manage := policy.CanManageTicketFields(p)
	if input.Priority != nil && manage && !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(*input.Priority)})
	}
	if !manage && (input.Priority != nil || input.AssigneeID != nil) {
		s.logger.Debug("ignoring restricted ticket fields", zap.String("ticket_id", ticketID), zap.String("user_id", p.ID))
	}

	ticket, err := s.updateWithRetry(ctx, ticketID, func(t *domain.Ticket) error {
		if err := policy.AuthorizeTicketEdit(p, t, s.clock.Now(), s.editWindow).Err(); err != nil {
			return err
		}
		content = map[string][2]any{}
		priority = [2]domain.TicketPriority{}
		assignee = [2]*string{}

		if v := trimmed(input.Title); v != "" && v != t.Title {
			content["title"] = [2]any{t.Title, v}
			t.Title = v
		}
		if v := trimmed(input.Description); v != "" && v != t.Description {
			content["description"] = [2]any{t.Description, v}
			t.Description = v
		}
		if input.Category != nil {
			if v := normalizeOptional(input.Category); !sameString(v, t.Category) {
				content["category"] = [2]any{derefString(t.Category), derefString(v)}
				t.Category = v
			}
		}
		if manage {
			if input.Priority != nil && *input.Priority != t.Priority {
				priority = [2]domain.TicketPriority{t.Priority, *input.Priority}
				t.Priority = *input.Priority
			}
			if input.AssigneeID != nil {
				if v := normalizeOptional(input.AssigneeID); !sameString(v, t.AssigneeID) {
					assignee = [2]*string{t.AssigneeID, v}
					t.AssigneeID = v
				}
			}
		}
		if len(content) == 0 && priority[1] == "" && assignee == [2]*string{} {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var fields []string
	if len(content) > 0 {
		oldV, newV := map[string]any{}, map[string]any{}
		for field, pair := range content {
			oldV[field], newV[field] = pair[0], pair[1]
			fields = append(fields, field)
		}
		s.recordHistory(ctx, p, ticket.ID, domain.ChangeTypeContent, oldV, newV)
	}
	if priority[1] != "" {
		fields = append(fields, "priority")
		s.recordHistory(ctx, p, ticket.ID, domain.ChangeTypePriority,
			map[string]any{"priority": string(priority[0])},
			map[string]any{"priority": string(priority[1])})
	}
	if assignee != [2]*string{} {
		fields = append(fields, "assignee")
		s.recordHistory(ctx, p, ticket.ID, domain.ChangeTypeAssignee,
			map[string]any{"assignee_id": derefString(assignee[0])},
			map[string]any{"assignee_id": derefString(assignee[1])})
	}
	if len(fields) > 0 {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketUpdated,
			TicketID: ticket.ID,
			Actor:    events.UserActor(p),
			Payload:  events.TicketUpdatedPayload{Fields: fields},
		})
	}
	return ticket, nil
}

// DeleteTicket removes a ticket with its comments, history and attachments.
func (s *TicketService) DeleteTicket(ctx context.Context, p domain.Principal, ticketID string) error {
	if err := policy.CanDeleteTicket(p).Err(); err != nil {
		return err
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return mapRepoError(err, "ticket")
	}
	var stored []domain.TicketAttachment
	if s.attachments != nil {
		list, err := s.attachments.ListByTicket(ctx, ticketID)
		if err != nil {
			return mapRepoError(err, "attachment")
		}
		stored = list
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		return mapRepoError(err, "ticket")
	}

	// Rows are gone; orphaned bytes are only logged.
	if s.files != nil {
		for _, att := range stored {
			if _, err := s.files.Delete(ctx, att.StoredFileName); err != nil {
				s.logger.Warn("failed to remove attachment bytes",
					zap.String("ticket_id", ticketID),
					zap.String("attachment_id", att.ID),
					zap.Error(err))
			}
		}
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticketID,
		Actor:    events.UserActor(p),
	})
	return nil
}

// AddComment appends a comment. Internal notes are staff only.
func (s *TicketService) AddComment(ctx context.Context, p domain.Principal, ticketID, body string, internal bool) (*domain.TicketComment, error) {
	ticket, err := s.GetTicket(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if internal {
		if err := policy.CanAddInternalComment(p).Err(); err != nil {
			return nil, err
		}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", map[string]any{"body": "required"})
	}

	comment := &domain.TicketComment{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		AuthorID:   p.ID,
		Body:       body,
		IsInternal: internal,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    events.UserActor(p),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			IsInternal:  comment.IsInternal,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return comment, nil
}

// ListComments returns the thread; customers never see internal notes.
func (s *TicketService) ListComments(ctx context.Context, p domain.Principal, ticketID string) ([]domain.TicketComment, error) {
	ticket, err := s.GetTicket(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID, p.IsStaff())
	if err != nil {
		return nil, mapRepoError(err, "comment")
	}
	return comments, nil
}

// ListHistory returns audit entries. Customers only see status and assignee
// changes.
func (s *TicketService) ListHistory(ctx context.Context, p domain.Principal, ticketID string) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	ticket, err := s.GetTicket(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, mapRepoError(err, "history")
	}
	if p.IsStaff() {
		return history, nil
	}
	allowed := []domain.TicketHistory{}
	for _, entry := range history {
		if entry.ChangeType == domain.ChangeTypeStatus || entry.ChangeType == domain.ChangeTypeAssignee {
			allowed = append(allowed, entry)
		}
	}
	return allowed, nil
}

// updateWithRetry loads the ticket, applies mutate and writes it back. A
// concurrent writer is answered by one re-read and re-apply; a second
// conflict is reported to the caller.
func (s *TicketService) updateWithRetry(ctx context.Context, ticketID string, mutate func(*domain.Ticket) error) (*domain.Ticket, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ticket, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return nil, mapRepoError(err, "ticket")
		}
		if err := mutate(ticket); err != nil {
			if errors.Is(err, errNoChange) {
				return ticket, nil
			}
			return nil, err
		}
		now := s.clock.Now()
		ticket.UpdatedAt = &now

		err = s.tickets.Update(ctx, ticket)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, mapRepoError(err, "ticket")
		}
		s.logger.Info("ticket version conflict, retrying",
			zap.String("ticket_id", ticketID), zap.Int("attempt", attempt+1))
	}
	return nil, apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
}

func (s *TicketService) recordHistory(ctx context.Context, p domain.Principal, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		ID:          uuid.NewString(),
		TicketID:    ticketID,
		ChangedByID: p.ID,
		ChangeType:  change,
		OldValue:    oldValue,
		NewValue:    newValue,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.clock, event)
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func normalizeOptional(s *string) *string {
	if v := trimmed(s); v != "" {
		return &v
	}
	return nil
}

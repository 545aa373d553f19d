package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/policy"
	"github.com/helpline-labs/support-desk/internal/repository"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// AssignmentService handles ticket assignment operations. Writes go through
// TicketService so history, events and version retries stay in one place.
type AssignmentService struct {
	tickets *TicketService
	users   repository.UserRepository
	logger  *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Tickets  *TicketService
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AssignmentService{tickets: deps.Tickets, users: deps.UserRepo, logger: deps.Logger}
}

// SelfAssign makes the calling staff member the assignee.
func (s *AssignmentService) SelfAssign(ctx context.Context, p domain.Principal, ticketID string) (*domain.Ticket, error) {
	if !policy.CanManageTicketFields(p) {
		return nil, apperrors.NewAuthorizationDenied(policy.PolicyEditTicket)
	}
	return s.tickets.UpdateTicket(ctx, p, ticketID, TicketUpdateInput{AssigneeID: strPtr(p.ID)})
}

// Assign hands the ticket to another staff member. An empty assigneeID
// unassigns. The assignee must be an active Admin or Agent account.
func (s *AssignmentService) Assign(ctx context.Context, p domain.Principal, ticketID, assigneeID string) (*domain.Ticket, error) {
	if !policy.CanManageTicketFields(p) {
		return nil, apperrors.NewAuthorizationDenied(policy.PolicyEditTicket)
	}
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID != "" && assigneeID != p.ID {
		assignee, err := s.users.GetByID(ctx, assigneeID)
		if err != nil {
			return nil, mapRepoError(err, "user")
		}
		if !assignee.IsActive {
			return nil, apperrors.NewConflict("assignee inactive", map[string]any{"assignee_id": assigneeID})
		}
		if !assignee.Principal().IsStaff() {
			return nil, apperrors.NewValidationError("assignee must be staff", map[string]any{"assignee_id": assigneeID})
		}
	}
	ticket, err := s.tickets.UpdateTicket(ctx, p, ticketID, TicketUpdateInput{AssigneeID: &assigneeID})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket assigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("assignee_id", assigneeID),
		zap.String("user_id", p.ID))
	return ticket, nil
}

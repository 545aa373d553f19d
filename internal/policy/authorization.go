package policy

import (
	"time"

	"github.com/helpline-labs/support-desk/internal/domain"
)

// DefaultEditWindow is how long a customer may edit their own ticket.
const DefaultEditWindow = 24 * time.Hour

// AuthorizeTransition allows Admins, and Agents assigned to the ticket.
func AuthorizeTransition(p domain.Principal, ticket *domain.Ticket) Decision {
	if p.HasRole(domain.RoleAdmin) {
		return allow(PolicyTransitionTicket)
	}
	if p.HasRole(domain.RoleAgent) && ticket.IsAssignedTo(p.ID) {
		return allow(PolicyTransitionTicket)
	}
	return deny(PolicyTransitionTicket, ReasonNotAuthorized)
}

// AuthorizeOwnTicketEdit applies to customers editing their own ticket. The
// window is exclusive: an edit exactly window after creation is denied.
func AuthorizeOwnTicketEdit(p domain.Principal, ticket *domain.Ticket, now time.Time, window time.Duration) Decision {
	if !p.HasRole(domain.RoleCustomer) || p.IsStaff() {
		return deny(PolicyEditOwnTicket, ReasonNotAuthorized)
	}
	if ticket.CustomerID != p.ID {
		return deny(PolicyEditOwnTicket, ReasonNotOwner)
	}
	if window <= 0 {
		window = DefaultEditWindow
	}
	if now.Sub(ticket.CreatedAt) >= window {
		return deny(PolicyEditOwnTicket, ReasonEditWindowExpired)
	}
	if ticket.Status == domain.TicketStatusClosed || ticket.Status == domain.TicketStatusResolved {
		return deny(PolicyEditOwnTicket, ReasonTicketFinalized)
	}
	return allow(PolicyEditOwnTicket)
}

// AuthorizeTicketEdit lets staff edit any ticket and routes everyone else
// through the own-ticket policy.
func AuthorizeTicketEdit(p domain.Principal, ticket *domain.Ticket, now time.Time, window time.Duration) Decision {
	if p.IsStaff() {
		return allow(PolicyEditTicket)
	}
	return AuthorizeOwnTicketEdit(p, ticket, now, window)
}

// CanManageTicketFields reports whether p may change priority or assignee.
// Callers drop such changes silently for everyone else.
func CanManageTicketFields(p domain.Principal) bool {
	return p.IsStaff()
}

// AuthorizeTicketCreate allows staff and customers.
func AuthorizeTicketCreate(p domain.Principal) Decision {
	if p.IsStaff() || p.HasRole(domain.RoleCustomer) {
		return allow(PolicyCreateTicket)
	}
	return deny(PolicyCreateTicket, ReasonNotAuthorized)
}

// CanAddInternalComment restricts staff-only notes to staff.
func CanAddInternalComment(p domain.Principal) Decision {
	if p.IsStaff() {
		return allow(PolicyInternalComment)
	}
	return deny(PolicyInternalComment, ReasonNotAuthorized)
}

// AuthorizeTicketView allows staff and the owning customer.
func AuthorizeTicketView(p domain.Principal, ticket *domain.Ticket) Decision {
	if p.IsStaff() || (p.HasRole(domain.RoleCustomer) && ticket.CustomerID == p.ID) {
		return allow(PolicyViewTicket)
	}
	return deny(PolicyViewTicket, ReasonNotAuthorized)
}

// AuthorizeAttachmentAccess gates upload, listing and download of a ticket's
// attachments.
func AuthorizeAttachmentAccess(p domain.Principal, ticket *domain.Ticket) Decision {
	d := AuthorizeTicketView(p, ticket)
	d.Policy = PolicyAccessAttachment
	return d
}

// CanManageAttachments reports whether p may delete attachments or rotate
// their download tokens.
func CanManageAttachments(p domain.Principal) Decision {
	if p.IsStaff() {
		return allow(PolicyManageAttachment)
	}
	return deny(PolicyManageAttachment, ReasonNotAuthorized)
}

// CanManageEmailIngestion reports whether p may run or inspect ingestion.
func CanManageEmailIngestion(p domain.Principal) Decision {
	if p.IsStaff() {
		return allow(PolicyManageIngestion)
	}
	return deny(PolicyManageIngestion, ReasonNotAuthorized)
}

// CanDeleteTicket is reserved for Admins.
func CanDeleteTicket(p domain.Principal) Decision {
	if p.HasRole(domain.RoleAdmin) {
		return allow(PolicyDeleteTicket)
	}
	return deny(PolicyDeleteTicket, ReasonNotAuthorized)
}

package policy

import "github.com/helpline-labs/support-desk/internal/domain"

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusOpen},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed, domain.TicketStatusReopened},
	domain.TicketStatusClosed:     {domain.TicketStatusReopened},
	domain.TicketStatusReopened:   {domain.TicketStatusInProgress, domain.TicketStatusClosed},
}

// ValidateTransition reports whether a ticket may move from current to next.
// Unknown states and self transitions are rejected.
func ValidateTransition(current, next domain.TicketStatus) Decision {
	if isValidTransition(current, next) {
		return allow("StatusTransition")
	}
	return deny("StatusTransition", ReasonInvalidTransition)
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current domain.TicketStatus) []domain.TicketStatus {
	return append([]domain.TicketStatus(nil), allowedTransitions[current]...)
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

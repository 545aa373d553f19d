// Package policy holds the pure decision functions that gate ticket
// mutations: the status state machine and the role based authorization
// rules. Nothing here performs I/O.
package policy

import (
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// Policy names reported on denial.
const (
	PolicyTransitionTicket = "CanTransitionTicket"
	PolicyEditOwnTicket    = "CanEditOwnTicket"
	PolicyEditTicket       = "CanEditTicket"
	PolicyCreateTicket     = "CanCreateTicket"
	PolicyViewTicket       = "CanViewTicket"
	PolicyInternalComment  = "CanAddInternalComment"
	PolicyAccessAttachment = "CanAccessAttachment"
	PolicyManageAttachment = "CanManageAttachment"
	PolicyManageIngestion  = "CanManageEmailIngestion"
	PolicyDeleteTicket     = "CanDeleteTicket"
)

// Denial reasons.
const (
	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonNotAuthorized     = "NOT_AUTHORIZED"
	ReasonNotOwner          = "NOT_OWNER"
	ReasonEditWindowExpired = "EDIT_WINDOW_EXPIRED"
	ReasonTicketFinalized   = "TICKET_FINALIZED"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Policy  string
	Reason  string
}

func allow(policy string) Decision {
	return Decision{Allowed: true, Policy: policy}
}

func deny(policy, reason string) Decision {
	return Decision{Policy: policy, Reason: reason}
}

// Err converts a denial into the caller-visible error. Invalid transitions
// are validation failures; everything else is an authorization denial that
// only names the policy.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonInvalidTransition {
		return apperrors.NewValidationError("status transition is not allowed",
			map[string]any{"reason": ReasonInvalidTransition})
	}
	return apperrors.NewAuthorizationDenied(d.Policy)
}

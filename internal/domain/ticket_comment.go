package domain

import "time"

// TicketComment captures communications in a ticket thread. Internal notes
// are hidden from customers.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorID   string
	Body       string
	IsInternal bool
	CreatedAt  time.Time
}

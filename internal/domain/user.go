package domain

import "time"

// User is an account known to the desk. Customers created by email
// ingestion have no credentials of their own.
type User struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	Roles          []Role
	EmailConfirmed bool
	IsActive       bool
	CreatedAt      time.Time
}

// Principal returns the authorization view of the user.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Roles: append([]Role(nil), u.Roles...)}
}

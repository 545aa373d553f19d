package domain

// Role names observed by authorization.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleAgent    Role = "Agent"
	RoleCustomer Role = "Customer"
)

// Principal is the authenticated caller: an identifier plus its roles.
type Principal struct {
	ID    string
	Roles []Role
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the principal is an Admin or an Agent.
func (p Principal) IsStaff() bool {
	return p.HasRole(RoleAdmin) || p.HasRole(RoleAgent)
}

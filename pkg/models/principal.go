package models

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller as asserted by the auth middleware.
// The zero value is an anonymous caller.
type Principal struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// IsStaff reports whether the caller may moderate reports.
func (p Principal) IsStaff() bool {
	return p.Role == RoleModerator || p.Role == RoleAdmin
}

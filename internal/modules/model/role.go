package model

import "strings"

type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RoleCreator   Role = "creator"
	RoleFounder   Role = "founder"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Rank returns the ordinal of r, or -1 for an unknown role.
func (r Role) Rank() int {
	switch r {
	case RoleGuest:
		return 0
	case RoleUser:
		return 1
	case RoleCreator:
		return 2
	case RoleFounder:
		return 3
	case RoleModerator:
		return 4
	case RoleAdmin:
		return 5
	default:
		return -1
	}
}

func (r Role) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether role ranks at or above required.
func AtLeast(role, required Role) bool {
	return role.Rank() >= required.Rank() && role.Valid()
}

// ParseRole normalizes case and surrounding space.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

package models

type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleUser  UserRole = "USER"
)

// Principal is the already-authenticated caller of an operation.
type Principal struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

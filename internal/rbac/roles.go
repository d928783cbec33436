package rbac

// Role names. Keep these stable; they are part of the auth contract.
// The system has a single administrator account and many end users.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

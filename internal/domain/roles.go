package domain

import "time"

// Role is the closed set of permissions known to the vault.
type Role string

const (
	// RoleAdmin is the superuser: grants/revokes roles, manages assets and
	// chains, performs emergency exits.
	RoleAdmin Role = "admin"
	// RoleManager manages the strategy registry.
	RoleManager Role = "manager"
	// RoleAgent triggers allocation and harvest operations.
	RoleAgent Role = "agent"
	// RoleBridge triggers cross-chain send/receive operations.
	RoleBridge Role = "bridge"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleAgent, RoleBridge:
		return true
	}
	return false
}

// RoleAssignment records a granted role.
type RoleAssignment struct {
	Principal string    `json:"principal"`
	Role      Role      `json:"role"`
	GrantedBy string    `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

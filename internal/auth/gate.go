package auth

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
)

// Gate is the access-control service. It wraps the role repository with the
// invariants the repository alone cannot enforce: only admins manage roles,
// and the system never ends up with zero admins.
type Gate struct {
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewGate creates a new access control gate
func NewGate(repo *Repository, bus *events.Bus, log zerolog.Logger) *Gate {
	return &Gate{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("service", "auth_gate").Logger(),
	}
}

// Require returns a typed Unauthorized error if the principal does not hold
// the role. Admins implicitly satisfy every role check.
func (g *Gate) Require(principal string, role domain.Role) error {
	ok, err := g.repo.HasRole(principal, role)
	if err != nil {
		return fmt.Errorf("role check failed: %w", err)
	}
	if ok {
		return nil
	}

	if role != domain.RoleAdmin {
		isAdmin, err := g.repo.HasRole(principal, domain.RoleAdmin)
		if err != nil {
			return fmt.Errorf("role check failed: %w", err)
		}
		if isAdmin {
			return nil
		}
	}

	return &domain.UnauthorizedError{Principal: principal, Role: role}
}

// Grant assigns a role to a principal. Admin-gated.
func (g *Gate) Grant(caller, principal string, role domain.Role) error {
	if err := g.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	if principal == "" {
		return fmt.Errorf("principal is required")
	}

	if err := g.repo.Grant(principal, role, caller); err != nil {
		return err
	}

	g.log.Info().
		Str("principal", principal).
		Str("role", string(role)).
		Str("granted_by", caller).
		Msg("Role granted")
	g.bus.Publish(events.RoleGranted, "auth", map[string]interface{}{
		"principal":  principal,
		"role":       string(role),
		"granted_by": caller,
	})

	return nil
}

// Revoke removes a role from a principal. Admin-gated. Revoking the admin
// role from the last admin fails with ErrLastAdmin: a revocation must never
// leave the system without an administrator.
func (g *Gate) Revoke(caller, principal string, role domain.Role) error {
	if err := g.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	if role == domain.RoleAdmin {
		holds, err := g.repo.HasRole(principal, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if holds {
			admins, err := g.repo.CountHolders(domain.RoleAdmin)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return domain.ErrLastAdmin
			}
		}
	}

	if err := g.repo.Revoke(principal, role); err != nil {
		return err
	}

	g.log.Info().
		Str("principal", principal).
		Str("role", string(role)).
		Str("revoked_by", caller).
		Msg("Role revoked")
	g.bus.Publish(events.RoleRevoked, "auth", map[string]interface{}{
		"principal":  principal,
		"role":       string(role),
		"revoked_by": caller,
	})

	return nil
}

// RolesOf returns all roles held by the principal.
func (g *Gate) RolesOf(principal string) ([]domain.RoleAssignment, error) {
	return g.repo.RolesOf(principal)
}

// All returns every role assignment.
func (g *Gate) All() ([]domain.RoleAssignment, error) {
	return g.repo.All()
}

// Bootstrap ensures the configured admin and system agent principals hold
// their roles. Runs at startup, before the server accepts requests.
func (g *Gate) Bootstrap(adminPrincipal, agentPrincipal string) error {
	if adminPrincipal == "" {
		return fmt.Errorf("bootstrap admin principal is required")
	}

	if err := g.repo.Grant(adminPrincipal, domain.RoleAdmin, "system:bootstrap"); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	if agentPrincipal != "" {
		if err := g.repo.Grant(agentPrincipal, domain.RoleAgent, "system:bootstrap"); err != nil {
			return fmt.Errorf("failed to bootstrap agent: %w", err)
		}
	}

	g.log.Info().
		Str("admin", adminPrincipal).
		Str("agent", agentPrincipal).
		Msg("Access control bootstrapped")

	return nil
}

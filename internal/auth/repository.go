// Package auth implements the role-based access control gate. Every mutating
// operation in the system declares its required role up front; a failed check
// surfaces as a typed Unauthorized error naming the missing role.
package auth

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/domain"
)

// Repository handles role assignment database operations.
// Database: vault.db (roles table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new role repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "auth").Logger(),
	}
}

// HasRole reports whether the principal holds the role.
func (r *Repository) HasRole(principal string, role domain.Role) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM roles WHERE principal = ? AND role = ?",
		principal, string(role),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query role: %w", err)
	}
	return count > 0, nil
}

// Grant inserts a role assignment. Idempotent: granting an already-held role
// is a no-op.
func (r *Repository) Grant(principal string, role domain.Role, grantedBy string) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO roles (principal, role, granted_by, granted_at) VALUES (?, ?, ?, ?)",
		principal, string(role), grantedBy, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// Revoke deletes a role assignment. Revoking a role that is not held is a
// no-op.
func (r *Repository) Revoke(principal string, role domain.Role) error {
	_, err := r.db.Exec(
		"DELETE FROM roles WHERE principal = ? AND role = ?",
		principal, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// CountHolders returns the number of principals holding the role.
func (r *Repository) CountHolders(role domain.Role) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM roles WHERE role = ?", string(role),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count role holders: %w", err)
	}
	return count, nil
}

// RolesOf returns all roles held by the principal.
func (r *Repository) RolesOf(principal string) ([]domain.RoleAssignment, error) {
	rows, err := r.db.Query(
		"SELECT principal, role, granted_by, granted_at FROM roles WHERE principal = ? ORDER BY role",
		principal,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// All returns every role assignment in the system.
func (r *Repository) All() ([]domain.RoleAssignment, error) {
	rows, err := r.db.Query(
		"SELECT principal, role, granted_by, granted_at FROM roles ORDER BY principal, role",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func scanAssignments(rows *sql.Rows) ([]domain.RoleAssignment, error) {
	var assignments []domain.RoleAssignment
	for rows.Next() {
		var a domain.RoleAssignment
		var role string
		var grantedAt int64

		if err := rows.Scan(&a.Principal, &role, &a.GrantedBy, &grantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		a.Role = domain.Role(role)
		a.GrantedAt = time.Unix(grantedAt, 0).UTC()
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role assignments: %w", err)
	}

	return assignments, nil
}

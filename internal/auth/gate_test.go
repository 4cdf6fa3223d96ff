package auth

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	vaulttesting "github.com/royaltyfi/vaultd/internal/testing"
)

func newTestGate(t *testing.T) (*Gate, func()) {
	t.Helper()
	db, cleanup := vaulttesting.NewTestDB(t, "vault")
	repo := NewRepository(db.Conn(), zerolog.Nop())
	gate := NewGate(repo, events.NewBus(zerolog.Nop()), zerolog.Nop())
	require.NoError(t, gate.Bootstrap("alice", "system:scheduler"))
	return gate, cleanup
}

func TestRequireAllowsHeldRole(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	require.NoError(t, gate.Grant("alice", "bob", domain.RoleManager))
	assert.NoError(t, gate.Require("bob", domain.RoleManager))
}

func TestRequireRejectsMissingRole(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	err := gate.Require("mallory", domain.RoleManager)
	require.Error(t, err)
	assert.True(t, domain.IsUnauthorized(err))

	ue, ok := err.(*domain.UnauthorizedError)
	require.True(t, ok)
	assert.Equal(t, "mallory", ue.Principal)
	assert.Equal(t, domain.RoleManager, ue.Role)
}

func TestAdminSatisfiesEveryRole(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	for _, role := range []domain.Role{domain.RoleManager, domain.RoleAgent, domain.RoleBridge} {
		assert.NoError(t, gate.Require("alice", role), "admin should satisfy %s", role)
	}
}

func TestGrantRequiresAdmin(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	err := gate.Grant("bob", "carol", domain.RoleAgent)
	require.Error(t, err)
	assert.True(t, domain.IsUnauthorized(err))

	// No side effects: carol holds nothing
	roles, err := gate.RolesOf("carol")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestRevokeLastAdminRefused(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	err := gate.Revoke("alice", "alice", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrLastAdmin)

	// Still an admin
	assert.NoError(t, gate.Require("alice", domain.RoleAdmin))
}

func TestRevokeAdminAllowedWithTwoAdmins(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	require.NoError(t, gate.Grant("alice", "bob", domain.RoleAdmin))
	require.NoError(t, gate.Revoke("alice", "alice", domain.RoleAdmin))

	err := gate.Require("alice", domain.RoleAdmin)
	assert.True(t, domain.IsUnauthorized(err))
	assert.NoError(t, gate.Require("bob", domain.RoleAdmin))
}

func TestGrantUnknownRoleRejected(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	err := gate.Grant("alice", "bob", domain.Role("superuser"))
	assert.Error(t, err)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	require.NoError(t, gate.Bootstrap("alice", "system:scheduler"))

	roles, err := gate.RolesOf("alice")
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

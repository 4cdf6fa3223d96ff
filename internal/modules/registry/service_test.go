package registry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	vaulttesting "github.com/royaltyfi/vaultd/internal/testing"
)

const (
	admin   = "0xadmin"
	manager = "0xmanager"
	nobody  = "0xnobody"
)

// stubDeployed satisfies DeployedChecker with fixed totals.
type stubDeployed struct {
	amounts map[string]decimal.Decimal
}

func (s *stubDeployed) Deployed(asset, handle string) (decimal.Decimal, error) {
	if d, ok := s.amounts[asset+"/"+handle]; ok {
		return d, nil
	}
	return decimal.Zero, nil
}

func newTestService(t *testing.T) (*Service, *stubDeployed) {
	t.Helper()
	db, cleanup := vaulttesting.NewTestDB(t, "vault")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	bus := events.NewBus(log)
	gate := auth.NewGate(auth.NewRepository(db.Conn(), log), bus, log)
	require.NoError(t, gate.Bootstrap(admin, ""))
	require.NoError(t, gate.Grant(admin, manager, domain.RoleManager))

	deployed := &stubDeployed{amounts: map[string]decimal.Decimal{}}
	svc := NewService(NewRepository(db.Conn(), log), gate, deployed, bus, log)
	return svc, deployed
}

func TestAddStrategy(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))

	require.NoError(t, svc.AddStrategy(manager, "USDC", "0xaaa"))

	strategies, err := svc.ListStrategies("USDC")
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "0xaaa", strategies[0].Handle)
	assert.Equal(t, int64(0), strategies[0].WeightBps)
	assert.False(t, strategies[0].Paused)
}

func TestAddStrategyValidation(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))
	require.NoError(t, svc.AddStrategy(manager, "USDC", "0xaaa"))

	tests := []struct {
		name    string
		asset   string
		handle  string
		wantErr error
	}{
		{"empty handle", "USDC", "", domain.ErrInvalidHandle},
		{"zero handle", "USDC", "0x0000000000000000000000000000000000000000", domain.ErrInvalidHandle},
		{"unsupported asset", "DOGE", "0xbbb", domain.ErrUnsupportedAsset},
		{"duplicate", "USDC", "0xaaa", domain.ErrAlreadyRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.AddStrategy(manager, tt.asset, tt.handle)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAddStrategyRequiresManager(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))

	err := svc.AddStrategy(nobody, "USDC", "0xaaa")
	assert.True(t, domain.IsUnauthorized(err))

	// Refused call must leave no trace.
	strategies, err := svc.ListStrategies("USDC")
	require.NoError(t, err)
	assert.Empty(t, strategies)
}

func TestRemoveStrategyWithFundsRefused(t *testing.T) {
	svc, deployed := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))
	require.NoError(t, svc.AddStrategy(manager, "USDC", "0xaaa"))

	deployed.amounts["USDC/0xaaa"] = decimal.NewFromInt(500)

	err := svc.RemoveStrategy(manager, "USDC", "0xaaa")
	assert.ErrorIs(t, err, domain.ErrStrategyHasFunds)

	// Still registered.
	strategies, err := svc.ListStrategies("USDC")
	require.NoError(t, err)
	assert.Len(t, strategies, 1)
}

func TestRemoveStrategyDrained(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))
	require.NoError(t, svc.AddStrategy(manager, "USDC", "0xaaa"))

	require.NoError(t, svc.RemoveStrategy(manager, "USDC", "0xaaa"))

	err := svc.RemoveStrategy(manager, "USDC", "0xaaa")
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestSetWeightBounds(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))
	require.NoError(t, svc.AddStrategy(manager, "USDC", "0xaaa"))

	assert.ErrorIs(t, svc.SetWeight(manager, "USDC", "0xaaa", -1), domain.ErrInvalidWeight)
	assert.ErrorIs(t, svc.SetWeight(manager, "USDC", "0xaaa", 10001), domain.ErrInvalidWeight)
	require.NoError(t, svc.SetWeight(manager, "USDC", "0xaaa", 10000))
}

func TestPauseResumeStrategy(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))
	require.NoError(t, svc.AddStrategy(manager, "USDC", "0xaaa"))

	require.NoError(t, svc.PauseStrategy(manager, "USDC", "0xaaa"))
	strategies, err := svc.ListStrategies("USDC")
	require.NoError(t, err)
	assert.True(t, strategies[0].Paused)

	require.NoError(t, svc.ResumeStrategy(manager, "USDC", "0xaaa"))
	strategies, err = svc.ListStrategies("USDC")
	require.NoError(t, err)
	assert.False(t, strategies[0].Paused)
}

func TestRemoveAssetWithStrategiesRefused(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))
	require.NoError(t, svc.AddStrategy(manager, "USDC", "0xaaa"))

	err := svc.RemoveAsset(admin, "USDC")
	assert.Error(t, err)

	require.NoError(t, svc.RemoveStrategy(manager, "USDC", "0xaaa"))
	require.NoError(t, svc.RemoveAsset(admin, "USDC"))
}

func TestAssetPauseResume(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AddAsset(admin, "USDC", 6))

	require.NoError(t, svc.PauseAsset(admin, "USDC"))
	asset, err := svc.GetAsset("USDC")
	require.NoError(t, err)
	assert.True(t, asset.Paused)

	require.NoError(t, svc.ResumeAsset(admin, "USDC"))
	asset, err = svc.GetAsset("USDC")
	require.NoError(t, err)
	assert.False(t, asset.Paused)
}

func TestAssetOpsRequireAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AddAsset(manager, "USDC", 6)
	assert.True(t, domain.IsUnauthorized(err))

	err = svc.AddChain(manager, 1, "ethereum")
	assert.True(t, domain.IsUnauthorized(err))
}

func TestChainWhitelist(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.AddChain(admin, 42161, "arbitrum"))
	require.NoError(t, svc.SetChainEnabled(admin, 42161, false))

	chain, err := svc.GetChain(42161)
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.False(t, chain.Enabled)

	err = svc.SetChainEnabled(admin, 999, true)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

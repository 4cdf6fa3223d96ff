package allocation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	"github.com/royaltyfi/vaultd/internal/modules/ledger"
	"github.com/royaltyfi/vaultd/internal/modules/registry"
	vaulttesting "github.com/royaltyfi/vaultd/internal/testing"
)

const (
	admin   = "0xadmin"
	manager = "0xmanager"
	agent   = "0xagent"
	nobody  = "0xnobody"
)

type engineFixture struct {
	engine   *Service
	registry *registry.Service
	ledger   *ledger.Service
	resolver *Resolver
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	vaultDB, cleanupVault := vaulttesting.NewTestDB(t, "vault")
	t.Cleanup(cleanupVault)
	ledgerDB, cleanupLedger := vaulttesting.NewTestDB(t, "ledger")
	t.Cleanup(cleanupLedger)

	log := zerolog.Nop()
	bus := events.NewBus(log)
	gate := auth.NewGate(auth.NewRepository(vaultDB.Conn(), log), bus, log)
	require.NoError(t, gate.Bootstrap(admin, agent))
	require.NoError(t, gate.Grant(admin, manager, domain.RoleManager))

	ledgerSvc := ledger.NewService(ledger.NewRepository(ledgerDB.Conn(), log), log)
	regSvc := registry.NewService(registry.NewRepository(vaultDB.Conn(), log), gate, ledgerSvc, bus, log)
	resolver := NewResolver()
	engine := NewService(regSvc, ledgerSvc, resolver, gate, bus, log)

	return &engineFixture{engine: engine, registry: regSvc, ledger: ledgerSvc, resolver: resolver}
}

// addStrategy registers a handle with weight and binds a fresh mock to it.
func (f *engineFixture) addStrategy(t *testing.T, asset, handle string, weightBps int64) *vaulttesting.MockStrategy {
	t.Helper()
	require.NoError(t, f.registry.AddStrategy(manager, asset, handle))
	require.NoError(t, f.registry.SetWeight(manager, asset, handle, weightBps))
	mock := vaulttesting.NewMockStrategy()
	f.resolver.Register(handle, mock)
	return mock
}

// fund credits the vault's on-hand balance directly.
func (f *engineFixture) fund(t *testing.T, asset string, amount int64) {
	t.Helper()
	require.NoError(t, f.ledger.Repo().Credit("deposit", asset, decimal.NewFromInt(amount), true, ""))
}

func TestDeployWeightedSplit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 6000)
	b := f.addStrategy(t, "USDC", "0xbbb", 4000)
	f.fund(t, "USDC", 1000)

	report, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Equal(t, "1000", report.Moved.String())

	require.Len(t, a.ExecuteCalls, 1)
	assert.Equal(t, "600", a.ExecuteCalls[0].String())
	require.Len(t, b.ExecuteCalls, 1)
	assert.Equal(t, "400", b.ExecuteCalls[0].String())

	onHand, err := f.ledger.OnHand("USDC")
	require.NoError(t, err)
	assert.True(t, onHand.IsZero())

	depA, err := f.ledger.Deployed("USDC", "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, "600", depA.String())
}

func TestDeployWeightedRemainderToLastActive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 5000)
	b := f.addStrategy(t, "USDC", "0xbbb", 5000)
	f.fund(t, "USDC", 101)

	report, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(101), ModeWeighted)
	require.NoError(t, err)

	// Floor split is 50/50; the leftover unit lands on the last strategy so
	// the total moved equals the request exactly.
	assert.Equal(t, "50", a.ExecuteCalls[0].String())
	assert.Equal(t, "51", b.ExecuteCalls[0].String())
	assert.Equal(t, "101", report.Moved.String())
}

func TestDeployEqualSplit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 0)
	b := f.addStrategy(t, "USDC", "0xbbb", 0)
	c := f.addStrategy(t, "USDC", "0xccc", 0)
	f.fund(t, "USDC", 100)

	report, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(100), ModeEqual)
	require.NoError(t, err)

	assert.Equal(t, "33", a.ExecuteCalls[0].String())
	assert.Equal(t, "33", b.ExecuteCalls[0].String())
	assert.Equal(t, "34", c.ExecuteCalls[0].String())
	assert.Equal(t, "100", report.Moved.String())
}

func TestDeploySkipsPausedStrategy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 6000)
	b := f.addStrategy(t, "USDC", "0xbbb", 4000)
	require.NoError(t, f.registry.PauseStrategy(manager, "USDC", "0xbbb"))
	f.fund(t, "USDC", 1000)

	report, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)

	// The paused strategy's weight is redistributed, not stranded.
	assert.Equal(t, "1000", a.ExecuteCalls[0].String())
	assert.Empty(t, b.ExecuteCalls)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomeDeployed, report.Outcomes[0].Status)
	assert.Equal(t, OutcomeSkippedPause, report.Outcomes[1].Status)
}

func TestDeployInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	f.addStrategy(t, "USDC", "0xaaa", 10000)
	f.fund(t, "USDC", 100)

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(101), ModeWeighted)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestDeployPausedAssetRefused(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	f.addStrategy(t, "USDC", "0xaaa", 10000)
	f.fund(t, "USDC", 1000)
	require.NoError(t, f.registry.PauseAsset(admin, "USDC"))

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(100), ModeWeighted)
	assert.ErrorIs(t, err, domain.ErrAssetPaused)
}

func TestDeployRequiresAgentRole(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	f.addStrategy(t, "USDC", "0xaaa", 10000)
	f.fund(t, "USDC", 1000)

	_, err := f.engine.Deploy(context.Background(), nobody, "USDC", decimal.NewFromInt(100), ModeWeighted)
	assert.True(t, domain.IsUnauthorized(err))

	onHand, err := f.ledger.OnHand("USDC")
	require.NoError(t, err)
	assert.Equal(t, "1000", onHand.String())
}

func TestDeployPartialFailureLeavesLedgerConsistent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 5000)
	b := f.addStrategy(t, "USDC", "0xbbb", 5000)
	b.FailExecute = true
	f.fund(t, "USDC", 1000)

	report, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)

	assert.False(t, report.Complete)
	assert.Equal(t, "500", report.Moved.String())
	assert.Equal(t, OutcomeDeployed, report.Outcomes[0].Status)
	assert.Equal(t, OutcomeFailed, report.Outcomes[1].Status)

	// The failed strategy's share stays on hand and its ledger row stays zero.
	onHand, err := f.ledger.OnHand("USDC")
	require.NoError(t, err)
	assert.Equal(t, "500", onHand.String())

	depB, err := f.ledger.Deployed("USDC", "0xbbb")
	require.NoError(t, err)
	assert.True(t, depB.IsZero())

	total, err := f.ledger.TotalAssets("USDC")
	require.NoError(t, err)
	assert.Equal(t, "1000", total.String())

	require.Len(t, a.ExecuteCalls, 1)
}

func TestHarvestRealizesYield(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 10000)
	f.fund(t, "USDC", 1000)

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)

	// Simulate 50 units of accrued yield.
	a.SetBalance(decimal.NewFromInt(1050))

	report, err := f.engine.Harvest(context.Background(), agent, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "50", report.Moved.String())
	assert.Equal(t, OutcomeHarvested, report.Outcomes[0].Status)
	assert.Equal(t, 1, a.HarvestCalls)

	onHand, err := f.ledger.OnHand("USDC")
	require.NoError(t, err)
	assert.Equal(t, "50", onHand.String())

	entry, err := f.ledger.StrategyLedger("USDC", "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, "50", entry.Harvested.String())
	assert.Equal(t, "1000", entry.Deployed.String())
}

func TestHarvestIncludesPausedStrategies(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 10000)
	f.fund(t, "USDC", 1000)

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)

	require.NoError(t, f.registry.PauseStrategy(manager, "USDC", "0xaaa"))
	a.SetBalance(decimal.NewFromInt(1020))

	// Pausing stops deployments, not collecting what already accrued.
	report, err := f.engine.Harvest(context.Background(), agent, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "20", report.Moved.String())
}

func TestHarvestNoYield(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 10000)
	f.fund(t, "USDC", 1000)

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)

	report, err := f.engine.Harvest(context.Background(), agent, "USDC")
	require.NoError(t, err)
	assert.True(t, report.Moved.IsZero())
	assert.Equal(t, OutcomeNoYield, report.Outcomes[0].Status)
	assert.Equal(t, 0, a.HarvestCalls)
}

func TestEmergencyExit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 6000)
	b := f.addStrategy(t, "USDC", "0xbbb", 4000)
	f.fund(t, "USDC", 1000)

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)

	report, err := f.engine.EmergencyExit(context.Background(), admin, "USDC")
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Equal(t, "1000", report.Moved.String())
	assert.Equal(t, 1, a.EmergencyExitCalls)
	assert.Equal(t, 1, b.EmergencyExitCalls)

	// Everything is back on hand and deployed totals are reset.
	onHand, err := f.ledger.OnHand("USDC")
	require.NoError(t, err)
	assert.Equal(t, "1000", onHand.String())

	depA, err := f.ledger.Deployed("USDC", "0xaaa")
	require.NoError(t, err)
	assert.True(t, depA.IsZero())

	// The circuit breaker refuses further deployments until an admin resumes.
	_, err = f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(100), ModeWeighted)
	assert.ErrorIs(t, err, domain.ErrAssetPaused)

	require.NoError(t, f.registry.ResumeAsset(admin, "USDC"))
	_, err = f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(100), ModeWeighted)
	require.NoError(t, err)
}

func TestEmergencyExitRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	f.addStrategy(t, "USDC", "0xaaa", 10000)

	_, err := f.engine.EmergencyExit(context.Background(), agent, "USDC")
	assert.True(t, domain.IsUnauthorized(err))
}

func TestEmergencyExitPartialFailureStillTripsBreaker(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 5000)
	b := f.addStrategy(t, "USDC", "0xbbb", 5000)
	b.FailEmergencyExit = true
	f.fund(t, "USDC", 1000)

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(1000), ModeWeighted)
	require.NoError(t, err)

	report, err := f.engine.EmergencyExit(context.Background(), admin, "USDC")
	require.NoError(t, err)
	assert.False(t, report.Complete)
	assert.Equal(t, "500", report.Moved.String())
	assert.Equal(t, 1, a.EmergencyExitCalls)

	// The stuck strategy's ledger entry is untouched so the shortfall stays visible.
	depB, err := f.ledger.Deployed("USDC", "0xbbb")
	require.NoError(t, err)
	assert.Equal(t, "500", depB.String())

	asset, err := f.registry.GetAsset("USDC")
	require.NoError(t, err)
	assert.True(t, asset.Paused)
}

func TestTotalAssetsConservedThroughCycle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.AddAsset(admin, "USDC", 6))
	a := f.addStrategy(t, "USDC", "0xaaa", 7000)
	f.addStrategy(t, "USDC", "0xbbb", 3000)
	f.fund(t, "USDC", 12345)

	check := func(want string) {
		t.Helper()
		total, err := f.ledger.TotalAssets("USDC")
		require.NoError(t, err)
		assert.Equal(t, want, total.String())
	}

	check("12345")

	_, err := f.engine.Deploy(context.Background(), agent, "USDC", decimal.NewFromInt(12345), ModeWeighted)
	require.NoError(t, err)
	check("12345")

	a.SetBalance(a.ExecuteCalls[0].Add(decimal.NewFromInt(100)))
	_, err = f.engine.Harvest(context.Background(), agent, "USDC")
	require.NoError(t, err)
	check("12445")

	_, err = f.engine.EmergencyExit(context.Background(), admin, "USDC")
	require.NoError(t, err)
	check("12445")
}

func TestPlanModeValidation(t *testing.T) {
	strategies := []domain.StrategyInfo{{Handle: "0xaaa", WeightBps: 10000}}

	_, err := plan(strategies, decimal.NewFromInt(100), "sideways")
	assert.Error(t, err)

	_, err = plan([]domain.StrategyInfo{{Handle: "0xaaa", Paused: true}}, decimal.NewFromInt(100), ModeEqual)
	assert.Error(t, err)
}

func TestPlanWeightedFallsBackToEqualWhenUnweighted(t *testing.T) {
	strategies := []domain.StrategyInfo{
		{Handle: "0xaaa", WeightBps: 0},
		{Handle: "0xbbb", WeightBps: 0},
	}

	allocations, err := plan(strategies, decimal.NewFromInt(100), ModeWeighted)
	require.NoError(t, err)
	assert.Equal(t, "50", allocations["0xaaa"].String())
	assert.Equal(t, "50", allocations["0xbbb"].String())
}

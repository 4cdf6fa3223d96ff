package vault

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
	admin  = "0xadmin"
	bridge = "0xbridge"
	alice  = "0xalice"
	bob    = "0xbob"
)

type fixture struct {
	vault    *Service
	registry *registry.Service
	ledger   *ledger.Service
	bridge   *vaulttesting.MockBridgeClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vaultDB, cleanupVault := vaulttesting.NewTestDB(t, "vault")
	t.Cleanup(cleanupVault)
	ledgerDB, cleanupLedger := vaulttesting.NewTestDB(t, "ledger")
	t.Cleanup(cleanupLedger)

	log := zerolog.Nop()
	bus := events.NewBus(log)
	gate := auth.NewGate(auth.NewRepository(vaultDB.Conn(), log), bus, log)
	require.NoError(t, gate.Bootstrap(admin, ""))
	require.NoError(t, gate.Grant(admin, bridge, domain.RoleBridge))

	ledgerSvc := ledger.NewService(ledger.NewRepository(ledgerDB.Conn(), log), log)
	regSvc := registry.NewService(registry.NewRepository(vaultDB.Conn(), log), gate, ledgerSvc, bus, log)
	bridgeClient := &vaulttesting.MockBridgeClient{}
	svc := NewService(regSvc, ledgerSvc, gate, bridgeClient, bus, log)

	require.NoError(t, regSvc.AddAsset(admin, "USDC", 6))
	require.NoError(t, regSvc.AddChain(admin, 42161, "arbitrum"))

	return &fixture{vault: svc, registry: regSvc, ledger: ledgerSvc, bridge: bridgeClient}
}

func TestFirstDepositMintsOneToOne(t *testing.T) {
	f := newFixture(t)

	shares, err := f.vault.Deposit(alice, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "1000", shares.String())

	summary, err := f.ledger.Summary("USDC")
	require.NoError(t, err)
	assert.Equal(t, "1000", summary.OnHand.String())
	assert.Equal(t, "1000", summary.Received.String())
	assert.Equal(t, "1000", summary.TotalShares.String())
}

func TestLaterDepositsPricedAgainstTotalAssets(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Deposit(alice, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)

	// Yield arrives without minting shares, so the pool is worth 1100 with a
	// supply of 1000.
	require.NoError(t, f.ledger.Repo().Credit("harvest", "USDC", decimal.NewFromInt(100), false, ""))

	shares, err := f.vault.Deposit(bob, "USDC", decimal.NewFromInt(550))
	require.NoError(t, err)
	// floor(550 * 1000 / 1100) = 500
	assert.Equal(t, "500", shares.String())
}

func TestDepositShareFloorFavorsPool(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Deposit(alice, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Repo().Credit("harvest", "USDC", decimal.NewFromInt(100), false, ""))

	// floor(100 * 1000 / 1100) = 90, not 91.
	shares, err := f.vault.Deposit(bob, "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "90", shares.String())
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Deposit(alice, "USDC", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.vault.Deposit(alice, "DOGE", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrUnsupportedAsset)

	require.NoError(t, f.registry.PauseAsset(admin, "USDC"))
	_, err = f.vault.Deposit(alice, "USDC", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrAssetPaused)
}

func TestWithdrawBurnsCeil(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Deposit(alice, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Repo().Credit("harvest", "USDC", decimal.NewFromInt(100), false, ""))

	// ceil(100 * 1000 / 1100) = ceil(90.9) = 91.
	burned, err := f.vault.Withdraw(alice, "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "91", burned.String())

	held, err := f.ledger.SharesOf(alice, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "909", held.String())
}

func TestWithdrawBeyondOnHandFailsClosed(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Deposit(alice, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)

	// Move most of the pool out of reach; deployed funds are not unwound
	// to satisfy withdrawals.
	require.NoError(t, f.ledger.Repo().ApplyDeployment("USDC", "0xaaa", decimal.NewFromInt(900)))

	_, err = f.vault.Withdraw(alice, "USDC", decimal.NewFromInt(500))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Nothing moved.
	held, err := f.ledger.SharesOf(alice, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "1000", held.String())
}

func TestWithdrawBeyondSharesRefused(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Deposit(alice, "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = f.vault.Deposit(bob, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)

	_, err = f.vault.Withdraw(alice, "USDC", decimal.NewFromInt(200))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestWithdrawAllowedWhileAssetPaused(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Deposit(alice, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.NoError(t, f.registry.PauseAsset(admin, "USDC"))

	burned, err := f.vault.Withdraw(alice, "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "100", burned.String())
}

func TestReceiveFromBridge(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.vault.ReceiveFromBridge(bridge, "USDC", decimal.NewFromInt(500), 42161, "0xtx1"))

	summary, err := f.ledger.Summary("USDC")
	require.NoError(t, err)
	assert.Equal(t, "500", summary.OnHand.String())
	assert.Equal(t, "500", summary.Received.String())
	// Bridged funds mint no shares.
	assert.True(t, summary.TotalShares.IsZero())
}

func TestReceiveRequiresBridgeRole(t *testing.T) {
	f := newFixture(t)

	err := f.vault.ReceiveFromBridge(alice, "USDC", decimal.NewFromInt(500), 42161, "0xtx1")
	assert.True(t, domain.IsUnauthorized(err))
}

func TestReceiveFromUnknownChainRefused(t *testing.T) {
	f := newFixture(t)

	err := f.vault.ReceiveFromBridge(bridge, "USDC", decimal.NewFromInt(500), 999, "0xtx1")
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestSendToChain(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.vault.ReceiveFromBridge(bridge, "USDC", decimal.NewFromInt(500), 42161, "0xtx1"))

	err := f.vault.SendToChain(context.Background(), bridge, "USDC", decimal.NewFromInt(200), 42161, "0xdest")
	require.NoError(t, err)

	require.Len(t, f.bridge.Sends, 1)
	assert.Equal(t, "200", f.bridge.Sends[0].Amount.String())
	assert.Equal(t, int64(42161), f.bridge.Sends[0].DestChainID)

	onHand, err := f.ledger.OnHand("USDC")
	require.NoError(t, err)
	assert.Equal(t, "300", onHand.String())
}

func TestSendToDisabledChainRefused(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.vault.ReceiveFromBridge(bridge, "USDC", decimal.NewFromInt(500), 42161, "0xtx1"))
	require.NoError(t, f.registry.SetChainEnabled(admin, 42161, false))

	err := f.vault.SendToChain(context.Background(), bridge, "USDC", decimal.NewFromInt(100), 42161, "0xdest")
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
	assert.Empty(t, f.bridge.Sends)
}

func TestSendFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.vault.ReceiveFromBridge(bridge, "USDC", decimal.NewFromInt(500), 42161, "0xtx1"))
	f.bridge.FailSend = true

	err := f.vault.SendToChain(context.Background(), bridge, "USDC", decimal.NewFromInt(100), 42161, "0xdest")
	assert.Error(t, err)

	onHand, err := f.ledger.OnHand("USDC")
	require.NoError(t, err)
	assert.Equal(t, "500", onHand.String())
}

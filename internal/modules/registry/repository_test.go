package registry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royaltyfi/vaultd/internal/domain"
	vaulttesting "github.com/royaltyfi/vaultd/internal/testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := vaulttesting.NewTestDB(t, "vault")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestInsertAndGetAsset(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.InsertAsset("USDC", 6))

	asset, err := repo.GetAsset("USDC")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, "USDC", asset.Symbol)
	assert.Equal(t, 6, asset.Decimals)
	assert.False(t, asset.Paused)
}

func TestGetAssetMissing(t *testing.T) {
	repo := newTestRepo(t)

	asset, err := repo.GetAsset("WETH")
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestSetAssetPausedUnknownAsset(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SetAssetPaused("WETH", true)
	assert.ErrorIs(t, err, domain.ErrUnsupportedAsset)
}

func TestInsertStrategyAssignsPositions(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertAsset("USDC", 6))

	require.NoError(t, repo.InsertStrategy("USDC", "0xaaa"))
	require.NoError(t, repo.InsertStrategy("USDC", "0xbbb"))
	require.NoError(t, repo.InsertStrategy("USDC", "0xccc"))

	strategies, err := repo.ListStrategies("USDC")
	require.NoError(t, err)
	require.Len(t, strategies, 3)
	for i, s := range strategies {
		assert.Equal(t, i, s.Position)
	}
	assert.Equal(t, "0xaaa", strategies[0].Handle)
	assert.Equal(t, "0xccc", strategies[2].Handle)
}

func TestDeleteStrategySwapRemove(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertAsset("USDC", 6))
	require.NoError(t, repo.InsertStrategy("USDC", "0xaaa"))
	require.NoError(t, repo.InsertStrategy("USDC", "0xbbb"))
	require.NoError(t, repo.InsertStrategy("USDC", "0xccc"))

	// Removing the middle entry moves the last entry into its slot.
	require.NoError(t, repo.DeleteStrategy("USDC", "0xbbb"))

	strategies, err := repo.ListStrategies("USDC")
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	assert.Equal(t, "0xaaa", strategies[0].Handle)
	assert.Equal(t, 0, strategies[0].Position)
	assert.Equal(t, "0xccc", strategies[1].Handle)
	assert.Equal(t, 1, strategies[1].Position)
}

func TestDeleteStrategyLastEntry(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertAsset("USDC", 6))
	require.NoError(t, repo.InsertStrategy("USDC", "0xaaa"))
	require.NoError(t, repo.InsertStrategy("USDC", "0xbbb"))

	require.NoError(t, repo.DeleteStrategy("USDC", "0xbbb"))

	strategies, err := repo.ListStrategies("USDC")
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "0xaaa", strategies[0].Handle)
	assert.Equal(t, 0, strategies[0].Position)
}

func TestDeleteStrategyNotRegistered(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertAsset("USDC", 6))

	err := repo.DeleteStrategy("USDC", "0xmissing")
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestSetWeight(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertAsset("USDC", 6))
	require.NoError(t, repo.InsertStrategy("USDC", "0xaaa"))

	require.NoError(t, repo.SetWeight("USDC", "0xaaa", 2500))

	s, err := repo.GetStrategy("USDC", "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, int64(2500), s.WeightBps)
}

func TestSetWeightNotRegistered(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SetWeight("USDC", "0xmissing", 100)
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestChainLifecycle(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.InsertChain(42161, "arbitrum"))

	chain, err := repo.GetChain(42161)
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.Equal(t, "arbitrum", chain.Name)
	assert.True(t, chain.Enabled)

	require.NoError(t, repo.SetChainEnabled(42161, false))
	chain, err = repo.GetChain(42161)
	require.NoError(t, err)
	assert.False(t, chain.Enabled)
}

func TestCountStrategiesPerAsset(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertAsset("USDC", 6))
	require.NoError(t, repo.InsertAsset("WETH", 18))
	require.NoError(t, repo.InsertStrategy("USDC", "0xaaa"))
	require.NoError(t, repo.InsertStrategy("WETH", "0xbbb"))
	require.NoError(t, repo.InsertStrategy("WETH", "0xccc"))

	count, err := repo.CountStrategies("WETH")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

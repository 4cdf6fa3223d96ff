package reliability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	"github.com/royaltyfi/vaultd/internal/modules/ledger"
	vaulttesting "github.com/royaltyfi/vaultd/internal/testing"
)

type stubAssets struct {
	assets []domain.Asset
}

func (s *stubAssets) ListAssets() ([]domain.Asset, error) {
	return s.assets, nil
}

func newTestBackup(t *testing.T, retention int) (*BackupService, *ledger.Repository, string) {
	t.Helper()
	db, cleanup := vaulttesting.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	repo := ledger.NewRepository(db.Conn(), log)
	ledgerSvc := ledger.NewService(repo, log)
	assets := &stubAssets{assets: []domain.Asset{{Symbol: "USDC", Decimals: 6}}}
	backupDir := t.TempDir()

	svc := NewBackupService(ledgerSvc, assets, []string{db.Path()}, backupDir, retention, events.NewBus(log), log)
	return svc, repo, backupDir
}

func TestCreateBackupAndReadSnapshot(t *testing.T) {
	svc, repo, _ := newTestBackup(t, 5)
	require.NoError(t, repo.Credit("deposit", "USDC", decimal.NewFromInt(1000), true, ""))
	require.NoError(t, repo.ApplyDeployment("USDC", "0xaaa", decimal.NewFromInt(600)))

	archivePath, err := svc.CreateBackup()
	require.NoError(t, err)
	assert.FileExists(t, archivePath)

	snap, err := ReadSnapshot(archivePath)
	require.NoError(t, err)
	require.Len(t, snap.Assets, 1)
	assert.Equal(t, "USDC", snap.Assets[0].Asset)
	assert.Equal(t, "400", snap.Assets[0].OnHand)
	assert.Equal(t, "1000", snap.Assets[0].Received)
	require.Len(t, snap.Assets[0].Strategies, 1)
	assert.Equal(t, "600", snap.Assets[0].Strategies[0].Deployed)

	totals := snap.Totals()
	assert.Equal(t, "1000", totals["USDC"].String())
}

func TestBackupRetentionPrunesOldest(t *testing.T) {
	svc, _, backupDir := newTestBackup(t, 2)

	// Seed three fake archives with ascending timestamps in their names.
	for _, stamp := range []string{"2026-01-01-000000", "2026-01-02-000000", "2026-01-03-000000"} {
		name := filepath.Join(backupDir, "vaultd-backup-"+stamp+".tar.gz")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}

	_, err := svc.CreateBackup()
	require.NoError(t, err)

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// The oldest seeded archives are gone; the newest seeded one and the
	// fresh archive remain.
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "2026-01-01")
		assert.NotContains(t, e.Name(), "2026-01-02")
	}
}

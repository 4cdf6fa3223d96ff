// Package reliability provides backup and recovery for the vault's state.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	"github.com/royaltyfi/vaultd/internal/modules/ledger"
)

// AssetLister is the registry slice the backup service needs.
type AssetLister interface {
	ListAssets() ([]domain.Asset, error)
}

// Snapshot is a point-in-time export of the vault's financial state. It is
// written alongside the raw database copies so the books can be inspected or
// re-checked without a SQLite client.
type Snapshot struct {
	TakenAt time.Time       `msgpack:"taken_at"`
	Assets  []AssetSnapshot `msgpack:"assets"`
}

// AssetSnapshot is one asset's ledger position within a snapshot.
type AssetSnapshot struct {
	Asset       string             `msgpack:"asset"`
	Received    string             `msgpack:"received"`
	OnHand      string             `msgpack:"on_hand"`
	TotalShares string             `msgpack:"total_shares"`
	Strategies  []StrategySnapshot `msgpack:"strategies"`
}

// StrategySnapshot is one strategy's ledger position within a snapshot.
type StrategySnapshot struct {
	Handle    string `msgpack:"handle"`
	Deployed  string `msgpack:"deployed"`
	Harvested string `msgpack:"harvested"`
}

// BackupService archives the vault's databases plus a msgpack ledger
// snapshot into timestamped tar.gz files and prunes old ones.
type BackupService struct {
	ledger    *ledger.Service
	assets    AssetLister
	dbPaths   []string
	backupDir string
	retention int
	bus       *events.Bus
	log       zerolog.Logger
}

// NewBackupService creates a new backup service. retention is the number of
// archives to keep; older ones are pruned after each run.
func NewBackupService(ledgerSvc *ledger.Service, assets AssetLister, dbPaths []string, backupDir string, retention int, bus *events.Bus, log zerolog.Logger) *BackupService {
	return &BackupService{
		ledger:    ledgerSvc,
		assets:    assets,
		dbPaths:   dbPaths,
		backupDir: backupDir,
		retention: retention,
		bus:       bus,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// BuildSnapshot exports the current ledger state.
func (s *BackupService) BuildSnapshot() (*Snapshot, error) {
	assets, err := s.assets.ListAssets()
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{TakenAt: time.Now().UTC()}
	for _, asset := range assets {
		summary, err := s.ledger.Summary(asset.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", asset.Symbol, err)
		}

		as := AssetSnapshot{
			Asset:       asset.Symbol,
			Received:    summary.Received.String(),
			OnHand:      summary.OnHand.String(),
			TotalShares: summary.TotalShares.String(),
		}
		for _, st := range summary.Strategies {
			as.Strategies = append(as.Strategies, StrategySnapshot{
				Handle:    st.Handle,
				Deployed:  st.Deployed.String(),
				Harvested: st.Harvested.String(),
			})
		}
		snapshot.Assets = append(snapshot.Assets, as)
	}

	return snapshot, nil
}

// Totals returns the snapshot's total assets per asset, computed the same way
// share pricing does.
func (snap *Snapshot) Totals() map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(snap.Assets))
	for _, a := range snap.Assets {
		total, err := decimal.NewFromString(a.OnHand)
		if err != nil {
			continue
		}
		for _, st := range a.Strategies {
			d, err := decimal.NewFromString(st.Deployed)
			if err != nil {
				continue
			}
			total = total.Add(d)
		}
		totals[a.Asset] = total
	}
	return totals
}

// CreateBackup writes a timestamped tar.gz archive containing the msgpack
// snapshot and copies of the database files, then prunes old archives.
func (s *BackupService) CreateBackup() (string, error) {
	start := time.Now()

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	snapshot, err := s.BuildSnapshot()
	if err != nil {
		return "", err
	}
	snapBytes, err := msgpack.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	archiveName := fmt.Sprintf("vaultd-backup-%s.tar.gz", start.UTC().Format("2006-01-02-150405"))
	archivePath := filepath.Join(s.backupDir, archiveName)

	if err := s.writeArchive(archivePath, snapBytes); err != nil {
		_ = os.Remove(archivePath)
		return "", err
	}

	pruned, err := s.prune()
	if err != nil {
		s.log.Warn().Err(err).Msg("Backup retention pruning failed")
	}

	s.log.Info().
		Str("archive", archiveName).
		Int("pruned", pruned).
		Dur("elapsed", time.Since(start)).
		Msg("Backup completed")
	s.bus.Publish(events.BackupCompleted, "reliability", map[string]interface{}{
		"archive": archiveName,
		"pruned":  pruned,
	})

	return archivePath, nil
}

func (s *BackupService) writeArchive(path string, snapshot []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	// Snapshot first so a truncated archive still carries the books.
	hdr := &tar.Header{
		Name:    "ledger-snapshot.msgpack",
		Mode:    0o644,
		Size:    int64(len(snapshot)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	if _, err := tw.Write(snapshot); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	for _, dbPath := range s.dbPaths {
		if err := s.addFile(tw, dbPath); err != nil {
			return err
		}
	}

	return nil
}

func (s *BackupService) addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn().Str("path", path).Msg("Database file missing, skipping in backup")
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	hdr := &tar.Header{
		Name:    filepath.Base(path),
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", path, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to copy %s into archive: %w", path, err)
	}
	return nil
}

// prune removes the oldest archives beyond the retention count.
func (s *BackupService) prune() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return 0, err
	}

	var archives []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "vaultd-backup-") && strings.HasSuffix(e.Name(), ".tar.gz") {
			archives = append(archives, e.Name())
		}
	}
	// Timestamped names sort chronologically.
	sort.Strings(archives)

	pruned := 0
	for len(archives)-pruned > s.retention {
		victim := archives[pruned]
		if err := os.Remove(filepath.Join(s.backupDir, victim)); err != nil {
			return pruned, fmt.Errorf("failed to remove %s: %w", victim, err)
		}
		s.log.Debug().Str("archive", victim).Msg("Pruned old backup")
		pruned++
	}

	return pruned, nil
}

// ReadSnapshot loads the msgpack snapshot out of a backup archive.
func ReadSnapshot(archivePath string) (*Snapshot, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		if hdr.Name != "ledger-snapshot.msgpack" {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		var snap Snapshot
		if err := msgpack.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		return &snap, nil
	}

	return nil, fmt.Errorf("archive has no ledger snapshot")
}

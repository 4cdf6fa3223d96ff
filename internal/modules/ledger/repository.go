// Package ledger implements the vault's bookkeeping: cumulative received,
// deployed and harvested totals per asset and per strategy, the on-hand
// balance, share accounting, and the append-only audit trail backing it all.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/database"
	"github.com/royaltyfi/vaultd/internal/domain"
)

// Repository handles ledger database operations.
// Database: ledger.db (asset_ledger, strategy_ledger, shares, ledger_events)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// AuditEntry is one row of the append-only audit trail.
type AuditEntry struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Asset     string          `json:"asset"`
	Handle    string          `json:"handle,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Detail    string          `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func scanAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt ledger amount %q: %w", raw, err)
	}
	return d, nil
}

// AssetLedger returns the per-asset totals. Missing rows read as zero.
func (r *Repository) AssetLedger(asset string) (*domain.AssetLedger, error) {
	var received, onHand string
	err := r.db.QueryRow(
		"SELECT received, on_hand FROM asset_ledger WHERE asset = ?", asset,
	).Scan(&received, &onHand)
	if err == sql.ErrNoRows {
		return &domain.AssetLedger{Asset: asset, Received: decimal.Zero, OnHand: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset ledger for %s: %w", asset, err)
	}

	rec, err := scanAmount(received)
	if err != nil {
		return nil, err
	}
	oh, err := scanAmount(onHand)
	if err != nil {
		return nil, err
	}

	return &domain.AssetLedger{Asset: asset, Received: rec, OnHand: oh}, nil
}

// StrategyLedger returns the per-(asset, strategy) totals. Missing rows read
// as zero.
func (r *Repository) StrategyLedger(asset, handle string) (*domain.StrategyLedger, error) {
	var deployed, harvested string
	err := r.db.QueryRow(
		"SELECT deployed, harvested FROM strategy_ledger WHERE asset = ? AND handle = ?",
		asset, handle,
	).Scan(&deployed, &harvested)
	if err == sql.ErrNoRows {
		return &domain.StrategyLedger{Asset: asset, Handle: handle, Deployed: decimal.Zero, Harvested: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy ledger for %s/%s: %w", asset, handle, err)
	}

	dep, err := scanAmount(deployed)
	if err != nil {
		return nil, err
	}
	har, err := scanAmount(harvested)
	if err != nil {
		return nil, err
	}

	return &domain.StrategyLedger{Asset: asset, Handle: handle, Deployed: dep, Harvested: har}, nil
}

// ListStrategyLedgers returns every strategy ledger entry for the asset.
func (r *Repository) ListStrategyLedgers(asset string) ([]domain.StrategyLedger, error) {
	rows, err := r.db.Query(
		"SELECT handle, deployed, harvested FROM strategy_ledger WHERE asset = ? ORDER BY handle", asset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy ledgers for %s: %w", asset, err)
	}
	defer rows.Close()

	var entries []domain.StrategyLedger
	for rows.Next() {
		var handle, deployed, harvested string
		if err := rows.Scan(&handle, &deployed, &harvested); err != nil {
			return nil, fmt.Errorf("failed to scan strategy ledger: %w", err)
		}
		dep, err := scanAmount(deployed)
		if err != nil {
			return nil, err
		}
		har, err := scanAmount(harvested)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.StrategyLedger{
			Asset: asset, Handle: handle, Deployed: dep, Harvested: har,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy ledgers: %w", err)
	}

	return entries, nil
}

// TotalDeployed returns the sum of deployed totals across the asset's strategies.
func (r *Repository) TotalDeployed(asset string) (decimal.Decimal, error) {
	entries, err := r.ListStrategyLedgers(asset)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Deployed)
	}
	return total, nil
}

// upsertAssetLedger applies deltas to the per-asset row inside tx.
func upsertAssetLedger(tx *sql.Tx, asset string, receivedDelta, onHandDelta decimal.Decimal) error {
	var received, onHand string
	err := tx.QueryRow(
		"SELECT received, on_hand FROM asset_ledger WHERE asset = ?", asset,
	).Scan(&received, &onHand)

	now := time.Now().Unix()
	if err == sql.ErrNoRows {
		newReceived := receivedDelta
		newOnHand := onHandDelta
		if newOnHand.IsNegative() {
			return domain.ErrInsufficientBalance
		}
		_, err := tx.Exec(
			"INSERT INTO asset_ledger (asset, received, on_hand, updated_at) VALUES (?, ?, ?, ?)",
			asset, newReceived.String(), newOnHand.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert asset ledger row: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query asset ledger row: %w", err)
	}

	rec, err := scanAmount(received)
	if err != nil {
		return err
	}
	oh, err := scanAmount(onHand)
	if err != nil {
		return err
	}

	newReceived := rec.Add(receivedDelta)
	newOnHand := oh.Add(onHandDelta)
	if newOnHand.IsNegative() {
		return domain.ErrInsufficientBalance
	}

	_, err = tx.Exec(
		"UPDATE asset_ledger SET received = ?, on_hand = ?, updated_at = ? WHERE asset = ?",
		newReceived.String(), newOnHand.String(), now, asset,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset ledger row: %w", err)
	}
	return nil
}

// upsertStrategyLedger applies deltas to the per-strategy row inside tx.
// A nil deployedReset applies deployedDelta; otherwise deployed is set to
// the reset value (used by emergency exit).
func upsertStrategyLedger(tx *sql.Tx, asset, handle string, deployedDelta, harvestedDelta decimal.Decimal, deployedReset *decimal.Decimal) error {
	var deployed, harvested string
	err := tx.QueryRow(
		"SELECT deployed, harvested FROM strategy_ledger WHERE asset = ? AND handle = ?",
		asset, handle,
	).Scan(&deployed, &harvested)

	now := time.Now().Unix()
	if err == sql.ErrNoRows {
		newDeployed := deployedDelta
		if deployedReset != nil {
			newDeployed = *deployedReset
		}
		_, err := tx.Exec(
			"INSERT INTO strategy_ledger (asset, handle, deployed, harvested, updated_at) VALUES (?, ?, ?, ?, ?)",
			asset, handle, newDeployed.String(), harvestedDelta.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert strategy ledger row: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query strategy ledger row: %w", err)
	}

	dep, err := scanAmount(deployed)
	if err != nil {
		return err
	}
	har, err := scanAmount(harvested)
	if err != nil {
		return err
	}

	newDeployed := dep.Add(deployedDelta)
	if deployedReset != nil {
		newDeployed = *deployedReset
	}
	newHarvested := har.Add(harvestedDelta)

	_, err = tx.Exec(
		"UPDATE strategy_ledger SET deployed = ?, harvested = ?, updated_at = ? WHERE asset = ? AND handle = ?",
		newDeployed.String(), newHarvested.String(), now, asset, handle,
	)
	if err != nil {
		return fmt.Errorf("failed to update strategy ledger row: %w", err)
	}
	return nil
}

// appendAudit inserts an audit row inside tx.
func appendAudit(tx *sql.Tx, eventType, asset, handle string, amount decimal.Decimal, detail string) error {
	var h interface{}
	if handle != "" {
		h = handle
	}
	var d interface{}
	if detail != "" {
		d = detail
	}
	_, err := tx.Exec(
		"INSERT INTO ledger_events (event_type, asset, handle, amount, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		eventType, asset, h, amount.String(), d, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit row: %w", err)
	}
	return nil
}

// Credit books an inflow: on_hand += amount and, when countReceived is set,
// received += amount. One transaction with its audit row.
func (r *Repository) Credit(eventType, asset string, amount decimal.Decimal, countReceived bool, detail string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		receivedDelta := decimal.Zero
		if countReceived {
			receivedDelta = amount
		}
		if err := upsertAssetLedger(tx, asset, receivedDelta, amount); err != nil {
			return err
		}
		return appendAudit(tx, eventType, asset, "", amount, detail)
	})
}

// Debit books an outflow from the on-hand balance. Fails with
// ErrInsufficientBalance when on_hand would go negative.
func (r *Repository) Debit(eventType, asset string, amount decimal.Decimal, detail string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertAssetLedger(tx, asset, decimal.Zero, amount.Neg()); err != nil {
			return err
		}
		return appendAudit(tx, eventType, asset, "", amount, detail)
	})
}

// ApplyDeployment books a successful strategy deposit: on_hand -= amount,
// deployed += amount, audit row. One transaction, so the ledger reflects
// exactly the completed external call.
func (r *Repository) ApplyDeployment(asset, handle string, amount decimal.Decimal) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertAssetLedger(tx, asset, decimal.Zero, amount.Neg()); err != nil {
			return err
		}
		if err := upsertStrategyLedger(tx, asset, handle, amount, decimal.Zero, nil); err != nil {
			return err
		}
		return appendAudit(tx, "deploy", asset, handle, amount, "")
	})
}

// ApplyHarvest books harvested yield: on_hand += yield, harvested += yield.
func (r *Repository) ApplyHarvest(asset, handle string, yield decimal.Decimal) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertAssetLedger(tx, asset, decimal.Zero, yield); err != nil {
			return err
		}
		if err := upsertStrategyLedger(tx, asset, handle, decimal.Zero, yield, nil); err != nil {
			return err
		}
		return appendAudit(tx, "harvest", asset, handle, yield, "")
	})
}

// ApplyEmergencyExit books a forced withdrawal: on_hand += withdrawn and the
// strategy's deployed total is reset to zero.
func (r *Repository) ApplyEmergencyExit(asset, handle string, withdrawn decimal.Decimal) error {
	zero := decimal.Zero
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertAssetLedger(tx, asset, decimal.Zero, withdrawn); err != nil {
			return err
		}
		if err := upsertStrategyLedger(tx, asset, handle, decimal.Zero, decimal.Zero, &zero); err != nil {
			return err
		}
		return appendAudit(tx, "emergency_exit", asset, handle, withdrawn, "")
	})
}

// --- Shares ---

// SharesOf returns the owner's share balance for the asset.
func (r *Repository) SharesOf(owner, asset string) (decimal.Decimal, error) {
	var raw string
	err := r.db.QueryRow(
		"SELECT shares FROM shares WHERE owner = ? AND asset = ?", owner, asset,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query shares: %w", err)
	}
	return scanAmount(raw)
}

// TotalShares returns the share supply for the asset.
func (r *Repository) TotalShares(asset string) (decimal.Decimal, error) {
	rows, err := r.db.Query("SELECT shares FROM shares WHERE asset = ?", asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query share supply: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan shares: %w", err)
		}
		d, err := scanAmount(raw)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating shares: %w", err)
	}

	return total, nil
}

// adjustShares applies a delta to the owner's share balance inside tx.
func adjustShares(tx *sql.Tx, owner, asset string, delta decimal.Decimal) error {
	var raw string
	err := tx.QueryRow(
		"SELECT shares FROM shares WHERE owner = ? AND asset = ?", owner, asset,
	).Scan(&raw)

	now := time.Now().Unix()
	if err == sql.ErrNoRows {
		if delta.IsNegative() {
			return domain.ErrInsufficientBalance
		}
		_, err := tx.Exec(
			"INSERT INTO shares (owner, asset, shares, updated_at) VALUES (?, ?, ?, ?)",
			owner, asset, delta.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert shares row: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query shares row: %w", err)
	}

	current, err := scanAmount(raw)
	if err != nil {
		return err
	}
	updated := current.Add(delta)
	if updated.IsNegative() {
		return domain.ErrInsufficientBalance
	}

	_, err = tx.Exec(
		"UPDATE shares SET shares = ?, updated_at = ? WHERE owner = ? AND asset = ?",
		updated.String(), now, owner, asset,
	)
	if err != nil {
		return fmt.Errorf("failed to update shares row: %w", err)
	}
	return nil
}

// ApplyDeposit books a pooled-fund deposit: on_hand and received grow by
// amount, the owner is minted shares. One transaction.
func (r *Repository) ApplyDeposit(owner, asset string, amount, sharesMinted decimal.Decimal) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertAssetLedger(tx, asset, amount, amount); err != nil {
			return err
		}
		if err := adjustShares(tx, owner, asset, sharesMinted); err != nil {
			return err
		}
		return appendAudit(tx, "deposit", asset, "", amount, fmt.Sprintf(`{"owner":%q,"shares":%q}`, owner, sharesMinted.String()))
	})
}

// ApplyWithdrawal books a pooled-fund withdrawal: on_hand shrinks by amount,
// the owner's shares are burned. Fails closed on insufficient balance or shares.
func (r *Repository) ApplyWithdrawal(owner, asset string, amount, sharesBurned decimal.Decimal) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertAssetLedger(tx, asset, decimal.Zero, amount.Neg()); err != nil {
			return err
		}
		if err := adjustShares(tx, owner, asset, sharesBurned.Neg()); err != nil {
			return err
		}
		return appendAudit(tx, "withdraw", asset, "", amount, fmt.Sprintf(`{"owner":%q,"shares":%q}`, owner, sharesBurned.String()))
	})
}

// HarvestAmounts returns the audit-trail harvest amounts for a strategy, in
// insertion order. Used by the analytics service.
func (r *Repository) HarvestAmounts(asset, handle string) ([]decimal.Decimal, error) {
	rows, err := r.db.Query(
		"SELECT amount FROM ledger_events WHERE event_type = 'harvest' AND asset = ? AND handle = ? ORDER BY id",
		asset, handle,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query harvest amounts: %w", err)
	}
	defer rows.Close()

	var amounts []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan harvest amount: %w", err)
		}
		d, err := scanAmount(raw)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating harvest amounts: %w", err)
	}

	return amounts, nil
}

// RecentEvents returns the newest audit rows for an asset, capped at limit.
func (r *Repository) RecentEvents(asset string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		"SELECT id, event_type, asset, COALESCE(handle, ''), amount, COALESCE(detail, ''), created_at FROM ledger_events WHERE asset = ? ORDER BY id DESC LIMIT ?",
		asset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var raw string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.EventType, &e.Asset, &e.Handle, &raw, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		d, err := scanAmount(raw)
		if err != nil {
			return nil, err
		}
		e.Amount = d
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return entries, nil
}

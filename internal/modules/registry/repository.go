// Package registry implements the strategy registry: the whitelists of
// assets and chains and the ordered, weighted per-asset strategy lists the
// allocation engine iterates.
package registry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/database"
	"github.com/royaltyfi/vaultd/internal/domain"
)

// Repository handles registry database operations.
// Database: vault.db (assets, chains, strategies tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new registry repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "registry").Logger(),
	}
}

// --- Assets ---

// InsertAsset whitelists an asset.
func (r *Repository) InsertAsset(symbol string, decimals int) error {
	_, err := r.db.Exec(
		"INSERT INTO assets (symbol, decimals, paused, created_at) VALUES (?, ?, 0, ?)",
		symbol, decimals, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset %s: %w", symbol, err)
	}
	return nil
}

// DeleteAsset removes an asset from the whitelist.
func (r *Repository) DeleteAsset(symbol string) error {
	_, err := r.db.Exec("DELETE FROM assets WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", symbol, err)
	}
	return nil
}

// GetAsset returns the asset, or nil if it is not whitelisted.
func (r *Repository) GetAsset(symbol string) (*domain.Asset, error) {
	var a domain.Asset
	var paused int
	var createdAt int64

	err := r.db.QueryRow(
		"SELECT symbol, decimals, paused, created_at FROM assets WHERE symbol = ?", symbol,
	).Scan(&a.Symbol, &a.Decimals, &paused, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset %s: %w", symbol, err)
	}

	a.Paused = paused != 0
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

// ListAssets returns all whitelisted assets.
func (r *Repository) ListAssets() ([]domain.Asset, error) {
	rows, err := r.db.Query("SELECT symbol, decimals, paused, created_at FROM assets ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var paused int
		var createdAt int64
		if err := rows.Scan(&a.Symbol, &a.Decimals, &paused, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		a.Paused = paused != 0
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// SetAssetPaused sets or clears the emergency circuit breaker.
func (r *Repository) SetAssetPaused(symbol string, paused bool) error {
	val := 0
	if paused {
		val = 1
	}
	res, err := r.db.Exec("UPDATE assets SET paused = ? WHERE symbol = ?", val, symbol)
	if err != nil {
		return fmt.Errorf("failed to update asset pause flag: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return domain.ErrUnsupportedAsset
	}
	return nil
}

// --- Chains ---

// InsertChain whitelists a bridge destination chain.
func (r *Repository) InsertChain(chainID int64, name string) error {
	_, err := r.db.Exec(
		"INSERT INTO chains (chain_id, name, enabled, created_at) VALUES (?, ?, 1, ?)",
		chainID, name, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chain %d: %w", chainID, err)
	}
	return nil
}

// GetChain returns the chain, or nil if it is not whitelisted.
func (r *Repository) GetChain(chainID int64) (*domain.Chain, error) {
	var c domain.Chain
	var enabled int
	var createdAt int64

	err := r.db.QueryRow(
		"SELECT chain_id, name, enabled, created_at FROM chains WHERE chain_id = ?", chainID,
	).Scan(&c.ChainID, &c.Name, &enabled, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chain %d: %w", chainID, err)
	}

	c.Enabled = enabled != 0
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

// ListChains returns all whitelisted chains.
func (r *Repository) ListChains() ([]domain.Chain, error) {
	rows, err := r.db.Query("SELECT chain_id, name, enabled, created_at FROM chains ORDER BY chain_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	var chains []domain.Chain
	for rows.Next() {
		var c domain.Chain
		var enabled int
		var createdAt int64
		if err := rows.Scan(&c.ChainID, &c.Name, &enabled, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		c.Enabled = enabled != 0
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		chains = append(chains, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chains: %w", err)
	}

	return chains, nil
}

// SetChainEnabled toggles a chain without removing it from the whitelist.
func (r *Repository) SetChainEnabled(chainID int64, enabled bool) error {
	val := 0
	if enabled {
		val = 1
	}
	res, err := r.db.Exec("UPDATE chains SET enabled = ? WHERE chain_id = ?", val, chainID)
	if err != nil {
		return fmt.Errorf("failed to update chain enabled flag: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return domain.ErrUnsupportedChain
	}
	return nil
}

// --- Strategies ---

// InsertStrategy appends a strategy at the end of the asset's iteration order.
func (r *Repository) InsertStrategy(asset, handle string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM strategies WHERE asset = ?", asset,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count strategies: %w", err)
		}

		_, err := tx.Exec(
			"INSERT INTO strategies (asset, handle, weight_bps, paused, position, created_at) VALUES (?, ?, 0, 0, ?, ?)",
			asset, handle, count, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert strategy %s/%s: %w", asset, handle, err)
		}
		return nil
	})
}

// DeleteStrategy swap-removes the strategy: the last entry in iteration order
// takes the vacated position, so no other entry is silently dropped.
func (r *Repository) DeleteStrategy(asset, handle string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var removedPos int
		err := tx.QueryRow(
			"SELECT position FROM strategies WHERE asset = ? AND handle = ?", asset, handle,
		).Scan(&removedPos)
		if err == sql.ErrNoRows {
			return domain.ErrNotRegistered
		}
		if err != nil {
			return fmt.Errorf("failed to query strategy position: %w", err)
		}

		var lastPos int
		if err := tx.QueryRow(
			"SELECT MAX(position) FROM strategies WHERE asset = ?", asset,
		).Scan(&lastPos); err != nil {
			return fmt.Errorf("failed to query max position: %w", err)
		}

		if _, err := tx.Exec(
			"DELETE FROM strategies WHERE asset = ? AND handle = ?", asset, handle,
		); err != nil {
			return fmt.Errorf("failed to delete strategy %s/%s: %w", asset, handle, err)
		}

		// Swap the last entry into the hole unless we removed the last entry
		if removedPos != lastPos {
			if _, err := tx.Exec(
				"UPDATE strategies SET position = ? WHERE asset = ? AND position = ?",
				removedPos, asset, lastPos,
			); err != nil {
				return fmt.Errorf("failed to swap strategy position: %w", err)
			}
		}

		return nil
	})
}

// GetStrategy returns the registry entry, or nil if absent.
func (r *Repository) GetStrategy(asset, handle string) (*domain.StrategyInfo, error) {
	var s domain.StrategyInfo
	var paused int
	var createdAt int64

	err := r.db.QueryRow(
		"SELECT asset, handle, weight_bps, paused, position, created_at FROM strategies WHERE asset = ? AND handle = ?",
		asset, handle,
	).Scan(&s.Asset, &s.Handle, &s.WeightBps, &paused, &s.Position, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy %s/%s: %w", asset, handle, err)
	}

	s.Paused = paused != 0
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}

// ListStrategies returns the asset's strategies in iteration order.
func (r *Repository) ListStrategies(asset string) ([]domain.StrategyInfo, error) {
	rows, err := r.db.Query(
		"SELECT asset, handle, weight_bps, paused, position, created_at FROM strategies WHERE asset = ? ORDER BY position",
		asset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies for %s: %w", asset, err)
	}
	defer rows.Close()

	var strategies []domain.StrategyInfo
	for rows.Next() {
		var s domain.StrategyInfo
		var paused int
		var createdAt int64
		if err := rows.Scan(&s.Asset, &s.Handle, &s.WeightBps, &paused, &s.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		s.Paused = paused != 0
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		strategies = append(strategies, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}

	return strategies, nil
}

// CountStrategies returns the number of strategies registered for the asset.
func (r *Repository) CountStrategies(asset string) (int, error) {
	var count int
	if err := r.db.QueryRow(
		"SELECT COUNT(*) FROM strategies WHERE asset = ?", asset,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count strategies: %w", err)
	}
	return count, nil
}

// SetWeight updates a strategy's target weight in basis points.
func (r *Repository) SetWeight(asset, handle string, weightBps int64) error {
	res, err := r.db.Exec(
		"UPDATE strategies SET weight_bps = ? WHERE asset = ? AND handle = ?",
		weightBps, asset, handle,
	)
	if err != nil {
		return fmt.Errorf("failed to update weight for %s/%s: %w", asset, handle, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return domain.ErrNotRegistered
	}
	return nil
}

// SetStrategyPaused sets or clears a strategy's pause flag.
func (r *Repository) SetStrategyPaused(asset, handle string, paused bool) error {
	val := 0
	if paused {
		val = 1
	}
	res, err := r.db.Exec(
		"UPDATE strategies SET paused = ? WHERE asset = ? AND handle = ?",
		val, asset, handle,
	)
	if err != nil {
		return fmt.Errorf("failed to update pause flag for %s/%s: %w", asset, handle, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return domain.ErrNotRegistered
	}
	return nil
}

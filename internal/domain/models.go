// Package domain contains the core types shared across vaultd: assets,
// strategies, roles, amounts, and the error taxonomy. The package is pure -
// it has no infrastructure dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxWeightBps is the weight ceiling for a single strategy (100% in basis points).
const MaxWeightBps = 10000

// Asset is a fungible token accepted by the vault. An asset must be
// whitelisted before any strategy or deposit references it.
type Asset struct {
	Symbol    string    `json:"symbol"`
	Decimals  int       `json:"decimals"`
	Paused    bool      `json:"paused"` // set by emergency exit, cleared by an admin
	CreatedAt time.Time `json:"created_at"`
}

// Chain is a whitelisted bridge destination.
type Chain struct {
	ChainID   int64     `json:"chain_id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// StrategyInfo is a registry entry: an external strategy referenced by handle,
// bound to one asset, with a target weight in basis points and a pause flag.
// Position is the engine's iteration order.
type StrategyInfo struct {
	Asset     string    `json:"asset"`
	Handle    string    `json:"handle"`
	WeightBps int64     `json:"weight_bps"`
	Paused    bool      `json:"paused"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetLedger holds the per-asset cumulative totals.
type AssetLedger struct {
	Asset    string          `json:"asset"`
	Received decimal.Decimal `json:"received"`
	OnHand   decimal.Decimal `json:"on_hand"`
}

// StrategyLedger holds the per-(asset, strategy) cumulative totals.
type StrategyLedger struct {
	Asset     string          `json:"asset"`
	Handle    string          `json:"handle"`
	Deployed  decimal.Decimal `json:"deployed"`
	Harvested decimal.Decimal `json:"harvested"`
}

// ValidAmount reports whether d is a non-negative integer amount in base units.
func ValidAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Truncate(0))
}

// PositiveAmount reports whether d is a strictly positive integer amount.
func PositiveAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(0))
}

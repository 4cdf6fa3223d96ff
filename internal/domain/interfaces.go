package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Strategy is the capability surface of an external yield strategy. A
// strategy is referenced by handle, never owned: the vault has no visibility
// into its internals beyond what Balance reports.
//
// Every method may fail independently. A failed Execute must leave the funds
// with the caller; the engine treats each call as an isolated, retryable
// operation and never assumes all strategies succeed together.
type Strategy interface {
	// Execute deposits amount (base units) into the strategy.
	Execute(ctx context.Context, amount decimal.Decimal, data []byte) error

	// Harvest withdraws accrued yield back to the vault's holdings.
	Harvest(ctx context.Context, data []byte) error

	// EmergencyExit force-withdraws the entire strategy balance.
	EmergencyExit(ctx context.Context, data []byte) error

	// Balance returns the strategy's current balance in base units.
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// BridgeClient sends tokens to another chain. Best-effort: arrival is
// asynchronous and not guaranteed by the vault.
type BridgeClient interface {
	Send(ctx context.Context, asset string, amount decimal.Decimal, destChainID int64, destAddress string, data []byte) error
}

package domain

import (
	"errors"
	"fmt"
)

// Configuration errors: caller/configuration mistakes, surfaced immediately,
// never retried.
var (
	// ErrInvalidHandle - a strategy handle is empty or a zero reference.
	ErrInvalidHandle = errors.New("invalid strategy handle")
	// ErrInvalidWeight - a weight exceeds MaxWeightBps.
	ErrInvalidWeight = errors.New("invalid weight")
	// ErrAlreadyRegistered - the (asset, handle) pair already exists.
	ErrAlreadyRegistered = errors.New("strategy already registered")
	// ErrNotRegistered - the (asset, handle) pair does not exist.
	ErrNotRegistered = errors.New("strategy not registered")
	// ErrUnsupportedAsset - the asset is not whitelisted or has no strategies.
	ErrUnsupportedAsset = errors.New("unsupported asset")
	// ErrUnsupportedChain - the destination chain is not whitelisted or disabled.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrAssetPaused - the asset's emergency circuit breaker is set.
	ErrAssetPaused = errors.New("asset is paused")
	// ErrStrategyHasFunds - removal refused while the ledger shows deployed funds.
	ErrStrategyHasFunds = errors.New("strategy has deployed funds")
	// ErrLastAdmin - revocation refused because it would leave zero admins.
	ErrLastAdmin = errors.New("cannot revoke the last admin")
	// ErrInvalidAmount - an amount is negative or not an integer in base units.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ErrInsufficientBalance - checked before any external call is attempted;
// the operation fails closed.
var ErrInsufficientBalance = errors.New("insufficient balance")

// UnauthorizedError is returned when a principal lacks the required role.
// Always fatal to the calling operation, never retried automatically.
type UnauthorizedError struct {
	Principal string
	Role      Role
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: principal %q lacks role %q", e.Principal, e.Role)
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

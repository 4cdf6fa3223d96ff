// Package vault implements the deposit and withdrawal surface: pooled-fund
// share accounting and cross-chain transfers through the bridge.
package vault

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	"github.com/royaltyfi/vaultd/internal/modules/ledger"
)

// Registry is the slice of the registry the vault surface needs.
type Registry interface {
	GetAsset(symbol string) (*domain.Asset, error)
	GetChain(chainID int64) (*domain.Chain, error)
}

// Service handles deposits, withdrawals and bridge transfers.
type Service struct {
	registry Registry
	ledger   *ledger.Service
	gate     *auth.Gate
	bridge   domain.BridgeClient
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService creates a new vault service
func NewService(registry Registry, ledgerSvc *ledger.Service, gate *auth.Gate, bridge domain.BridgeClient, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		ledger:   ledgerSvc,
		gate:     gate,
		bridge:   bridge,
		bus:      bus,
		log:      log.With().Str("module", "vault").Logger(),
	}
}

func (s *Service) checkAsset(symbol string) error {
	asset, err := s.registry.GetAsset(symbol)
	if err != nil {
		return err
	}
	if asset == nil {
		return domain.ErrUnsupportedAsset
	}
	if asset.Paused {
		return domain.ErrAssetPaused
	}
	return nil
}

func (s *Service) checkChain(chainID int64) error {
	chain, err := s.registry.GetChain(chainID)
	if err != nil {
		return err
	}
	if chain == nil || !chain.Enabled {
		return domain.ErrUnsupportedChain
	}
	return nil
}

// Deposit pools funds into the vault and mints shares for the owner.
// The first depositor gets shares 1:1; later depositors get
// floor(amount * supply / totalAssets), rounding in the pool's favor.
func (s *Service) Deposit(owner, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !domain.PositiveAmount(amount) {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	if err := s.checkAsset(asset); err != nil {
		return decimal.Zero, err
	}

	supply, err := s.ledger.TotalShares(asset)
	if err != nil {
		return decimal.Zero, err
	}

	var minted decimal.Decimal
	if supply.IsZero() {
		minted = amount
	} else {
		total, err := s.ledger.TotalAssets(asset)
		if err != nil {
			return decimal.Zero, err
		}
		if total.IsZero() {
			// Supply exists but assets are gone. Refuse rather than mint
			// against a worthless pool.
			return decimal.Zero, fmt.Errorf("share supply without backing assets for %s", asset)
		}
		minted, _ = amount.Mul(supply).QuoRem(total, 0)
	}
	if !minted.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	if err := s.ledger.Repo().ApplyDeposit(owner, asset, amount, minted); err != nil {
		return decimal.Zero, err
	}

	s.log.Info().Str("owner", owner).Str("asset", asset).
		Str("amount", amount.String()).Str("shares", minted.String()).Msg("Deposit processed")
	s.bus.Publish(events.DepositProcessed, "vault", map[string]interface{}{
		"owner":  owner,
		"asset":  asset,
		"amount": amount.String(),
		"shares": minted.String(),
	})

	return minted, nil
}

// Withdraw pays amount out of the on-hand balance and burns
// ceil(amount * supply / totalAssets) of the owner's shares. Fails closed:
// deployed funds are never unwound implicitly, so a withdrawal larger than
// on_hand is refused even when total assets would cover it.
func (s *Service) Withdraw(owner, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !domain.PositiveAmount(amount) {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	// Withdrawals from a paused asset are allowed; the breaker halts
	// deployments, not exits.
	a, err := s.registry.GetAsset(asset)
	if err != nil {
		return decimal.Zero, err
	}
	if a == nil {
		return decimal.Zero, domain.ErrUnsupportedAsset
	}

	supply, err := s.ledger.TotalShares(asset)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := s.ledger.TotalAssets(asset)
	if err != nil {
		return decimal.Zero, err
	}
	if supply.IsZero() || total.IsZero() {
		return decimal.Zero, domain.ErrInsufficientBalance
	}

	// Ceiling division, rounding in the pool's favor.
	q, rem := amount.Mul(supply).QuoRem(total, 0)
	burned := q
	if !rem.IsZero() {
		burned = q.Add(decimal.NewFromInt(1))
	}

	held, err := s.ledger.SharesOf(owner, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if burned.GreaterThan(held) {
		return decimal.Zero, domain.ErrInsufficientBalance
	}

	if err := s.ledger.Repo().ApplyWithdrawal(owner, asset, amount, burned); err != nil {
		return decimal.Zero, err
	}

	s.log.Info().Str("owner", owner).Str("asset", asset).
		Str("amount", amount.String()).Str("shares", burned.String()).Msg("Withdrawal processed")
	s.bus.Publish(events.WithdrawalProcessed, "vault", map[string]interface{}{
		"owner":  owner,
		"asset":  asset,
		"amount": amount.String(),
		"shares": burned.String(),
	})

	return burned, nil
}

// ReceiveFromBridge credits funds that arrived over the bridge. Bridge role.
// No shares are minted; bridged funds belong to the pool.
func (s *Service) ReceiveFromBridge(caller, asset string, amount decimal.Decimal, srcChainID int64, txRef string) error {
	if err := s.gate.Require(caller, domain.RoleBridge); err != nil {
		return err
	}
	if !domain.PositiveAmount(amount) {
		return domain.ErrInvalidAmount
	}
	if err := s.checkAsset(asset); err != nil {
		return err
	}
	if err := s.checkChain(srcChainID); err != nil {
		return err
	}

	detail := fmt.Sprintf(`{"src_chain_id":%d,"tx_ref":%q}`, srcChainID, txRef)
	if err := s.ledger.Repo().Credit("bridge_in", asset, amount, true, detail); err != nil {
		return err
	}

	s.log.Info().Str("asset", asset).Str("amount", amount.String()).
		Int64("src_chain", srcChainID).Str("tx_ref", txRef).Msg("Bridge transfer received")
	s.bus.Publish(events.BridgeReceived, "vault", map[string]interface{}{
		"asset":        asset,
		"amount":       amount.String(),
		"src_chain_id": srcChainID,
		"tx_ref":       txRef,
	})

	return nil
}

// SendToChain moves on-hand funds to a whitelisted chain over the bridge.
// Bridge role. The ledger is debited only after the bridge client accepts
// the transfer.
func (s *Service) SendToChain(ctx context.Context, caller, asset string, amount decimal.Decimal, destChainID int64, destAddress string) error {
	if err := s.gate.Require(caller, domain.RoleBridge); err != nil {
		return err
	}
	if !domain.PositiveAmount(amount) {
		return domain.ErrInvalidAmount
	}
	if destAddress == "" {
		return fmt.Errorf("destination address is required")
	}
	if err := s.checkAsset(asset); err != nil {
		return err
	}
	if err := s.checkChain(destChainID); err != nil {
		return err
	}

	onHand, err := s.ledger.OnHand(asset)
	if err != nil {
		return err
	}
	if amount.GreaterThan(onHand) {
		return domain.ErrInsufficientBalance
	}

	if err := s.bridge.Send(ctx, asset, amount, destChainID, destAddress, nil); err != nil {
		return fmt.Errorf("bridge transfer failed: %w", err)
	}

	detail := fmt.Sprintf(`{"dest_chain_id":%d,"dest_address":%q}`, destChainID, destAddress)
	if err := s.ledger.Repo().Debit("bridge_out", asset, amount, detail); err != nil {
		s.log.Error().Err(err).Str("asset", asset).
			Msg("Bridge send succeeded but ledger debit failed")
		return err
	}

	s.log.Info().Str("asset", asset).Str("amount", amount.String()).
		Int64("dest_chain", destChainID).Str("dest", destAddress).Msg("Bridge transfer sent")
	s.bus.Publish(events.BridgeSent, "vault", map[string]interface{}{
		"asset":         asset,
		"amount":        amount.String(),
		"dest_chain_id": destChainID,
		"dest_address":  destAddress,
	})

	return nil
}

package registry

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
)

// DeployedChecker reports the deployed ledger total for an (asset, strategy)
// pair. Satisfied by the ledger service; kept as a local interface so the
// registry does not depend on the ledger package.
type DeployedChecker interface {
	Deployed(asset, handle string) (decimal.Decimal, error)
}

// Service implements the registry operations with role gating, validation
// and event emission. Registry mutations require the manager role; asset and
// chain whitelist changes require admin.
type Service struct {
	repo     *Repository
	gate     *auth.Gate
	deployed DeployedChecker
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService creates a new registry service
func NewService(repo *Repository, gate *auth.Gate, deployed DeployedChecker, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		gate:     gate,
		deployed: deployed,
		bus:      bus,
		log:      log.With().Str("service", "registry").Logger(),
	}
}

// zeroHandle matches null/zero references in any of the formats callers send.
func zeroHandle(handle string) bool {
	if handle == "" {
		return true
	}
	trimmed := strings.TrimPrefix(strings.ToLower(handle), "0x")
	if trimmed == "" {
		return true
	}
	return strings.Trim(trimmed, "0") == ""
}

// AddStrategy registers a strategy handle for an asset. Manager role.
func (s *Service) AddStrategy(caller, asset, handle string) error {
	if err := s.gate.Require(caller, domain.RoleManager); err != nil {
		return err
	}
	if zeroHandle(handle) {
		return domain.ErrInvalidHandle
	}

	a, err := s.repo.GetAsset(asset)
	if err != nil {
		return err
	}
	if a == nil {
		return domain.ErrUnsupportedAsset
	}

	existing, err := s.repo.GetStrategy(asset, handle)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAlreadyRegistered
	}

	if err := s.repo.InsertStrategy(asset, handle); err != nil {
		return err
	}

	s.log.Info().Str("asset", asset).Str("handle", handle).Msg("Strategy added")
	s.bus.Publish(events.StrategyAdded, "registry", map[string]interface{}{
		"asset": asset, "handle": handle,
	})
	return nil
}

// RemoveStrategy deregisters a strategy. Manager role. Removal is refused
// while the ledger shows deployed funds for the pair, so tracked funds are
// never orphaned.
func (s *Service) RemoveStrategy(caller, asset, handle string) error {
	if err := s.gate.Require(caller, domain.RoleManager); err != nil {
		return err
	}

	existing, err := s.repo.GetStrategy(asset, handle)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotRegistered
	}

	deployed, err := s.deployed.Deployed(asset, handle)
	if err != nil {
		return fmt.Errorf("failed to check deployed balance: %w", err)
	}
	if deployed.IsPositive() {
		return domain.ErrStrategyHasFunds
	}

	if err := s.repo.DeleteStrategy(asset, handle); err != nil {
		return err
	}

	s.log.Info().Str("asset", asset).Str("handle", handle).Msg("Strategy removed")
	s.bus.Publish(events.StrategyRemoved, "registry", map[string]interface{}{
		"asset": asset, "handle": handle,
	})
	return nil
}

// SetWeight updates a strategy's target weight. Manager role.
func (s *Service) SetWeight(caller, asset, handle string, weightBps int64) error {
	if err := s.gate.Require(caller, domain.RoleManager); err != nil {
		return err
	}
	if weightBps < 0 || weightBps > domain.MaxWeightBps {
		return domain.ErrInvalidWeight
	}

	if err := s.repo.SetWeight(asset, handle, weightBps); err != nil {
		return err
	}

	s.log.Info().Str("asset", asset).Str("handle", handle).Int64("weight_bps", weightBps).Msg("Weight updated")
	s.bus.Publish(events.WeightUpdated, "registry", map[string]interface{}{
		"asset": asset, "handle": handle, "weight_bps": weightBps,
	})
	return nil
}

// PauseStrategy excludes a strategy from new deployments. Manager role.
func (s *Service) PauseStrategy(caller, asset, handle string) error {
	if err := s.gate.Require(caller, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.SetStrategyPaused(asset, handle, true); err != nil {
		return err
	}
	s.bus.Publish(events.StrategyPaused, "registry", map[string]interface{}{
		"asset": asset, "handle": handle,
	})
	return nil
}

// ResumeStrategy re-enables a paused strategy. Manager role.
func (s *Service) ResumeStrategy(caller, asset, handle string) error {
	if err := s.gate.Require(caller, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.SetStrategyPaused(asset, handle, false); err != nil {
		return err
	}
	s.bus.Publish(events.StrategyResumed, "registry", map[string]interface{}{
		"asset": asset, "handle": handle,
	})
	return nil
}

// ListStrategies returns the asset's strategies in iteration order.
func (s *Service) ListStrategies(asset string) ([]domain.StrategyInfo, error) {
	return s.repo.ListStrategies(asset)
}

// AddAsset whitelists an asset. Admin role.
func (s *Service) AddAsset(caller, symbol string, decimals int) error {
	if err := s.gate.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if symbol == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if decimals < 0 || decimals > 36 {
		return fmt.Errorf("invalid decimals: %d", decimals)
	}

	existing, err := s.repo.GetAsset(symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAlreadyRegistered
	}

	if err := s.repo.InsertAsset(symbol, decimals); err != nil {
		return err
	}

	s.log.Info().Str("asset", symbol).Int("decimals", decimals).Msg("Asset added")
	s.bus.Publish(events.AssetAdded, "registry", map[string]interface{}{
		"asset": symbol, "decimals": decimals,
	})
	return nil
}

// RemoveAsset drops an asset from the whitelist. Admin role. Refused while
// strategies remain registered for it.
func (s *Service) RemoveAsset(caller, symbol string) error {
	if err := s.gate.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}

	existing, err := s.repo.GetAsset(symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrUnsupportedAsset
	}

	count, err := s.repo.CountStrategies(symbol)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("asset %s still has %d registered strategies", symbol, count)
	}

	if err := s.repo.DeleteAsset(symbol); err != nil {
		return err
	}

	s.bus.Publish(events.AssetRemoved, "registry", map[string]interface{}{"asset": symbol})
	return nil
}

// PauseAsset trips the asset's circuit breaker by hand. Admin role. The
// allocation engine trips the same flag automatically on emergency exit.
func (s *Service) PauseAsset(caller, symbol string) error {
	if err := s.gate.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.SetAssetPaused(symbol, true); err != nil {
		return err
	}
	s.log.Warn().Str("asset", symbol).Msg("Asset paused")
	s.bus.Publish(events.AssetPaused, "registry", map[string]interface{}{"asset": symbol})
	return nil
}

// TripAssetBreaker pauses an asset without a role check. Reserved for the
// allocation engine's emergency exit path, which has already gated the caller.
func (s *Service) TripAssetBreaker(symbol string) error {
	if err := s.repo.SetAssetPaused(symbol, true); err != nil {
		return err
	}
	s.log.Warn().Str("asset", symbol).Msg("Asset circuit breaker tripped")
	s.bus.Publish(events.AssetPaused, "allocation", map[string]interface{}{"asset": symbol})
	return nil
}

// ResumeAsset clears the emergency circuit breaker. Admin role.
func (s *Service) ResumeAsset(caller, symbol string) error {
	if err := s.gate.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.SetAssetPaused(symbol, false); err != nil {
		return err
	}
	s.log.Info().Str("asset", symbol).Msg("Asset resumed")
	s.bus.Publish(events.AssetResumed, "registry", map[string]interface{}{"asset": symbol})
	return nil
}

// ListAssets returns the asset whitelist.
func (s *Service) ListAssets() ([]domain.Asset, error) {
	return s.repo.ListAssets()
}

// GetAsset returns a single asset, or nil.
func (s *Service) GetAsset(symbol string) (*domain.Asset, error) {
	return s.repo.GetAsset(symbol)
}

// AddChain whitelists a bridge destination. Admin role.
func (s *Service) AddChain(caller string, chainID int64, name string) error {
	if err := s.gate.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if chainID <= 0 {
		return fmt.Errorf("invalid chain id: %d", chainID)
	}

	existing, err := s.repo.GetChain(chainID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAlreadyRegistered
	}

	if err := s.repo.InsertChain(chainID, name); err != nil {
		return err
	}

	s.bus.Publish(events.ChainAdded, "registry", map[string]interface{}{
		"chain_id": chainID, "name": name,
	})
	return nil
}

// SetChainEnabled toggles a whitelisted chain. Admin role.
func (s *Service) SetChainEnabled(caller string, chainID int64, enabled bool) error {
	if err := s.gate.Require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.SetChainEnabled(chainID, enabled); err != nil {
		return err
	}
	s.bus.Publish(events.ChainUpdated, "registry", map[string]interface{}{
		"chain_id": chainID, "enabled": enabled,
	})
	return nil
}

// ListChains returns the chain whitelist.
func (s *Service) ListChains() ([]domain.Chain, error) {
	return s.repo.ListChains()
}

// GetChain returns a single chain, or nil.
func (s *Service) GetChain(chainID int64) (*domain.Chain, error) {
	return s.repo.GetChain(chainID)
}

package allocation

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	"github.com/royaltyfi/vaultd/internal/modules/ledger"
)

// AssetRegistry is the slice of the registry the engine needs.
type AssetRegistry interface {
	GetAsset(symbol string) (*domain.Asset, error)
	ListStrategies(asset string) ([]domain.StrategyInfo, error)
	TripAssetBreaker(symbol string) error
}

// Service is the allocation engine. All fund movements between the vault's
// on-hand balance and its strategies flow through here, serialized by a
// single-writer lock so concurrent runs cannot interleave ledger updates.
type Service struct {
	mu       sync.Mutex
	registry AssetRegistry
	ledger   *ledger.Service
	resolver *Resolver
	gate     *auth.Gate
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService creates a new allocation engine
func NewService(registry AssetRegistry, ledgerSvc *ledger.Service, resolver *Resolver, gate *auth.Gate, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		ledger:   ledgerSvc,
		resolver: resolver,
		gate:     gate,
		bus:      bus,
		log:      log.With().Str("module", "allocation").Logger(),
	}
}

// checkAsset loads the asset and enforces the circuit breaker.
func (s *Service) checkAsset(symbol string) (*domain.Asset, error) {
	asset, err := s.registry.GetAsset(symbol)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, domain.ErrUnsupportedAsset
	}
	if asset.Paused {
		return nil, domain.ErrAssetPaused
	}
	return asset, nil
}

// plan computes the per-strategy allocation for a deployment run. Paused
// strategies receive nothing; integer division remainders go to the last
// strategy that received a share, so the planned total always equals amount.
func plan(strategies []domain.StrategyInfo, amount decimal.Decimal, mode string) (map[string]decimal.Decimal, error) {
	allocations := make(map[string]decimal.Decimal, len(strategies))

	var active []domain.StrategyInfo
	for _, st := range strategies {
		if st.Paused {
			continue
		}
		active = append(active, st)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("no active strategies: %w", domain.ErrUnsupportedAsset)
	}

	if mode == ModeWeighted {
		totalWeight := decimal.Zero
		for _, st := range active {
			totalWeight = totalWeight.Add(decimal.NewFromInt(st.WeightBps))
		}
		if totalWeight.IsZero() {
			// No weights configured yet; split evenly rather than refuse.
			mode = ModeEqual
		} else {
			var weighted []domain.StrategyInfo
			for _, st := range active {
				if st.WeightBps > 0 {
					weighted = append(weighted, st)
				}
			}
			active = weighted
		}
	}

	switch mode {
	case ModeEqual:
		n := decimal.NewFromInt(int64(len(active)))
		share, rem := amount.QuoRem(n, 0)
		for _, st := range active {
			allocations[st.Handle] = share
		}
		allocations[active[len(active)-1].Handle] = share.Add(rem)

	case ModeWeighted:
		totalWeight := decimal.Zero
		for _, st := range active {
			totalWeight = totalWeight.Add(decimal.NewFromInt(st.WeightBps))
		}

		assigned := decimal.Zero
		for _, st := range active {
			share, _ := amount.Mul(decimal.NewFromInt(st.WeightBps)).QuoRem(totalWeight, 0)
			allocations[st.Handle] = share
			assigned = assigned.Add(share)
		}
		last := active[len(active)-1].Handle
		allocations[last] = allocations[last].Add(amount.Sub(assigned))

	default:
		return nil, fmt.Errorf("unknown deployment mode %q", mode)
	}

	return allocations, nil
}

// Deploy pushes amount of the asset's on-hand balance into its strategies.
// Agent role. Per-strategy failures do not abort the run and never touch the
// ledger; the report carries one outcome per registered strategy.
func (s *Service) Deploy(ctx context.Context, caller, asset string, amount decimal.Decimal, mode string) (*Report, error) {
	if err := s.gate.Require(caller, domain.RoleAgent); err != nil {
		return nil, err
	}
	if !domain.PositiveAmount(amount) {
		return nil, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.checkAsset(asset); err != nil {
		return nil, err
	}

	onHand, err := s.ledger.OnHand(asset)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(onHand) {
		return nil, domain.ErrInsufficientBalance
	}

	strategies, err := s.registry.ListStrategies(asset)
	if err != nil {
		return nil, err
	}

	allocations, err := plan(strategies, amount, mode)
	if err != nil {
		return nil, err
	}

	report := newReport("deploy", asset, mode, amount)
	for _, st := range strategies {
		if st.Paused {
			report.Outcomes = append(report.Outcomes, StrategyOutcome{
				Handle: st.Handle, Status: OutcomeSkippedPause, Amount: decimal.Zero,
			})
			continue
		}
		share, ok := allocations[st.Handle]
		if !ok || share.IsZero() {
			report.Outcomes = append(report.Outcomes, StrategyOutcome{
				Handle: st.Handle, Status: OutcomeSkippedZero, Amount: decimal.Zero,
			})
			continue
		}

		report.Outcomes = append(report.Outcomes, s.deployOne(ctx, asset, st.Handle, share))
	}

	for _, o := range report.Outcomes {
		if o.Status == OutcomeDeployed {
			report.Moved = report.Moved.Add(o.Amount)
		}
	}
	report.finish()

	eventType := events.FundsDeployed
	if !report.Complete {
		eventType = events.DeploymentIncomplete
	}
	s.bus.Publish(eventType, "allocation", map[string]interface{}{
		"report_id": report.ID,
		"asset":     asset,
		"mode":      mode,
		"requested": amount.String(),
		"deployed":  report.Moved.String(),
	})

	return report, nil
}

func (s *Service) deployOne(ctx context.Context, asset, handle string, share decimal.Decimal) StrategyOutcome {
	strategy, ok := s.resolver.Resolve(handle)
	if !ok {
		return s.failedOutcome(asset, handle, share, fmt.Errorf("no implementation registered for handle"))
	}

	if err := strategy.Execute(ctx, share, nil); err != nil {
		return s.failedOutcome(asset, handle, share, err)
	}

	// Bookkeeping follows the successful external call; a failed call above
	// leaves the ledger exactly as it was.
	if err := s.ledger.Repo().ApplyDeployment(asset, handle, share); err != nil {
		s.log.Error().Err(err).Str("asset", asset).Str("handle", handle).
			Msg("Deployment succeeded but ledger update failed")
		return s.failedOutcome(asset, handle, share, fmt.Errorf("ledger update failed: %w", err))
	}

	s.log.Info().Str("asset", asset).Str("handle", handle).
		Str("amount", share.String()).Msg("Funds deployed to strategy")
	return StrategyOutcome{Handle: handle, Status: OutcomeDeployed, Amount: share}
}

func (s *Service) failedOutcome(asset, handle string, amount decimal.Decimal, err error) StrategyOutcome {
	s.log.Warn().Err(err).Str("asset", asset).Str("handle", handle).Msg("Strategy call failed")
	s.bus.Publish(events.StrategyCallFailed, "allocation", map[string]interface{}{
		"asset":  asset,
		"handle": handle,
		"amount": amount.String(),
		"error":  err.Error(),
	})
	return StrategyOutcome{Handle: handle, Status: OutcomeFailed, Amount: amount, Error: err.Error()}
}

// Harvest realizes yield across the asset's strategies. Agent role. Paused
// strategies are included; pausing stops new deployments, not collecting what
// already accrued. Yield is the strategy's reported balance in excess of its
// deployed total.
func (s *Service) Harvest(ctx context.Context, caller, asset string) (*Report, error) {
	if err := s.gate.Require(caller, domain.RoleAgent); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.checkAsset(asset); err != nil {
		return nil, err
	}

	strategies, err := s.registry.ListStrategies(asset)
	if err != nil {
		return nil, err
	}

	report := newReport("harvest", asset, "", decimal.Zero)
	for _, st := range strategies {
		report.Outcomes = append(report.Outcomes, s.harvestOne(ctx, asset, st.Handle))
	}

	for _, o := range report.Outcomes {
		if o.Status == OutcomeHarvested {
			report.Moved = report.Moved.Add(o.Amount)
		}
	}
	report.finish()

	s.bus.Publish(events.HarvestCompleted, "allocation", map[string]interface{}{
		"report_id": report.ID,
		"asset":     asset,
		"harvested": report.Moved.String(),
	})

	return report, nil
}

func (s *Service) harvestOne(ctx context.Context, asset, handle string) StrategyOutcome {
	strategy, ok := s.resolver.Resolve(handle)
	if !ok {
		return s.failedOutcome(asset, handle, decimal.Zero, fmt.Errorf("no implementation registered for handle"))
	}

	balance, err := strategy.Balance(ctx)
	if err != nil {
		return s.failedOutcome(asset, handle, decimal.Zero, err)
	}

	deployed, err := s.ledger.Deployed(asset, handle)
	if err != nil {
		return s.failedOutcome(asset, handle, decimal.Zero, err)
	}

	yield := balance.Sub(deployed)
	if !yield.IsPositive() {
		return StrategyOutcome{Handle: handle, Status: OutcomeNoYield, Amount: decimal.Zero}
	}

	if err := strategy.Harvest(ctx, nil); err != nil {
		return s.failedOutcome(asset, handle, yield, err)
	}

	if err := s.ledger.Repo().ApplyHarvest(asset, handle, yield); err != nil {
		s.log.Error().Err(err).Str("asset", asset).Str("handle", handle).
			Msg("Harvest succeeded but ledger update failed")
		return s.failedOutcome(asset, handle, yield, fmt.Errorf("ledger update failed: %w", err))
	}

	s.log.Info().Str("asset", asset).Str("handle", handle).
		Str("yield", yield.String()).Msg("Yield harvested")
	return StrategyOutcome{Handle: handle, Status: OutcomeHarvested, Amount: yield}
}

// EmergencyExit drains every strategy for the asset back into the on-hand
// balance, zeroes their deployed totals, and trips the asset's circuit
// breaker so nothing redeploys until an admin resumes it. Admin role.
// Runs against paused assets too; that is the point of it.
func (s *Service) EmergencyExit(ctx context.Context, caller, asset string) (*Report, error) {
	if err := s.gate.Require(caller, domain.RoleAdmin); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.registry.GetAsset(asset)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.ErrUnsupportedAsset
	}

	strategies, err := s.registry.ListStrategies(asset)
	if err != nil {
		return nil, err
	}

	report := newReport("emergency_exit", asset, "", decimal.Zero)
	for _, st := range strategies {
		report.Outcomes = append(report.Outcomes, s.exitOne(ctx, asset, st.Handle))
	}

	for _, o := range report.Outcomes {
		if o.Status == OutcomeExited {
			report.Moved = report.Moved.Add(o.Amount)
		}
	}
	report.finish()

	if err := s.registry.TripAssetBreaker(asset); err != nil {
		s.log.Error().Err(err).Str("asset", asset).Msg("Failed to trip asset circuit breaker")
	}

	s.bus.Publish(events.EmergencyExitDone, "allocation", map[string]interface{}{
		"report_id": report.ID,
		"asset":     asset,
		"recovered": report.Moved.String(),
		"complete":  report.Complete,
	})

	return report, nil
}

func (s *Service) exitOne(ctx context.Context, asset, handle string) StrategyOutcome {
	strategy, ok := s.resolver.Resolve(handle)
	if !ok {
		return s.failedOutcome(asset, handle, decimal.Zero, fmt.Errorf("no implementation registered for handle"))
	}

	balance, err := strategy.Balance(ctx)
	if err != nil {
		return s.failedOutcome(asset, handle, decimal.Zero, err)
	}

	if err := strategy.EmergencyExit(ctx, nil); err != nil {
		return s.failedOutcome(asset, handle, balance, err)
	}

	if err := s.ledger.Repo().ApplyEmergencyExit(asset, handle, balance); err != nil {
		s.log.Error().Err(err).Str("asset", asset).Str("handle", handle).
			Msg("Emergency exit succeeded but ledger update failed")
		return s.failedOutcome(asset, handle, balance, fmt.Errorf("ledger update failed: %w", err))
	}

	s.log.Warn().Str("asset", asset).Str("handle", handle).
		Str("recovered", balance.String()).Msg("Strategy emergency exit completed")
	return StrategyOutcome{Handle: handle, Status: OutcomeExited, Amount: balance}
}

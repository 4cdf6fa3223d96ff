package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/modules/allocation"
	"github.com/royaltyfi/vaultd/internal/modules/ledger"
)

// DepositMonitorJob watches the on-hand balances and auto-deploys them into
// strategies once they cross a minimum threshold. Small balances are left
// alone so gas-equivalent gateway costs are not wasted on dust.
type DepositMonitorJob struct {
	engine    *allocation.Service
	ledger    *ledger.Service
	assets    AssetLister
	principal string
	minAmount decimal.Decimal
	log       zerolog.Logger
}

// NewDepositMonitorJob creates a new deposit monitor job
func NewDepositMonitorJob(engine *allocation.Service, ledgerSvc *ledger.Service, assets AssetLister, principal string, minAmount decimal.Decimal, log zerolog.Logger) *DepositMonitorJob {
	return &DepositMonitorJob{
		engine:    engine,
		ledger:    ledgerSvc,
		assets:    assets,
		principal: principal,
		minAmount: minAmount,
		log:       log.With().Str("job", "deposit_monitor").Logger(),
	}
}

// Name returns the job name
func (j *DepositMonitorJob) Name() string {
	return "deposit_monitor"
}

// Run deploys any on-hand balance at or above the threshold, split by weight.
func (j *DepositMonitorJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	assets, err := j.assets.ListAssets()
	if err != nil {
		return err
	}

	for _, asset := range assets {
		if asset.Paused {
			continue
		}

		onHand, err := j.ledger.OnHand(asset.Symbol)
		if err != nil {
			j.log.Error().Err(err).Str("asset", asset.Symbol).Msg("Failed to read on-hand balance")
			continue
		}
		if onHand.LessThan(j.minAmount) || onHand.IsZero() {
			continue
		}

		report, err := j.engine.Deploy(ctx, j.principal, asset.Symbol, onHand, allocation.ModeWeighted)
		if err != nil {
			j.log.Error().Err(err).Str("asset", asset.Symbol).Msg("Auto-deploy failed")
			continue
		}
		j.log.Info().
			Str("asset", asset.Symbol).
			Str("deployed", report.Moved.String()).
			Bool("complete", report.Complete).
			Msg("Auto-deploy finished")
	}

	return nil
}

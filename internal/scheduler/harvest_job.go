package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/modules/allocation"
)

// AssetLister is the registry slice the jobs need.
type AssetLister interface {
	ListAssets() ([]domain.Asset, error)
}

// HarvestJob harvests yield across every active asset on a schedule.
type HarvestJob struct {
	engine    *allocation.Service
	assets    AssetLister
	principal string
	log       zerolog.Logger
}

// NewHarvestJob creates a new harvest job running as the given agent principal
func NewHarvestJob(engine *allocation.Service, assets AssetLister, principal string, log zerolog.Logger) *HarvestJob {
	return &HarvestJob{
		engine:    engine,
		assets:    assets,
		principal: principal,
		log:       log.With().Str("job", "harvest").Logger(),
	}
}

// Name returns the job name
func (j *HarvestJob) Name() string {
	return "harvest"
}

// Run harvests every unpaused asset. Per-asset failures are logged and the
// remaining assets still run.
func (j *HarvestJob) Run() error {
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
		report, err := j.engine.Harvest(ctx, j.principal, asset.Symbol)
		if err != nil {
			j.log.Error().Err(err).Str("asset", asset.Symbol).Msg("Scheduled harvest failed")
			continue
		}
		j.log.Info().
			Str("asset", asset.Symbol).
			Str("harvested", report.Moved.String()).
			Bool("complete", report.Complete).
			Msg("Scheduled harvest finished")
	}

	return nil
}

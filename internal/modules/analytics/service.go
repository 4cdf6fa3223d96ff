// Package analytics computes yield statistics from the ledger's audit trail.
package analytics

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/royaltyfi/vaultd/internal/modules/ledger"
)

// Service computes harvest statistics per strategy.
type Service struct {
	ledger *ledger.Service
	log    zerolog.Logger
}

// NewService creates a new analytics service
func NewService(ledgerSvc *ledger.Service, log zerolog.Logger) *Service {
	return &Service{
		ledger: ledgerSvc,
		log:    log.With().Str("module", "analytics").Logger(),
	}
}

// HarvestStats summarizes a strategy's harvest history.
type HarvestStats struct {
	Asset     string          `json:"asset"`
	Handle    string          `json:"handle"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
	Mean      float64         `json:"mean"`
	StdDev    float64         `json:"std_dev"`
	Median    float64         `json:"median"`
	Min       decimal.Decimal `json:"min"`
	Max       decimal.Decimal `json:"max"`
	Deployed  decimal.Decimal `json:"deployed"`
	Harvested decimal.Decimal `json:"harvested"`
}

// StrategyStats builds harvest statistics for one strategy from the ledger's
// audit trail. Yield amounts are exact decimals; the distribution moments are
// computed in float64, which is fine for reporting.
func (s *Service) StrategyStats(asset, handle string) (*HarvestStats, error) {
	amounts, err := s.ledger.Repo().HarvestAmounts(asset, handle)
	if err != nil {
		return nil, err
	}
	entry, err := s.ledger.StrategyLedger(asset, handle)
	if err != nil {
		return nil, err
	}

	stats := &HarvestStats{
		Asset:     asset,
		Handle:    handle,
		Count:     len(amounts),
		Total:     decimal.Zero,
		Min:       decimal.Zero,
		Max:       decimal.Zero,
		Deployed:  entry.Deployed,
		Harvested: entry.Harvested,
	}
	if len(amounts) == 0 {
		return stats, nil
	}

	floats := make([]float64, len(amounts))
	stats.Min = amounts[0]
	stats.Max = amounts[0]
	for i, a := range amounts {
		stats.Total = stats.Total.Add(a)
		floats[i], _ = a.Float64()
		if a.LessThan(stats.Min) {
			stats.Min = a
		}
		if a.GreaterThan(stats.Max) {
			stats.Max = a
		}
	}

	stats.Mean = stat.Mean(floats, nil)
	if len(floats) > 1 {
		stats.StdDev = stat.StdDev(floats, nil)
	}

	sorted := append([]float64(nil), floats...)
	sort.Float64s(sorted)
	stats.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	return stats, nil
}

// AssetStats builds harvest statistics for every strategy that has ledger
// history for the asset.
func (s *Service) AssetStats(asset string) ([]HarvestStats, error) {
	entries, err := s.ledger.Repo().ListStrategyLedgers(asset)
	if err != nil {
		return nil, err
	}

	stats := make([]HarvestStats, 0, len(entries))
	for _, e := range entries {
		st, err := s.StrategyStats(asset, e.Handle)
		if err != nil {
			return nil, err
		}
		stats = append(stats, *st)
	}
	return stats, nil
}

package ledger

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/domain"
)

// Service exposes the ledger's read surface and the balance checks the rest
// of the vault depends on. Mutations go through the allocation engine and the
// vault module, which call the repository's transactional helpers.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new ledger service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("module", "ledger").Logger(),
	}
}

// Repo exposes the repository for the modules that mutate the ledger.
func (s *Service) Repo() *Repository {
	return s.repo
}

// Deployed returns the strategy's outstanding deployed total. Implements the
// check the registry uses before allowing strategy removal.
func (s *Service) Deployed(asset, handle string) (decimal.Decimal, error) {
	entry, err := s.repo.StrategyLedger(asset, handle)
	if err != nil {
		return decimal.Zero, err
	}
	return entry.Deployed, nil
}

// OnHand returns the asset's undeployed balance.
func (s *Service) OnHand(asset string) (decimal.Decimal, error) {
	entry, err := s.repo.AssetLedger(asset)
	if err != nil {
		return decimal.Zero, err
	}
	return entry.OnHand, nil
}

// TotalAssets returns on_hand plus the sum of deployed totals across the
// asset's strategies. This is the figure share pricing is quoted against.
func (s *Service) TotalAssets(asset string) (decimal.Decimal, error) {
	entry, err := s.repo.AssetLedger(asset)
	if err != nil {
		return decimal.Zero, err
	}
	deployed, err := s.repo.TotalDeployed(asset)
	if err != nil {
		return decimal.Zero, err
	}
	return entry.OnHand.Add(deployed), nil
}

// AssetSummary is the full per-asset ledger view.
type AssetSummary struct {
	Asset       string                  `json:"asset"`
	Received    decimal.Decimal         `json:"received"`
	OnHand      decimal.Decimal         `json:"on_hand"`
	Deployed    decimal.Decimal         `json:"deployed"`
	TotalAssets decimal.Decimal         `json:"total_assets"`
	TotalShares decimal.Decimal         `json:"total_shares"`
	Strategies  []domain.StrategyLedger `json:"strategies"`
}

// Summary builds the asset's ledger view in one call.
func (s *Service) Summary(asset string) (*AssetSummary, error) {
	entry, err := s.repo.AssetLedger(asset)
	if err != nil {
		return nil, err
	}
	strategies, err := s.repo.ListStrategyLedgers(asset)
	if err != nil {
		return nil, err
	}
	deployed := decimal.Zero
	for _, st := range strategies {
		deployed = deployed.Add(st.Deployed)
	}
	supply, err := s.repo.TotalShares(asset)
	if err != nil {
		return nil, err
	}

	return &AssetSummary{
		Asset:       asset,
		Received:    entry.Received,
		OnHand:      entry.OnHand,
		Deployed:    deployed,
		TotalAssets: entry.OnHand.Add(deployed),
		TotalShares: supply,
		Strategies:  strategies,
	}, nil
}

// StrategyLedger returns the per-strategy totals.
func (s *Service) StrategyLedger(asset, handle string) (*domain.StrategyLedger, error) {
	return s.repo.StrategyLedger(asset, handle)
}

// SharesOf returns the owner's share balance.
func (s *Service) SharesOf(owner, asset string) (decimal.Decimal, error) {
	return s.repo.SharesOf(owner, asset)
}

// TotalShares returns the asset's share supply.
func (s *Service) TotalShares(asset string) (decimal.Decimal, error) {
	return s.repo.TotalShares(asset)
}

// RecentEvents returns the newest audit rows for the asset.
func (s *Service) RecentEvents(asset string, limit int) ([]AuditEntry, error) {
	return s.repo.RecentEvents(asset, limit)
}

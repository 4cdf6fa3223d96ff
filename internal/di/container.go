// Package di wires the vault's services together at startup.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/clients/aave"
	"github.com/royaltyfi/vaultd/internal/clients/compound"
	"github.com/royaltyfi/vaultd/internal/clients/debridge"
	"github.com/royaltyfi/vaultd/internal/config"
	"github.com/royaltyfi/vaultd/internal/database"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/events"
	"github.com/royaltyfi/vaultd/internal/modules/allocation"
	"github.com/royaltyfi/vaultd/internal/modules/analytics"
	"github.com/royaltyfi/vaultd/internal/modules/ledger"
	"github.com/royaltyfi/vaultd/internal/modules/registry"
	"github.com/royaltyfi/vaultd/internal/modules/vault"
	"github.com/royaltyfi/vaultd/internal/reliability"
)

// Container holds the wired services shared by the server and the scheduler.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	VaultDB  *database.DB
	LedgerDB *database.DB

	Bus  *events.Bus
	Gate *auth.Gate

	RegistryService   *registry.Service
	LedgerService     *ledger.Service
	AllocationService *allocation.Service
	VaultService      *vault.Service
	AnalyticsService  *analytics.Service
	BackupService     *reliability.BackupService

	Resolver     *allocation.Resolver
	BridgeClient domain.BridgeClient
}

// New opens the databases and wires every service. Strategy implementations
// registered in the resolver cover the configured gateways; additional
// handles can be bound before the server starts.
func New(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	vaultDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "vault.db"),
		Profile: database.ProfileStandard,
		Name:    "vault",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vault database: %w", err)
	}
	if err := vaultDB.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate vault database: %w", err)
	}

	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := ledgerDB.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	bus := events.NewBus(log)
	gate := auth.NewGate(auth.NewRepository(vaultDB.Conn(), log), bus, log)

	ledgerSvc := ledger.NewService(ledger.NewRepository(ledgerDB.Conn(), log), log)
	registrySvc := registry.NewService(registry.NewRepository(vaultDB.Conn(), log), gate, ledgerSvc, bus, log)

	resolver := allocation.NewResolver()
	allocationSvc := allocation.NewService(registrySvc, ledgerSvc, resolver, gate, bus, log)

	bridgeClient := debridge.NewClient(cfg.DeBridgeAPIURL, cfg.DeBridgeAPIKey, log)
	vaultSvc := vault.NewService(registrySvc, ledgerSvc, gate, bridgeClient, bus, log)

	analyticsSvc := analytics.NewService(ledgerSvc, log)

	backupSvc := reliability.NewBackupService(
		ledgerSvc,
		registrySvc,
		[]string{vaultDB.Path(), ledgerDB.Path()},
		cfg.BackupDir,
		cfg.BackupRetention,
		bus,
		log,
	)

	c := &Container{
		Config:            cfg,
		Log:               log,
		VaultDB:           vaultDB,
		LedgerDB:          ledgerDB,
		Bus:               bus,
		Gate:              gate,
		RegistryService:   registrySvc,
		LedgerService:     ledgerSvc,
		AllocationService: allocationSvc,
		VaultService:      vaultSvc,
		AnalyticsService:  analyticsSvc,
		BackupService:     backupSvc,
		Resolver:          resolver,
		BridgeClient:      bridgeClient,
	}

	c.registerGatewayStrategies()

	return c, nil
}

// registerGatewayStrategies binds the configured lending gateways to the
// well-known handles used when registering strategies.
func (c *Container) registerGatewayStrategies() {
	if c.Config.AaveGatewayURL != "" {
		for _, asset := range c.Config.GatewayAssets {
			handle := "aave:" + asset
			c.Resolver.Register(handle, aave.NewClient(c.Config.AaveGatewayURL, asset, c.Log))
			c.Log.Info().Str("handle", handle).Msg("Registered Aave strategy")
		}
	}
	if c.Config.CompoundGatewayURL != "" {
		for _, asset := range c.Config.GatewayAssets {
			handle := "compound:" + asset
			c.Resolver.Register(handle, compound.NewClient(c.Config.CompoundGatewayURL, asset, c.Log))
			c.Log.Info().Str("handle", handle).Msg("Registered Compound strategy")
		}
	}
}

// Close releases the container's resources.
func (c *Container) Close() {
	if err := c.LedgerDB.Close(); err != nil {
		c.Log.Error().Err(err).Msg("Failed to close ledger database")
	}
	if err := c.VaultDB.Close(); err != nil {
		c.Log.Error().Err(err).Msg("Failed to close vault database")
	}
}

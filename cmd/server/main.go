// Package main is the entry point for vaultd, the yield-vault daemon. It
// keeps the strategy registry and the financial ledger, allocates pooled
// funds across lending strategies, and exposes the whole surface over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/config"
	"github.com/royaltyfi/vaultd/internal/di"
	"github.com/royaltyfi/vaultd/internal/scheduler"
	"github.com/royaltyfi/vaultd/internal/server"
	"github.com/royaltyfi/vaultd/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting vaultd")

	container, err := di.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire services")
	}
	defer container.Close()

	// The gate must have an admin before anything else runs; the agent
	// principal is what the scheduled jobs act as.
	if err := container.Gate.Bootstrap(cfg.AdminPrincipal, cfg.AgentPrincipal); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap access control")
	}

	sched := scheduler.New(log)

	minDeploy, err := decimal.NewFromString(cfg.AutoDeployMinAmount)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.AutoDeployMinAmount).Msg("Invalid AUTO_DEPLOY_MIN_AMOUNT")
	}

	harvestJob := scheduler.NewHarvestJob(container.AllocationService, container.RegistryService, cfg.AgentPrincipal, log)
	depositMonitorJob := scheduler.NewDepositMonitorJob(container.AllocationService, container.LedgerService, container.RegistryService, cfg.AgentPrincipal, minDeploy, log)
	backupJob := scheduler.NewBackupJob(container.BackupService, log)

	if err := sched.AddJob(cfg.HarvestSchedule, harvestJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register harvest job")
	}
	if err := sched.AddJob(cfg.DepositMonitorSchedule, depositMonitorJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register deposit monitor job")
	}
	if err := sched.AddJob(cfg.BackupSchedule, backupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backup job")
	}

	srv := server.New(server.Config{
		Log:       log,
		Container: container,
		Scheduler: sched,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})
	srv.RegisterJob(harvestJob)
	srv.RegisterJob(depositMonitorJob)
	srv.RegisterJob(backupJob)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}

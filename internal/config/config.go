// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Bootstrap admin principal. Granted the admin role on first start so the
	// system never runs without an administrator.
	AdminPrincipal string

	// Principal used by the scheduled jobs (granted the agent role at startup).
	AgentPrincipal string

	// Strategy gateway endpoints
	AaveGatewayURL     string
	CompoundGatewayURL string

	// Assets the gateways are bound to at startup (one strategy handle per
	// gateway per asset, e.g. "aave:USDC").
	GatewayAssets []string

	// Bridge
	DeBridgeAPIURL string
	DeBridgeAPIKey string

	// Job schedules (cron expressions with a seconds field)
	HarvestSchedule        string
	DepositMonitorSchedule string
	BackupSchedule         string

	// Auto-deposit monitor: minimum on-hand balance (base units) before the
	// monitor triggers a deployment.
	AutoDeployMinAmount string

	BackupDir       string
	BackupRetention int // number of backup archives to keep
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VAULTD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8010),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		AdminPrincipal: getEnv("VAULTD_ADMIN_PRINCIPAL", ""),
		AgentPrincipal: getEnv("VAULTD_AGENT_PRINCIPAL", "system:scheduler"),

		AaveGatewayURL:     getEnv("AAVE_GATEWAY_URL", "http://localhost:9101"),
		CompoundGatewayURL: getEnv("COMPOUND_GATEWAY_URL", "http://localhost:9102"),
		GatewayAssets:      getEnvAsList("GATEWAY_ASSETS", []string{"USDC"}),

		DeBridgeAPIURL: getEnv("DEBRIDGE_API_URL", "https://api.dln.trade/v1.0"),
		DeBridgeAPIKey: getEnv("DEBRIDGE_API_KEY", ""),

		HarvestSchedule:        getEnv("HARVEST_SCHEDULE", "0 0 * * * *"),
		DepositMonitorSchedule: getEnv("DEPOSIT_MONITOR_SCHEDULE", "0 * * * * *"),
		BackupSchedule:         getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),

		AutoDeployMinAmount: getEnv("AUTO_DEPLOY_MIN_AMOUNT", "0"),

		BackupDir:       getEnv("VAULTD_BACKUP_DIR", filepath.Join(absDataDir, "backups")),
		BackupRetention: getEnvAsInt("BACKUP_RETENTION", 7),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.AdminPrincipal == "" {
		return fmt.Errorf("VAULTD_ADMIN_PRINCIPAL is required: the service refuses to start without a bootstrap admin")
	}
	if c.BackupRetention < 1 {
		return fmt.Errorf("invalid backup retention: %d", c.BackupRetention)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

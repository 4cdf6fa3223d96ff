// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Registry events
	StrategyAdded   EventType = "STRATEGY_ADDED"
	StrategyRemoved EventType = "STRATEGY_REMOVED"
	WeightUpdated   EventType = "WEIGHT_UPDATED"
	StrategyPaused  EventType = "STRATEGY_PAUSED"
	StrategyResumed EventType = "STRATEGY_RESUMED"
	AssetAdded      EventType = "ASSET_ADDED"
	AssetRemoved    EventType = "ASSET_REMOVED"
	AssetPaused     EventType = "ASSET_PAUSED"
	AssetResumed    EventType = "ASSET_RESUMED"
	ChainAdded      EventType = "CHAIN_ADDED"
	ChainUpdated    EventType = "CHAIN_UPDATED"

	// Allocation engine events
	FundsDeployed        EventType = "FUNDS_DEPLOYED"
	HarvestCompleted     EventType = "HARVEST_COMPLETED"
	EmergencyExitDone    EventType = "EMERGENCY_EXIT_DONE"
	StrategyCallFailed   EventType = "STRATEGY_CALL_FAILED"
	DeploymentIncomplete EventType = "DEPLOYMENT_INCOMPLETE"

	// Vault surface events
	DepositProcessed    EventType = "DEPOSIT_PROCESSED"
	WithdrawalProcessed EventType = "WITHDRAWAL_PROCESSED"
	BridgeReceived      EventType = "BRIDGE_RECEIVED"
	BridgeSent          EventType = "BRIDGE_SENT"

	// Access control events
	RoleGranted EventType = "ROLE_GRANTED"
	RoleRevoked EventType = "ROLE_REVOKED"

	// System events
	ErrorOccurred   EventType = "ERROR_OCCURRED"
	BackupCompleted EventType = "BACKUP_COMPLETED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MockStrategy is a configurable in-memory strategy for tests. It tracks its
// own balance like a real strategy would and can be told to fail any of the
// four capability calls.
type MockStrategy struct {
	mu sync.Mutex

	balance decimal.Decimal

	FailExecute       bool
	FailHarvest       bool
	FailEmergencyExit bool
	FailBalance       bool

	ExecuteCalls       []decimal.Decimal
	HarvestCalls       int
	EmergencyExitCalls int
}

// NewMockStrategy creates a mock strategy with a zero balance.
func NewMockStrategy() *MockStrategy {
	return &MockStrategy{balance: decimal.Zero}
}

// SetBalance overrides the strategy's reported balance. Raising it above the
// deployed total simulates accrued yield.
func (m *MockStrategy) SetBalance(balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
}

// Execute deposits amount into the strategy.
func (m *MockStrategy) Execute(ctx context.Context, amount decimal.Decimal, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailExecute {
		return fmt.Errorf("mock strategy: execute failed")
	}
	m.ExecuteCalls = append(m.ExecuteCalls, amount)
	m.balance = m.balance.Add(amount)
	return nil
}

// Harvest withdraws everything above zero yield; the mock just resets the
// balance to what was deposited, mirroring a real strategy sending yield back.
func (m *MockStrategy) Harvest(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailHarvest {
		return fmt.Errorf("mock strategy: harvest failed")
	}
	m.HarvestCalls++
	deposited := decimal.Zero
	for _, a := range m.ExecuteCalls {
		deposited = deposited.Add(a)
	}
	m.balance = deposited
	return nil
}

// EmergencyExit force-withdraws the entire balance.
func (m *MockStrategy) EmergencyExit(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEmergencyExit {
		return fmt.Errorf("mock strategy: emergency exit failed")
	}
	m.EmergencyExitCalls++
	m.balance = decimal.Zero
	m.ExecuteCalls = nil
	return nil
}

// Balance returns the strategy's current balance.
func (m *MockStrategy) Balance(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBalance {
		return decimal.Zero, fmt.Errorf("mock strategy: balance query failed")
	}
	return m.balance, nil
}

// MockBridgeClient records bridge sends and can be told to fail.
type MockBridgeClient struct {
	mu       sync.Mutex
	FailSend bool
	Sends    []MockBridgeSend
}

// MockBridgeSend records one Send call.
type MockBridgeSend struct {
	Asset       string
	Amount      decimal.Decimal
	DestChainID int64
	DestAddress string
}

// Send records the transfer or fails if configured to.
func (m *MockBridgeClient) Send(ctx context.Context, asset string, amount decimal.Decimal, destChainID int64, destAddress string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock bridge: send failed")
	}
	m.Sends = append(m.Sends, MockBridgeSend{
		Asset:       asset,
		Amount:      amount,
		DestChainID: destChainID,
		DestAddress: destAddress,
	})
	return nil
}

// Package aave provides a strategy client backed by an Aave lending gateway.
// The gateway is a sidecar service that owns the chain keys and translates
// REST calls into pool transactions; this client only moves bookkeeping
// amounts through it.
package aave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client for an Aave v3 gateway. One client is bound to one reserve.
type Client struct {
	baseURL string
	asset   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Aave gateway client for one asset reserve
func NewClient(baseURL, asset string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		asset:   asset,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "aave").Str("asset", asset).Logger(),
	}
}

type supplyRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Data   []byte `json:"data,omitempty"`
}

type balanceResponse struct {
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Execute supplies amount into the Aave reserve.
func (c *Client) Execute(ctx context.Context, amount decimal.Decimal, data []byte) error {
	c.log.Debug().Str("amount", amount.String()).Msg("Supplying to Aave reserve")
	return c.post(ctx, "/v1/supply", supplyRequest{Asset: c.asset, Amount: amount.String(), Data: data})
}

// Harvest asks the gateway to withdraw accrued interest back to the vault.
func (c *Client) Harvest(ctx context.Context, data []byte) error {
	c.log.Debug().Msg("Harvesting Aave reserve")
	return c.post(ctx, "/v1/harvest", supplyRequest{Asset: c.asset, Data: data})
}

// EmergencyExit withdraws the full aToken balance regardless of yield.
func (c *Client) EmergencyExit(ctx context.Context, data []byte) error {
	c.log.Warn().Msg("Emergency withdrawing Aave reserve")
	return c.post(ctx, "/v1/emergency-withdraw", supplyRequest{Asset: c.asset, Data: data})
}

// Balance returns the gateway's reported aToken balance for the reserve.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/v1/balance?asset=%s", c.baseURL, c.asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var parsed balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance response: %w", err)
	}

	balance, err := decimal.NewFromString(parsed.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway returned bad balance %q: %w", parsed.Balance, err)
	}
	return balance, nil
}

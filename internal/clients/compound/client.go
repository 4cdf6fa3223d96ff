// Package compound provides a strategy client backed by a Compound v3
// (Comet) gateway sidecar.
package compound

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

// Client for a Compound gateway. One client is bound to one market.
type Client struct {
	baseURL string
	market  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Compound gateway client for one market
func NewClient(baseURL, market string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		market:  market,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "compound").Str("market", market).Logger(),
	}
}

type actionRequest struct {
	Market string `json:"market"`
	Amount string `json:"amount,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

type positionResponse struct {
	Market  string `json:"market"`
	Balance string `json:"balance"`
}

func (c *Client) post(ctx context.Context, path string, payload actionRequest) error {
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

// Execute supplies amount into the Comet market.
func (c *Client) Execute(ctx context.Context, amount decimal.Decimal, data []byte) error {
	c.log.Debug().Str("amount", amount.String()).Msg("Supplying to Compound market")
	return c.post(ctx, "/v1/markets/supply", actionRequest{Market: c.market, Amount: amount.String(), Data: data})
}

// Harvest claims accrued interest and rewards back to the vault.
func (c *Client) Harvest(ctx context.Context, data []byte) error {
	c.log.Debug().Msg("Harvesting Compound market")
	return c.post(ctx, "/v1/markets/harvest", actionRequest{Market: c.market, Data: data})
}

// EmergencyExit withdraws the entire supplied position.
func (c *Client) EmergencyExit(ctx context.Context, data []byte) error {
	c.log.Warn().Msg("Emergency withdrawing Compound market")
	return c.post(ctx, "/v1/markets/emergency-withdraw", actionRequest{Market: c.market, Data: data})
}

// Balance returns the supplied position including accrued interest.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/v1/markets/position?market=%s", c.baseURL, c.market)
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

	var parsed positionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode position response: %w", err)
	}

	balance, err := decimal.NewFromString(parsed.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway returned bad balance %q: %w", parsed.Balance, err)
	}
	return balance, nil
}

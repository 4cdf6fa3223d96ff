// Package debridge provides a client for the deBridge transfer API, used to
// move vault funds between chains.
package debridge

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

// Client for the deBridge API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new deBridge client
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "debridge").Logger(),
	}
}

type transferRequest struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	DestChainID int64  `json:"dest_chain_id"`
	DestAddress string `json:"dest_address"`
	Payload     []byte `json:"payload,omitempty"`
}

type transferResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Send submits a cross-chain transfer order. Returns once the order is
// accepted; settlement is tracked by the bridge, not by us.
func (c *Client) Send(ctx context.Context, asset string, amount decimal.Decimal, destChainID int64, destAddress string, data []byte) error {
	body, err := json.Marshal(transferRequest{
		Asset:       asset,
		Amount:      amount.String(),
		DestChainID: destChainID,
		DestAddress: destAddress,
		Payload:     data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode transfer response: %w", err)
	}

	c.log.Info().
		Str("order_id", parsed.OrderID).
		Str("asset", asset).
		Str("amount", amount.String()).
		Int64("dest_chain", destChainID).
		Msg("Bridge transfer order accepted")

	return nil
}

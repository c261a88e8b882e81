// ABOUTME: HTTP client for the fungible token service balance endpoint
// ABOUTME: Used as a best-effort stake probe at registration time

package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// TokenClient queries the token service for caller balances. The registry
// probes the balance at registration and logs the result against the
// configured minimum; the result is ignored for the registration decision.
type TokenClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTokenClient creates a token service client for the given base URL.
func NewTokenClient(baseURL string, timeout time.Duration, logger *slog.Logger) *TokenClient {
	return &TokenClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "token-client"),
	}
}

// BalanceOf returns the token balance held by the given identity.
func (c *TokenClient) BalanceOf(ctx context.Context, identity string) (uint64, error) {
	endpoint := fmt.Sprintf("%s/v1/balances/%s", c.baseURL, url.PathEscape(identity))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("balance request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("balance returned HTTP %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Balance uint64 `json:"balance"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decoding balance: %w", err)
	}
	return payload.Balance, nil
}

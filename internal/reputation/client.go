// ABOUTME: HTTP client for the external reputation service
// ABOUTME: Covers the initialize (fire-and-forget) and fetch (sync hop 1) calls

package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/intellex/agent-registry/internal/store"
)

// ErrUnknownAgent is returned when the reputation service has no record for
// the requested identity.
var ErrUnknownAgent = errors.New("reputation service: unknown agent")

// Client talks to the reputation service. The registry never computes
// reputation; it only initializes remote records and fetches snapshots.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a reputation service client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "reputation-client"),
	}
}

// InitializeAgent asks the reputation service to create a zeroed record for a
// newly registered agent. Best-effort: callers log the returned error but
// never surface it to the registering agent; the reputation service also
// lazily initializes on first task report.
func (c *Client) InitializeAgent(ctx context.Context, identity string) error {
	endpoint := fmt.Sprintf("%s/v1/agents/%s/initialize", c.baseURL, url.PathEscape(identity))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("initialize returned HTTP %d", resp.StatusCode)
	}

	c.logger.Debug("initialized remote reputation record", "identity", identity)
	return nil
}

// FetchAgentInfo retrieves the authoritative reputation snapshot for an
// agent. This is hop 1 of the sync chain.
func (c *Client) FetchAgentInfo(ctx context.Context, identity string) (*store.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/v1/agents/%s/info", c.baseURL, url.PathEscape(identity))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrUnknownAgent
	default:
		return nil, fmt.Errorf("fetch returned HTTP %d: %s", resp.StatusCode, body)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

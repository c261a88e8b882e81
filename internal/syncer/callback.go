// ABOUTME: Self-addressed apply client for sync hop 2
// ABOUTME: Delivers snapshots to the registry's own reputation endpoint with a capability token

package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/intellex/agent-registry/internal/store"
)

// capabilityTTL bounds how long a minted hop-2 token stays valid. The apply
// call happens immediately after minting, so this only needs to cover slow
// request delivery.
const capabilityTTL = 2 * time.Minute

// TokenMinter mints scoped capability tokens. Satisfied by auth.JWTVerifier.
type TokenMinter interface {
	GenerateCapability(identity string, seq int64, expiresIn time.Duration) (string, error)
}

// Client applies snapshots through the registry's public HTTP surface instead
// of writing to the store directly. Going through the front door means hop 2
// passes the same authorization gate as a direct push from the reputation
// service.
type Client struct {
	baseURL    string
	serviceID  string
	minter     TokenMinter
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a callback client targeting the registry at baseURL.
// serviceID becomes the subject of every minted capability token.
func NewClient(baseURL, serviceID string, minter TokenMinter, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		serviceID: serviceID,
		minter:    minter,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "sync-callback"),
	}
}

// ApplySnapshot delivers the snapshot to the registry's apply endpoint,
// authenticated as the reputation service with the chain's sequence embedded.
// Returns store.ErrAgentNotFound if the agent vanished and
// store.ErrStaleSnapshot if a newer sequence was applied first.
func (c *Client) ApplySnapshot(ctx context.Context, owner string, snap *store.Snapshot, seq int64) error {
	token, err := c.minter.GenerateCapability(c.serviceID, seq, capabilityTTL)
	if err != nil {
		return fmt.Errorf("minting capability token: %w", err)
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/agents/%s/reputation", c.baseURL, url.PathEscape(owner))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apply request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Debug("snapshot applied", "owner", owner, "seq", seq)
		return nil
	case http.StatusNotFound:
		return store.ErrAgentNotFound
	case http.StatusConflict:
		return store.ErrStaleSnapshot
	default:
		return fmt.Errorf("apply returned HTTP %d: %s", resp.StatusCode, respBody)
	}
}

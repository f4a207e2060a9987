// Package sync keeps the board's capability manifest reconciled with the
// registry's stored definitions.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nupkan/permhub/internal/manifest"
)

// Summary counts the outcome of one reconciliation as reported by the
// registry.
type Summary struct {
	Total     int `json:"total"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

// RemovedFunction describes a capability the registry still stores but the
// manifest no longer declares. Reported for operator visibility only.
type RemovedFunction struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type syncResponse struct {
	Success          bool              `json:"success"`
	Summary          Summary           `json:"summary"`
	RemovedFunctions []RemovedFunction `json:"removedFunctions"`
}

// Client wraps the registry's sync API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a new client. token is the admin bearer credential
// required by the sync endpoint.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the registry is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/healthz", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

// SyncFunctions submits the full manifest to the registry and returns its
// reconciliation summary.
func (c *Client) SyncFunctions(ctx context.Context, m *manifest.Manifest) (Summary, []RemovedFunction, error) {
	payload, err := json.Marshal(map[string]any{
		"system":    m.System,
		"functions": m.Functions,
	})
	if err != nil {
		return Summary{}, nil, err
	}

	url := fmt.Sprintf("%s/systems/%s/sync-functions", c.baseURL, m.System.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Summary{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Summary{}, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Summary{}, nil, fmt.Errorf("sync failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Summary{}, nil, fmt.Errorf("sync: decode response: %w", err)
	}
	return decoded.Summary, decoded.RemovedFunctions, nil
}

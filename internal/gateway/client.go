package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTokenRejected indicates the registry refused the bearer token.
var ErrTokenRejected = errors.New("gateway: token rejected")

// RemoteUser is the registry's view of a validated identity.
type RemoteUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RemotePermission is one resolved grant as served by the registry.
type RemotePermission struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// RemoteProfile is a profile assigned to a user.
type RemoteProfile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RegistryAPI is the slice of the registry the gateway consumes.
type RegistryAPI interface {
	ValidateToken(ctx context.Context, token string) (*RemoteUser, error)
	UserSystemPermissions(ctx context.Context, userID int64, systemID string) ([]RemotePermission, error)
	UserProfiles(ctx context.Context, userID int64) ([]RemoteProfile, error)
}

// RegistryClient talks to the registry over HTTP.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient constructs a RegistryClient.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ValidateToken asks the registry whether a bearer token is valid.
func (c *RegistryClient) ValidateToken(ctx context.Context, token string) (*RemoteUser, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate/token", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenRejected
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway: validate token status %d", resp.StatusCode)
	}

	var decoded struct {
		Valid bool        `json:"valid"`
		User  *RemoteUser `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if !decoded.Valid || decoded.User == nil {
		return nil, ErrTokenRejected
	}
	return decoded.User, nil
}

// UserSystemPermissions fetches a user's resolved permissions scoped to one
// system.
func (c *RegistryClient) UserSystemPermissions(ctx context.Context, userID int64, systemID string) ([]RemotePermission, error) {
	url := fmt.Sprintf("%s/users/%d/systems/%s/permissions", c.baseURL, userID, systemID)
	var decoded struct {
		Permissions []RemotePermission `json:"permissions"`
	}
	if err := c.getJSON(ctx, url, &decoded); err != nil {
		return nil, err
	}
	return decoded.Permissions, nil
}

// UserProfiles fetches the profiles assigned to a user.
func (c *RegistryClient) UserProfiles(ctx context.Context, userID int64) ([]RemoteProfile, error) {
	url := fmt.Sprintf("%s/users/%d/profiles", c.baseURL, userID)
	var decoded struct {
		Profiles []RemoteProfile `json:"profiles"`
	}
	if err := c.getJSON(ctx, url, &decoded); err != nil {
		return nil, err
	}
	return decoded.Profiles, nil
}

func (c *RegistryClient) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
		return fmt.Errorf("gateway: registry status %d for %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

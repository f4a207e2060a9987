package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("catalog: not found")

// ErrInvalidKey indicates a malformed capability key.
var ErrInvalidKey = errors.New("catalog: invalid capability key")

var keyPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// CapabilityKey is a validated capability identifier, unique within one
// system. Keys are lowercase slugs; anything else is rejected at the edge so
// the default-deny check never compares free-form strings.
type CapabilityKey string

// ParseCapabilityKey validates raw and returns it as a typed key.
func ParseCapabilityKey(raw string) (CapabilityKey, error) {
	if raw == "" || !keyPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, raw)
	}
	return CapabilityKey(raw), nil
}

func (k CapabilityKey) String() string { return string(k) }

// CapabilityID derives the storage identifier for a (system, key) pair.
// Identity is the pair itself; the id is never assigned independently.
func CapabilityID(systemID string, key CapabilityKey) string {
	return systemID + "_" + string(key)
}

// System is a registered client application.
type System struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	APIURL      string    `json:"apiUrl,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Capability is a single protectable operation owned by one system.
type Capability struct {
	ID          string        `json:"id"`
	SystemID    string        `json:"systemId"`
	Key         CapabilityKey `json:"key"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Description string        `json:"description,omitempty"`
	Endpoint    string        `json:"endpoint,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// sameDisplayFields reports whether an incoming definition matches what is
// already stored, which makes a re-sync of that capability a no-op.
func (c Capability) sameDisplayFields(name, category, description, endpoint string) bool {
	return c.Name == name && c.Category == category && c.Description == description && c.Endpoint == endpoint
}

// SyncSummary counts the outcome of one reconciliation.
type SyncSummary struct {
	Total     int `json:"total"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

// SyncSystem is the system descriptor carried by a sync request.
type SyncSystem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	APIURL      string `json:"apiUrl"`
}

// SyncFunction is one capability definition carried by a sync request.
type SyncFunction struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
}

// SyncRequest is the full manifest payload sent by a client system.
type SyncRequest struct {
	System    SyncSystem     `json:"system"`
	Functions []SyncFunction `json:"functions"`
}

// SyncResult is the registry's answer to a sync request. Stale capabilities
// are reported, never deleted.
type SyncResult struct {
	Summary          SyncSummary  `json:"summary"`
	RemovedFunctions []Capability `json:"removedFunctions"`
}

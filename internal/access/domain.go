package access

import (
	"errors"
	"time"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("access: not found")

// ErrSystemNotFound distinguishes "unknown system" from "user has no
// access"; callers render it as a 404 rather than an empty grant set.
var ErrSystemNotFound = errors.New("access: system not found")

// Profile is a named, reusable bundle of capability grants. SystemID is nil
// for global profiles and set for profiles bound to one system.
type Profile struct {
	ID          int64
	Name        string
	Description string
	SystemID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment links a user to a profile.
type Assignment struct {
	UserID    int64
	ProfileID int64
	CreatedAt time.Time
}

// Override is a per-user, per-capability exception. It unconditionally
// determines that capability's outcome for the user, in either direction.
type Override struct {
	UserID       int64
	CapabilityID string
	Granted      bool
	Reason       string
	CreatedAt    time.Time
}

// Grant sources recorded on resolved permissions.
const (
	SourceProfile  = "profile"
	SourceOverride = "override"
)

// ResolvedPermission is one effective grant, enriched with display fields.
type ResolvedPermission struct {
	CapabilityID string `json:"capabilityId"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	SystemID     string `json:"systemId"`
	Source       string `json:"source"`
}

// Resolution is the effective permission set for a (user, optional system)
// pair. It is derived state: computed on demand, cached transiently by
// callers, never persisted.
type Resolution struct {
	UserID      int64
	SystemID    string
	SystemName  string
	Permissions []ResolvedPermission
}

// GrantedKeys returns the capability keys present in the resolution.
func (r Resolution) GrantedKeys() []string {
	keys := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		keys = append(keys, p.Key)
	}
	return keys
}

// Has reports whether the resolution grants the given capability key.
func (r Resolution) Has(key string) bool {
	for _, p := range r.Permissions {
		if p.Key == key {
			return true
		}
	}
	return false
}

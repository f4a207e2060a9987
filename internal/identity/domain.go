package identity

import "time"

// User is an identity record owned by the registry. Client systems mirror it
// read-only for presentation.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

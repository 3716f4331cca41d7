package identity

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no principal matches the lookup.
	ErrNotFound = errors.New("principal not found")
	// ErrExists is returned when the handle is already registered.
	ErrExists = errors.New("principal exists")
)

// Principal is an authenticated caller that may own token accounts and submit settlements.
type Principal struct {
	ID           string
	Handle       string
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Credentials request structure.
type Credentials struct {
	Handle   string
	PIN      string
	DeviceID string
}

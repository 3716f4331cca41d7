package accounts

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no token account matches the lookup.
var ErrNotFound = errors.New("token account not found")

const statusActive = "active"

// TokenAccount is a principal-owned ledger account holding one asset.
type TokenAccount struct {
	Code      string
	OwnerID   string
	Asset     string
	Status    string
	CreatedAt time.Time
}

// Balance is a point-in-time balance of a token account.
type Balance struct {
	Code   string
	Asset  string
	Amount uint64
	AsOf   time.Time
}

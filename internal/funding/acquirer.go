package funding

import (
	"context"

	"github.com/google/uuid"
)

// Acquirer authorizes external money entering the ledger.
type Acquirer interface {
	AuthorizeDeposit(ctx context.Context, input DepositAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision captures the acquirer's response.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// DepositAuthorization encapsulates details needed for a card-funded deposit.
type DepositAuthorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Asset      string
	Amount     uint64
}

// StaticAcquirer simulates a successful acquirer integration.
type StaticAcquirer struct{}

// AuthorizeDeposit approves the request with a synthetic reference.
func (StaticAcquirer) AuthorizeDeposit(_ context.Context, _ DepositAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}

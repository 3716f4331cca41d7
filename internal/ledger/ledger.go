package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/flash_settlement/internal/authority"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested movement.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAccountNotFound is returned when a referenced account code is unknown.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when opening an account whose code is taken
	// by a different owner or asset.
	ErrAccountExists = errors.New("account exists")

	// ErrAssetMismatch is returned when both sides of a transfer do not hold the same asset.
	ErrAssetMismatch = errors.New("asset mismatch")

	// ErrUnauthorized is returned when the signer does not own the source account.
	ErrUnauthorized = errors.New("signer does not own source account")

	// ErrAmountOutOfRange is returned when a backend cannot represent the amount.
	ErrAmountOutOfRange = errors.New("amount out of range")

	// ErrBalanceOverflow is returned when crediting would exceed the balance range.
	ErrBalanceOverflow = errors.New("balance overflow")
)

// IssuanceAccountPrefix prefixes the per-asset account that deposits are issued from.
const IssuanceAccountPrefix = "issuance:"

// Account is a token account: a balance of one asset owned by one identity.
type Account struct {
	Code  string
	Owner authority.Identity
	Asset string
}

// IssueResult captures the outcome of an idempotent deposit.
type IssueResult struct {
	TransactionID string
	Balance       uint64
}

// Tx stages balance movements inside one atomic unit.
type Tx interface {
	// Transfer moves amount from one account to another, authorized by signer.
	// The signer must own the source account and both accounts must hold the same asset.
	Transfer(ctx context.Context, fromCode, toCode string, signer authority.Signer, amount uint64) error
	// Balance returns the balance as seen inside the unit, staged movements included.
	Balance(ctx context.Context, code string) (uint64, error)
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	OpenAccount(ctx context.Context, account Account) error
	Account(ctx context.Context, code string) (Account, error)
	Balance(ctx context.Context, code string) (uint64, error)
	Issue(ctx context.Context, code, clientTxID string, amount uint64) (IssueResult, error)
	Supply(ctx context.Context, asset string) (uint64, error)
	// Atomic runs fn as one unit of work. If fn returns an error every movement it
	// staged is discarded; otherwise all of them are committed together.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// IssuanceAccountCode returns the issuance account for asset.
func IssuanceAccountCode(asset string) string {
	return IssuanceAccountPrefix + asset
}

func checkTransfer(from, to Account, signer authority.Signer) error {
	if from.Asset != to.Asset {
		return fmt.Errorf("%w: %s holds %s, %s holds %s", ErrAssetMismatch, from.Code, from.Asset, to.Code, to.Asset)
	}
	if signer == nil || signer.Identity().IsZero() || signer.Identity() != from.Owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, from.Code)
	}
	return nil
}

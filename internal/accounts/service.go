package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/flash_settlement/internal/authority"
	"github.com/congo-pay/flash_settlement/internal/ledger"
)

// CodePrefix prefixes every principal-owned token account code.
const CodePrefix = "acct:"

// Service opens token accounts for principals and reads their balances.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
}

// NewService builds an accounts service instance.
func NewService(repo Repository, l ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: l}
}

// Open provisions a ledger account for asset owned by the principal's identity.
func (s *Service) Open(ctx context.Context, ownerID, asset string) (TokenAccount, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return TokenAccount{}, fmt.Errorf("invalid owner id: %w", err)
	}
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return TokenAccount{}, fmt.Errorf("asset is required")
	}

	code := CodePrefix + uuid.NewString()
	if err := s.ledger.OpenAccount(ctx, ledger.Account{
		Code:  code,
		Owner: authority.ForPrincipal(ownerID),
		Asset: asset,
	}); err != nil {
		return TokenAccount{}, err
	}

	a := TokenAccount{
		Code:      code,
		OwnerID:   ownerID,
		Asset:     asset,
		Status:    statusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return TokenAccount{}, err
	}
	return a, nil
}

// Get returns token account metadata.
func (s *Service) Get(ctx context.Context, code string) (TokenAccount, error) {
	return s.repo.Get(ctx, code)
}

// ListByOwner returns every token account the principal owns.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]TokenAccount, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Balance returns the ledger balance of a principal's token account.
func (s *Service) Balance(ctx context.Context, code, ownerID string) (Balance, error) {
	a, err := s.repo.Get(ctx, code)
	if err != nil {
		return Balance{}, err
	}
	if ownerID != "" && a.OwnerID != ownerID {
		return Balance{}, ErrNotFound
	}
	amount, err := s.ledger.Balance(ctx, a.Code)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Code: a.Code, Asset: a.Asset, Amount: amount, AsOf: time.Now().UTC()}, nil
}

package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/flash_settlement/internal/accounts"
	"github.com/congo-pay/flash_settlement/internal/ledger"
)

const (
	statusCompleted = "completed"
	statusDuplicate = "duplicate"
)

// Service credits token accounts with externally authorized deposits.
type Service struct {
	ledger   ledger.Ledger
	accounts *accounts.Service
	acquirer Acquirer
}

// NewService prepares a funding service.
func NewService(ledgerBackend ledger.Ledger, accts *accounts.Service, acquirer Acquirer) (*Service, error) {
	if ledgerBackend == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if accts == nil {
		return nil, fmt.Errorf("accounts service is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	return &Service{ledger: ledgerBackend, accounts: accts, acquirer: acquirer}, nil
}

// DepositInput captures the required data for a card-funded deposit.
type DepositInput struct {
	OwnerID     string
	AccountCode string
	Amount      uint64
	ClientTxID  string
	CardNumber  string
	Expiry      string
	CVV         string
}

// DepositResult represents the domain outcome of a deposit.
type DepositResult struct {
	TransactionID     string
	Status            string
	AccountCode       string
	Balance           uint64
	AcquirerReference string
	CompletedAt       time.Time
}

// Deposit authorizes a card payment and issues the amount into the owner's token account.
// A repeated ClientTxID returns the original result with ledger.ErrDuplicateTransaction.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (DepositResult, error) {
	if err := validateCardNumber(input.CardNumber); err != nil {
		return DepositResult{}, err
	}
	if input.Amount == 0 {
		return DepositResult{}, fmt.Errorf("amount must be positive")
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	acct, err := s.accounts.Get(ctx, input.AccountCode)
	if err != nil {
		return DepositResult{}, err
	}
	if acct.OwnerID != input.OwnerID {
		return DepositResult{}, accounts.ErrNotFound
	}

	decision, err := s.acquirer.AuthorizeDeposit(ctx, DepositAuthorization{
		CardNumber: input.CardNumber,
		Expiry:     input.Expiry,
		CVV:        input.CVV,
		Asset:      acct.Asset,
		Amount:     input.Amount,
	})
	if err != nil {
		return DepositResult{}, err
	}

	issued, err := s.ledger.Issue(ctx, acct.Code, depositKey(input.OwnerID, input.ClientTxID), input.Amount)
	result := DepositResult{
		TransactionID:     issued.TransactionID,
		Status:            statusCompleted,
		AccountCode:       acct.Code,
		Balance:           issued.Balance,
		AcquirerReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			result.Status = statusDuplicate
			return result, err
		}
		return DepositResult{}, err
	}
	return result, nil
}

// Client transaction ids are scoped per principal so two principals cannot collide.
func depositKey(ownerID, clientTxID string) string {
	return "deposit:" + ownerID + ":" + clientTxID
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("card number must be between 12 and 19 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("card number must be numeric")
		}
	}
	return nil
}

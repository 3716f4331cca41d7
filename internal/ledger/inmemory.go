package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/congo-pay/flash_settlement/internal/authority"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[string]Account
	balances map[string]uint64
	issued   map[string]uint64
	issues   map[string]IssueResult
	// unit serializes Atomic and Issue so a unit's staged balances stay current.
	unit sync.Mutex
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		accounts: make(map[string]Account),
		balances: make(map[string]uint64),
		issued:   make(map[string]uint64),
		issues:   make(map[string]IssueResult),
	}
}

func (l *inMemoryLedger) OpenAccount(_ context.Context, account Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.accounts[account.Code]; ok {
		if existing != account {
			return fmt.Errorf("%w: %s", ErrAccountExists, account.Code)
		}
		return nil
	}
	l.accounts[account.Code] = account
	l.balances[account.Code] = 0
	return nil
}

func (l *inMemoryLedger) Account(_ context.Context, code string) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, ok := l.accounts[code]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return account, nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, ok := l.balances[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return balance, nil
}

func (l *inMemoryLedger) Issue(_ context.Context, code, clientTxID string, amount uint64) (IssueResult, error) {
	if amount == 0 {
		return IssueResult{}, fmt.Errorf("%w: amount must be positive", ErrAmountOutOfRange)
	}

	l.unit.Lock()
	defer l.unit.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	key := "issue:" + clientTxID
	if res, exists := l.issues[key]; exists {
		return res, ErrDuplicateTransaction
	}

	account, ok := l.accounts[code]
	if !ok {
		return IssueResult{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	balance := l.balances[code]
	if balance > math.MaxUint64-amount || l.issued[account.Asset] > math.MaxUint64-amount {
		return IssueResult{}, ErrBalanceOverflow
	}

	balance += amount
	l.balances[code] = balance
	l.issued[account.Asset] += amount

	res := IssueResult{TransactionID: key, Balance: balance}
	l.issues[key] = res
	return res, nil
}

func (l *inMemoryLedger) Supply(_ context.Context, asset string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issued[asset], nil
}

func (l *inMemoryLedger) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	l.unit.Lock()
	defer l.unit.Unlock()

	tx := &memoryTx{ledger: l, staged: make(map[string]uint64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for code, balance := range tx.staged {
		l.balances[code] = balance
	}
	return nil
}

// memoryTx holds post-movement balances for the accounts a unit touched.
type memoryTx struct {
	ledger *inMemoryLedger
	staged map[string]uint64
}

func (t *memoryTx) lookup(code string) (Account, uint64, error) {
	t.ledger.mu.RLock()
	defer t.ledger.mu.RUnlock()
	account, ok := t.ledger.accounts[code]
	if !ok {
		return Account{}, 0, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	if staged, ok := t.staged[code]; ok {
		return account, staged, nil
	}
	return account, t.ledger.balances[code], nil
}

func (t *memoryTx) Transfer(_ context.Context, fromCode, toCode string, signer authority.Signer, amount uint64) error {
	from, fromBalance, err := t.lookup(fromCode)
	if err != nil {
		return err
	}
	to, toBalance, err := t.lookup(toCode)
	if err != nil {
		return err
	}
	if err := checkTransfer(from, to, signer); err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, fromCode, fromBalance, amount)
	}
	if fromCode == toCode {
		return nil
	}
	if toBalance > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, toCode)
	}

	t.staged[fromCode] = fromBalance - amount
	t.staged[toCode] = toBalance + amount
	return nil
}

func (t *memoryTx) Balance(_ context.Context, code string) (uint64, error) {
	_, balance, err := t.lookup(code)
	return balance, err
}

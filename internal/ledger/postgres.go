package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/flash_settlement/internal/authority"
)

const statusCompleted = "completed"

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// OpenAccount creates the account, or accepts an identical existing one.
func (l *PostgresLedger) OpenAccount(ctx context.Context, account Account) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id, code, owner, asset) VALUES ($1, $2, $3, $4)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), account.Code, account.Owner[:], account.Asset)
	if err != nil {
		return err
	}
	existing, err := l.Account(ctx, account.Code)
	if err != nil {
		return err
	}
	if existing != account {
		return fmt.Errorf("%w: %s", ErrAccountExists, account.Code)
	}
	return nil
}

// Account loads account metadata by code.
func (l *PostgresLedger) Account(ctx context.Context, code string) (Account, error) {
	var owner []byte
	account := Account{Code: code}
	err := l.db.QueryRow(ctx, `SELECT owner, asset FROM accounts WHERE code = $1`, code).Scan(&owner, &account.Asset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return Account{}, err
	}
	copy(account.Owner[:], owner)
	return account, nil
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (uint64, error) {
	const query = `
        SELECT a.id, COALESCE(SUM(e.amount), 0)
        FROM accounts a
        LEFT JOIN entries e ON e.account_id = a.id
        WHERE a.code = $1
        GROUP BY a.id`
	var id uuid.UUID
	var balance int64
	if err := l.db.QueryRow(ctx, query, code).Scan(&id, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return 0, err
	}
	if balance < 0 {
		return 0, nil
	}
	return uint64(balance), nil
}

// Issue credits code from the asset's issuance account. Replays of clientTxID return
// the original result with ErrDuplicateTransaction.
func (l *PostgresLedger) Issue(ctx context.Context, code, clientTxID string, amount uint64) (IssueResult, error) {
	if amount == 0 || amount > math.MaxInt64 {
		return IssueResult{}, fmt.Errorf("%w: %d", ErrAmountOutOfRange, amount)
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return IssueResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	target, err := lockAccount(ctx, tx, code)
	if err != nil {
		return IssueResult{}, err
	}

	const existingQuery = `SELECT id FROM transactions WHERE client_tx_id = $1 AND kind = 'issue'`
	var existingTxID uuid.UUID
	if err := tx.QueryRow(ctx, existingQuery, clientTxID).Scan(&existingTxID); err == nil {
		bal, balErr := balanceForAccount(ctx, tx, target.id)
		if balErr != nil {
			return IssueResult{}, balErr
		}
		return IssueResult{TransactionID: existingTxID.String(), Balance: bal}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return IssueResult{}, err
	}

	issuanceCode := IssuanceAccountCode(target.account.Asset)
	if _, err := tx.Exec(ctx, `INSERT INTO accounts (id, code, owner, asset) VALUES ($1, $2, $3, $4)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), issuanceCode, authority.Zero[:], target.account.Asset); err != nil {
		return IssueResult{}, err
	}
	issuance, err := lockAccount(ctx, tx, issuanceCode)
	if err != nil {
		return IssueResult{}, err
	}

	balance, err := balanceForAccount(ctx, tx, target.id)
	if err != nil {
		return IssueResult{}, err
	}
	if balance > math.MaxInt64-amount {
		return IssueResult{}, ErrBalanceOverflow
	}

	txID, err := postEntries(ctx, tx, clientTxID, "issue", issuance.id, target.id, amount)
	if err != nil {
		return IssueResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return IssueResult{}, err
	}
	return IssueResult{TransactionID: txID.String(), Balance: balance + amount}, nil
}

// Supply returns the total amount issued for asset.
func (l *PostgresLedger) Supply(ctx context.Context, asset string) (uint64, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)
        FROM entries e
        INNER JOIN accounts a ON a.id = e.account_id
        WHERE a.code = $1`
	var total int64
	if err := l.db.QueryRow(ctx, query, IssuanceAccountCode(asset)).Scan(&total); err != nil {
		return 0, err
	}
	if total > 0 {
		return 0, nil
	}
	return uint64(-total), nil
}

// Atomic runs fn inside a single database transaction.
func (l *PostgresLedger) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type postgresTx struct {
	tx pgx.Tx
}

type lockedAccount struct {
	id      uuid.UUID
	account Account
}

func (t *postgresTx) Transfer(ctx context.Context, fromCode, toCode string, signer authority.Signer, amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("%w: %d", ErrAmountOutOfRange, amount)
	}

	// Lock in code order so concurrent units touching the same pair cannot deadlock.
	codes := []string{fromCode, toCode}
	sort.Strings(codes)
	locked := make(map[string]lockedAccount, 2)
	for _, code := range codes {
		if _, ok := locked[code]; ok {
			continue
		}
		acc, err := lockAccount(ctx, t.tx, code)
		if err != nil {
			return err
		}
		locked[code] = acc
	}
	from, to := locked[fromCode], locked[toCode]

	if err := checkTransfer(from.account, to.account, signer); err != nil {
		return err
	}
	fromBalance, err := balanceForAccount(ctx, t.tx, from.id)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, fromCode, fromBalance, amount)
	}
	if amount == 0 || fromCode == toCode {
		return nil
	}
	toBalance, err := balanceForAccount(ctx, t.tx, to.id)
	if err != nil {
		return err
	}
	if toBalance > math.MaxInt64-amount {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, toCode)
	}

	_, err = postEntries(ctx, t.tx, uuid.NewString(), "transfer", from.id, to.id, amount)
	return err
}

func (t *postgresTx) Balance(ctx context.Context, code string) (uint64, error) {
	acc, err := lockAccount(ctx, t.tx, code)
	if err != nil {
		return 0, err
	}
	return balanceForAccount(ctx, t.tx, acc.id)
}

func postEntries(ctx context.Context, tx pgx.Tx, clientTxID, kind string, fromID, toID uuid.UUID, amount uint64) (uuid.UUID, error) {
	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`, txID, clientTxID, kind, statusCompleted); err != nil {
		return uuid.Nil, err
	}
	signed := int64(amount)
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, fromID, -signed); err != nil {
		return uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, toID, signed); err != nil {
		return uuid.Nil, err
	}
	return txID, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, code string) (lockedAccount, error) {
	const query = `SELECT id, owner, asset FROM accounts WHERE code = $1 FOR UPDATE`
	var owner []byte
	res := lockedAccount{account: Account{Code: code}}
	if err := tx.QueryRow(ctx, query, code).Scan(&res.id, &owner, &res.account.Asset); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedAccount{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return lockedAccount{}, err
	}
	copy(res.account.Owner[:], owner)
	return res, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (uint64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if balance < 0 {
		return 0, nil
	}
	return uint64(balance), nil
}

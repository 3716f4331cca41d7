package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores token account metadata. Balances live in the ledger.
type Repository interface {
	Create(ctx context.Context, a TokenAccount) error
	Get(ctx context.Context, code string) (TokenAccount, error)
	ListByOwner(ctx context.Context, ownerID string) ([]TokenAccount, error)
}

// PostgresRepository implements Repository on the token_accounts table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed token account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts token account metadata.
func (r *PostgresRepository) Create(ctx context.Context, a TokenAccount) error {
	ownerID, err := uuid.Parse(a.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO token_accounts (code, owner_id, asset, status, created_at)
        VALUES ($1, $2, $3, $4, $5)`, a.Code, ownerID, a.Asset, a.Status, a.CreatedAt.UTC())
	return err
}

// Get fetches one token account.
func (r *PostgresRepository) Get(ctx context.Context, code string) (TokenAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT code, owner_id, asset, status, created_at FROM token_accounts WHERE code = $1`, code)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenAccount{}, ErrNotFound
	}
	return a, err
}

// ListByOwner returns the owner's token accounts, oldest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]TokenAccount, error) {
	oid, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT code, owner_id, asset, status, created_at FROM token_accounts
        WHERE owner_id = $1 ORDER BY created_at`, oid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TokenAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (TokenAccount, error) {
	var (
		owner     uuid.UUID
		createdAt time.Time
		a         TokenAccount
	)
	if err := row.Scan(&a.Code, &owner, &a.Asset, &a.Status, &createdAt); err != nil {
		return TokenAccount{}, err
	}
	a.OwnerID = owner.String()
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

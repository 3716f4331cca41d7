package settlement

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores settlement records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a journal backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectRecord = `SELECT id, principal_id, unit_id, reserve_code, destination_code, funding_code, payout_code,
        loan_amount::text, min_profit::text, profit::text, repay_amount::text,
        outcome, final_state, error_kind, error_message, created_at
        FROM settlements`

// Create inserts a settlement record. Amounts are stored as NUMERIC to keep the full uint64 range.
func (r *PostgresRepository) Create(ctx context.Context, record Record) error {
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO settlements (id, principal_id, unit_id, reserve_code, destination_code, funding_code,
        payout_code, loan_amount, min_profit, profit, repay_amount, outcome, final_state, error_kind, error_message, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, $13, $14, $15, $16)`,
		id, record.PrincipalID, record.UnitID, record.Accounts.Reserve, record.Accounts.Destination, record.Accounts.Funding,
		record.Accounts.Payout, formatAmount(record.LoanAmount), formatAmount(record.MinProfit),
		formatAmount(record.Profit), formatAmount(record.RepayAmount), record.Outcome, string(record.FinalState),
		record.ErrorKind, record.ErrorMessage, record.CreatedAt.UTC())
	return err
}

// Get fetches a record by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	settlementID, err := uuid.Parse(id)
	if err != nil {
		return Record{}, ErrNotFound
	}
	record, err := scanRecord(r.db.QueryRow(ctx, selectRecord+` WHERE id = $1`, settlementID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return record, err
}

// ListByPrincipal returns the principal's most recent records first.
func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, selectRecord+` WHERE principal_id = $1 ORDER BY created_at DESC LIMIT $2`, principalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Stats aggregates outcomes and committed profit.
func (r *PostgresRepository) Stats(ctx context.Context) (Stats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE outcome = 'committed'),
               COALESCE(SUM(profit) FILTER (WHERE outcome = 'committed'), 0)::text
        FROM settlements`
	var s Stats
	var totalProfit string
	if err := r.db.QueryRow(ctx, query).Scan(&s.Total, &s.Committed, &totalProfit); err != nil {
		return Stats{}, err
	}
	s.Aborted = s.Total - s.Committed
	profit, err := strconv.ParseUint(totalProfit, 10, 64)
	if err != nil {
		// the sum can exceed uint64 even though each record fits
		profit = math.MaxUint64
	}
	s.TotalProfit = profit
	return finishStats(s), nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		record                         Record
		id                             uuid.UUID
		loan, minProfit, profit, repay string
		finalState                     string
		createdAt                      time.Time
	)
	err := row.Scan(&id, &record.PrincipalID, &record.UnitID, &record.Accounts.Reserve, &record.Accounts.Destination,
		&record.Accounts.Funding, &record.Accounts.Payout, &loan, &minProfit, &profit, &repay,
		&record.Outcome, &finalState, &record.ErrorKind, &record.ErrorMessage, &createdAt)
	if err != nil {
		return Record{}, err
	}
	record.ID = id.String()
	record.FinalState = State(finalState)
	record.CreatedAt = createdAt.UTC()
	for _, f := range []struct {
		raw string
		dst *uint64
	}{{loan, &record.LoanAmount}, {minProfit, &record.MinProfit}, {profit, &record.Profit}, {repay, &record.RepayAmount}} {
		if *f.dst, err = strconv.ParseUint(f.raw, 10, 64); err != nil {
			return Record{}, err
		}
	}
	return record, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

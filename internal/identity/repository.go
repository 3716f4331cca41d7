package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists principals.
type Repository interface {
	Create(ctx context.Context, p Principal) error
	FindByHandle(ctx context.Context, handle string) (Principal, error)
	FindByID(ctx context.Context, id string) (Principal, error)
	UpdateDevice(ctx context.Context, id, deviceID string) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectPrincipal = `SELECT id, handle, pin_hash, device_id, token_version, created_at, last_login FROM principals`

// Create inserts a new principal.
func (r *PostgresRepository) Create(ctx context.Context, p Principal) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO principals (id, handle, pin_hash, device_id, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, id, p.Handle, p.PINHash, p.DeviceID, p.TokenVersion, p.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByHandle fetches a principal by login handle.
func (r *PostgresRepository) FindByHandle(ctx context.Context, handle string) (Principal, error) {
	return r.scan(r.db.QueryRow(ctx, selectPrincipal+` WHERE handle = $1`, handle))
}

// FindByID fetches a principal by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Principal, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return Principal{}, ErrNotFound
	}
	return r.scan(r.db.QueryRow(ctx, selectPrincipal+` WHERE id = $1`, pid))
}

// UpdateDevice stores the principal's bound device identifier.
func (r *PostgresRepository) UpdateDevice(ctx context.Context, id, deviceID string) error {
	return r.update(ctx, `UPDATE principals SET device_id = $1 WHERE id = $2`, id, deviceID)
}

// UpdateTokenVersion replaces the token version, invalidating tokens minted under older ones.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.update(ctx, `UPDATE principals SET token_version = $1 WHERE id = $2`, id, version)
}

// TouchLogin records a successful login.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, `UPDATE principals SET last_login = $1 WHERE id = $2`, id, at.UTC())
}

func (r *PostgresRepository) update(ctx context.Context, query, id string, value any) error {
	pid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query, value, pid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scan(row pgx.Row) (Principal, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		lastLogin *time.Time
		p         Principal
	)
	if err := row.Scan(&id, &p.Handle, &p.PINHash, &p.DeviceID, &p.TokenVersion, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	p.ID = id.String()
	p.CreatedAt = createdAt.UTC()
	if lastLogin != nil {
		t := lastLogin.UTC()
		p.LastLogin = &t
	}
	return p, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage"
)

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505"
)

// Store provides Postgres persistence for address classifications.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ storage.ClassificationStore = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Exec runs a statement on the pool; used for migrations.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.pool.Exec(ctx, sql, args...)
}

// Get returns the classification for a checksummed address, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, address string) (model.AddressClassification, error) {
	var c model.AddressClassification
	row := s.pool.QueryRow(ctx, `SELECT address, is_contract FROM addresses WHERE address = $1`, address)
	if err := row.Scan(&c.Address, &c.IsContract); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AddressClassification{}, storage.ErrNotFound
		}
		return model.AddressClassification{}, fmt.Errorf("get address %s: %w", address, err)
	}
	return c, nil
}

// UpsertIfAbsent inserts the classification unless the address exists, then returns
// whichever row is stored. A concurrent writer that wins the insert is read back.
func (s *Store) UpsertIfAbsent(ctx context.Context, c model.AddressClassification) (model.AddressClassification, error) {
	if c.Address == "" {
		return model.AddressClassification{}, storage.ErrInvalidInput
	}

	var stored model.AddressClassification
	row := s.pool.QueryRow(ctx, `
		INSERT INTO addresses (address, is_contract, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (address) DO NOTHING
		RETURNING address, is_contract
	`, c.Address, c.IsContract)
	err := row.Scan(&stored.Address, &stored.IsContract)
	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, pgx.ErrNoRows), isDuplicateKeyError(err):
		// lost the race; the existing row is authoritative
	default:
		return model.AddressClassification{}, fmt.Errorf("insert address %s: %w", c.Address, err)
	}

	stored, err = s.Get(ctx, c.Address)
	if err != nil {
		return model.AddressClassification{}, fmt.Errorf("read back address %s: %w", c.Address, err)
	}
	return stored, nil
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

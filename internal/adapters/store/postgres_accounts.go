package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type PostgresAccountStore struct {
	db    *sql.DB
	table string
}

func NewPostgresAccountStore(db *sql.DB, table string) *PostgresAccountStore {
	return &PostgresAccountStore{db: db, table: pq.QuoteIdentifier(table)}
}

func (p *PostgresAccountStore) EnsureSchema(ctx context.Context) error {
	stmt := "CREATE TABLE IF NOT EXISTS " + p.table + ` (
	id            BIGSERIAL PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%w: accounts schema: %w", ports.ErrStorage, err)
	}
	return nil
}

func (p *PostgresAccountStore) CreateAccount(ctx context.Context, email string, passwordHash []byte) (domain.Account, error) {
	acc := domain.Account{Email: email, PasswordHash: passwordHash}
	err := p.db.QueryRowContext(ctx,
		"INSERT INTO "+p.table+" (email, password_hash) VALUES ($1, $2) RETURNING id, created_at",
		email, passwordHash,
	).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return domain.Account{}, ports.ErrDuplicateEmail
		}
		return domain.Account{}, fmt.Errorf("%w: create account: %w", ports.ErrStorage, err)
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	return acc, nil
}

func (p *PostgresAccountStore) FindAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	acc := domain.Account{}
	err := p.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM "+p.table+" WHERE email = $1",
		email,
	).Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, ports.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: find account: %w", ports.ErrStorage, err)
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	return acc, nil
}

var _ ports.AccountStore = (*PostgresAccountStore)(nil)

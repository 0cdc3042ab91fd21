package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

func (s *SQLiteStore) CreateAccount(ctx context.Context, email string, passwordHash []byte) (domain.Account, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: sqlite take: %w", ports.ErrStorage, err)
	}
	defer s.pool.Put(conn)

	created := s.now().UTC().Truncate(domain.TimestampPrecision)
	err = sqlitex.Execute(conn,
		"INSERT INTO usuarios (email, password_hash, created_at) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{email, passwordHash, created.UnixMicro()}})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return domain.Account{}, ports.ErrDuplicateEmail
		}
		return domain.Account{}, fmt.Errorf("%w: create account: %w", ports.ErrStorage, err)
	}
	return domain.Account{
		ID:           conn.LastInsertRowID(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    created,
	}, nil
}

func (s *SQLiteStore) FindAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: sqlite take: %w", ports.ErrStorage, err)
	}
	defer s.pool.Put(conn)

	var (
		acc   domain.Account
		found bool
	)
	err = sqlitex.Execute(conn,
		"SELECT id, email, password_hash, created_at FROM usuarios WHERE email = ?",
		&sqlitex.ExecOptions{
			Args: []any{email},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				acc.ID = stmt.ColumnInt64(0)
				acc.Email = stmt.ColumnText(1)
				acc.PasswordHash = make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, acc.PasswordHash)
				acc.CreatedAt = time.UnixMicro(stmt.ColumnInt64(3)).UTC()
				return nil
			},
		})
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: find account: %w", ports.ErrStorage, err)
	}
	if !found {
		return domain.Account{}, ports.ErrAccountNotFound
	}
	return acc, nil
}

var _ ports.AccountStore = (*SQLiteStore)(nil)

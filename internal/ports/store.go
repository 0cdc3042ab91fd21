package ports

import (
	"context"
	"errors"
	"time"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
)

var (
	// ErrStorage marks a persistence failure. Callers surface it as a 5xx
	// and never retry silently.
	ErrStorage = errors.New("storage failure")

	ErrDuplicateEmail  = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
)

// SampleStore is the durable, timestamp-ordered home of every sample.
// Queries return newest-first.
type SampleStore interface {
	Insert(ctx context.Context, s domain.Sample) (domain.StoredSample, error)
	QueryRecent(ctx context.Context, limit int) ([]domain.StoredSample, error)
	QueryRange(ctx context.Context, from, to time.Time, limit int) ([]domain.StoredSample, error)
	Name() string
}

type AccountStore interface {
	CreateAccount(ctx context.Context, email string, passwordHash []byte) (domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (domain.Account, error)
}

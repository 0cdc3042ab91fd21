package ports

import (
	"context"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
)

// Conn is one live viewer of the push channel.
type Conn interface {
	Send(ctx context.Context, s *domain.StoredSample) error
	// Done is closed once the remote side has gone away.
	Done() <-chan struct{}
	Close() error
}

package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// Subscription is one registered connection and its outbox.
type Subscription struct {
	id      uint64
	joinSeq uint64
	conn    ports.Conn
	outbox  chan *domain.StoredSample
	quit    chan struct{}
	b       *Broadcaster

	once     sync.Once
	closeErr error
}

func (s *Subscription) ID() uint64 { return s.id }

// Done is closed once the subscription has been removed, for whatever reason.
func (s *Subscription) Done() <-chan struct{} { return s.quit }

// Close unregisters the subscription and closes its connection.
func (s *Subscription) Close() error {
	s.b.remove(s, "closed")
	return s.closeErr
}

func (s *Subscription) shutdown() error {
	s.once.Do(func() {
		close(s.quit)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Subscription) writeLoop(timeout time.Duration) {
	for {
		select {
		case <-s.quit:
			return
		case <-s.conn.Done():
			s.b.remove(s, "connection gone")
			return
		case sample := <-s.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := s.conn.Send(ctx, sample)
			cancel()
			if err != nil {
				s.b.obs.LogDebug("subscriber send failed",
					ports.Field{Key: "subscriber", Value: s.id},
					ports.Field{Key: "error", Value: err.Error()})
				s.b.remove(s, "send failed")
				return
			}
			s.b.obs.IncCounter(ports.MetricFanoutDelivered, 1)
		}
	}
}

package monitoreo

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelSubscriberClosed is returned when a channel subscriber is sent to
// after being closed.
var ErrChannelSubscriberClosed = errors.New("monitoreo: channel subscriber closed")

// NewChannelSubscriber exposes pushed samples on a channel for in-process
// consumers. Register the returned Conn with Runtime.Subscribe; call the
// close function during shutdown, after which the channel is closed.
func NewChannelSubscriber(buffer int) (Conn, <-chan StoredSample, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &channelSubscriber{
		ch:     make(chan StoredSample, buffer),
		closed: make(chan struct{}),
	}
	return s, s.ch, func() { _ = s.Close() }
}

type channelSubscriber struct {
	// mu is held shared by senders so the channel is never closed under them.
	mu     sync.RWMutex
	ch     chan StoredSample
	closed chan struct{}
	once   sync.Once
}

func (s *channelSubscriber) Send(ctx context.Context, sample *StoredSample) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSubscriberClosed
	default:
	}

	select {
	case <-s.closed:
		return ErrChannelSubscriberClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- *sample:
		return nil
	}
}

func (s *channelSubscriber) Done() <-chan struct{} { return s.closed }

func (s *channelSubscriber) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

package queue

import (
	"sync"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// MemQueue is the bounded FIFO mailbox between ingestion and the fan-out loop.
// Enqueue never blocks; callers apply their own full-queue policy.
type MemQueue struct {
	mu     sync.Mutex
	data   []ports.QueuedSample
	cap    int
	notify chan struct{}
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data:   make([]ports.QueuedSample, 0, capacity),
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
}

func (q *MemQueue) Enqueue(seq uint64, s *domain.StoredSample) bool {
	q.mu.Lock()
	if len(q.data) >= q.cap {
		q.mu.Unlock()
		return false
	}
	q.data = append(q.data, ports.QueuedSample{Seq: seq, Sample: s})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedSample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.QueuedSample, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Ready fires after an Enqueue. A single signal may cover several items, so
// consumers drain until DequeueBatch comes back empty.
func (q *MemQueue) Ready() <-chan struct{} {
	return q.notify
}

var _ ports.SampleQueue = (*MemQueue)(nil)

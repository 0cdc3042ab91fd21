package ports

import "github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"

// QueuedSample is a publish event waiting in the broadcaster mailbox. Seq
// orders it against subscriptions.
type QueuedSample struct {
	Seq    uint64
	Sample *domain.StoredSample
}

type SampleQueue interface {
	Enqueue(seq uint64, s *domain.StoredSample) bool
	DequeueBatch(max int) []QueuedSample
	Len() int
}

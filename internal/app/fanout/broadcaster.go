package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/queue"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

var (
	ErrClosed             = errors.New("fanout: broadcaster closed")
	ErrTooManySubscribers = errors.New("fanout: subscriber limit reached")
	ErrQueueFull          = errors.New("fanout: publish queue full")
)

const (
	PolicyBlock = "block"
	PolicyDrop  = "drop"
)

// DefaultPolicy is used for every zero field of the policy passed to New.
var DefaultPolicy = ports.FanoutPolicy{
	MaxQueueLen:      1024,
	MaxBatchSize:     64,
	IdleSleep:        5 * time.Millisecond,
	SubscriberBuffer: 32,
	WriteTimeout:     5 * time.Second,
	OnQueueFull:      PolicyBlock,
}

// Broadcaster pushes every published sample to the subscriptions that were
// registered before it was published. Publish only enqueues; a single
// dispatch loop (Run) hands events to per-subscription outboxes, and each
// subscription has its own writer goroutine.
type Broadcaster struct {
	pol   ports.FanoutPolicy
	obs   ports.Observability
	queue *queue.MemQueue

	mu     sync.Mutex
	seq    uint64
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool

	done chan struct{}
}

func New(pol ports.FanoutPolicy, obs ports.Observability) *Broadcaster {
	pol = withDefaults(pol)
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Broadcaster{
		pol:   pol,
		obs:   obs,
		queue: queue.NewMemQueue(pol.MaxQueueLen),
		subs:  make(map[uint64]*Subscription),
		done:  make(chan struct{}),
	}
}

func withDefaults(pol ports.FanoutPolicy) ports.FanoutPolicy {
	if pol.MaxQueueLen <= 0 {
		pol.MaxQueueLen = DefaultPolicy.MaxQueueLen
	}
	if pol.MaxBatchSize <= 0 {
		pol.MaxBatchSize = DefaultPolicy.MaxBatchSize
	}
	if pol.IdleSleep <= 0 {
		pol.IdleSleep = DefaultPolicy.IdleSleep
	}
	if pol.SubscriberBuffer <= 0 {
		pol.SubscriberBuffer = DefaultPolicy.SubscriberBuffer
	}
	if pol.WriteTimeout <= 0 {
		pol.WriteTimeout = DefaultPolicy.WriteTimeout
	}
	if pol.OnQueueFull == "" {
		pol.OnQueueFull = DefaultPolicy.OnQueueFull
	}
	return pol
}

// Subscribe registers conn. Only samples published after Subscribe returns
// are delivered to it.
func (b *Broadcaster) Subscribe(conn ports.Conn) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.pol.MaxSubscribers > 0 && len(b.subs) >= b.pol.MaxSubscribers {
		b.mu.Unlock()
		return nil, ErrTooManySubscribers
	}
	b.seq++
	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		joinSeq: b.seq,
		conn:    conn,
		outbox:  make(chan *domain.StoredSample, b.pol.SubscriberBuffer),
		quit:    make(chan struct{}),
		b:       b,
	}
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()

	b.obs.SetGauge(ports.MetricSubscribers, float64(n))
	b.obs.LogDebug("subscriber joined", ports.Field{Key: "subscriber", Value: sub.id})

	go sub.writeLoop(b.pol.WriteTimeout)
	return sub, nil
}

// Publish hands s to the dispatch loop. With the drop policy a full mailbox
// returns ErrQueueFull immediately; with block it waits for room or ctx.
func (b *Broadcaster) Publish(ctx context.Context, s *domain.StoredSample) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	if err := b.enqueueWithPolicy(ctx, seq, s); err != nil {
		b.obs.IncCounter(ports.MetricFanoutDropped, 1)
		return err
	}
	return nil
}

func (b *Broadcaster) enqueueWithPolicy(ctx context.Context, seq uint64, s *domain.StoredSample) error {
	for {
		if ok := b.queue.Enqueue(seq, s); ok {
			return nil
		}

		switch b.pol.OnQueueFull {
		case PolicyBlock:
			select {
			case <-time.After(b.pol.IdleSleep):
			case <-ctx.Done():
				return ctx.Err()
			case <-b.done:
				return ErrClosed
			}
		case PolicyDrop:
			b.obs.LogError("fanout queue full, dropping sample", ErrQueueFull,
				ports.Field{Key: "capacity", Value: b.pol.MaxQueueLen})
			return ErrQueueFull
		default:
			return fmt.Errorf("fanout: invalid queue policy %q", b.pol.OnQueueFull)
		}
	}
}

// Run is the dispatch loop. It returns when ctx is cancelled or the
// broadcaster is closed.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		batch := b.queue.DequeueBatch(b.pol.MaxBatchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-b.queue.Ready():
			}
			continue
		}

		for _, ev := range batch {
			b.dispatch(ev)
		}
	}
}

func (b *Broadcaster) dispatch(ev ports.QueuedSample) {
	for _, sub := range b.snapshot() {
		if sub.joinSeq >= ev.Seq {
			continue
		}
		select {
		case sub.outbox <- ev.Sample:
		default:
			b.obs.IncCounter(ports.MetricFanoutDropped, 1)
			b.remove(sub, "outbox full")
		}
	}
}

func (b *Broadcaster) snapshot() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		out = append(out, sub)
	}
	return out
}

func (b *Broadcaster) remove(sub *Subscription, reason string) {
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	n := len(b.subs)
	b.mu.Unlock()

	sub.shutdown()
	if ok {
		b.obs.SetGauge(ports.MetricSubscribers, float64(n))
		b.obs.LogDebug("subscriber removed",
			ports.Field{Key: "subscriber", Value: sub.id},
			ports.Field{Key: "reason", Value: reason})
	}
}

// Subscribers is the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// QueueLen is the number of published samples not yet dispatched.
func (b *Broadcaster) QueueLen() int {
	return b.queue.Len()
}

// Close stops the dispatch loop and closes every subscription. Samples still
// in the mailbox are discarded.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	close(b.done)
	var errs []error
	for _, sub := range subs {
		if err := sub.shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	b.obs.SetGauge(ports.MetricSubscribers, 0)
	return errors.Join(errs...)
}

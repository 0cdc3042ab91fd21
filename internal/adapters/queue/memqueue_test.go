package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	s1 := &domain.StoredSample{ID: 1}
	s2 := &domain.StoredSample{ID: 2}

	require.True(t, q.Enqueue(10, s1))
	require.True(t, q.Enqueue(11, s2))

	batch := q.DequeueBatch(1)
	require.Len(t, batch, 1)
	assert.Equal(t, uint64(10), batch[0].Seq)
	assert.Equal(t, int64(1), batch[0].Sample.ID)

	remaining := q.DequeueBatch(10)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint64(11), remaining[0].Seq)

	assert.Zero(t, q.Len())
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	sample := &domain.StoredSample{ID: 7}

	require.True(t, q.Enqueue(1, sample))
	require.True(t, q.Enqueue(2, sample))
	assert.False(t, q.Enqueue(3, sample), "enqueue should fail when capacity exceeded")

	q.DequeueBatch(1)
	assert.True(t, q.Enqueue(4, sample), "expected enqueue to succeed after dequeue")
}

func TestMemQueueReadySignal(t *testing.T) {
	q := NewMemQueue(4)

	select {
	case <-q.Ready():
		t.Fatal("ready must not fire on an empty queue")
	default:
	}

	q.Enqueue(1, &domain.StoredSample{ID: 1})
	q.Enqueue(2, &domain.StoredSample{ID: 2})

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal after enqueue")
	}
	assert.Len(t, q.DequeueBatch(0), 2)
}

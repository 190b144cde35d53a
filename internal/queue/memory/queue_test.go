package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parselab/shop-parser/internal/parser"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, parser.QueueItem{TaskID: "a"}))
	require.NoError(t, q.Enqueue(ctx, parser.QueueItem{TaskID: "b"}))

	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", item.TaskID)

	item, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", item.TaskID)
}

func TestQueueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Enqueue(context.Background(), parser.QueueItem{TaskID: "a"}))
	err = q.Enqueue(ctx, parser.QueueItem{TaskID: "b"})
	require.Error(t, err)
}

func TestQueueCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	q.Close()

	_, err := q.Dequeue(context.Background())
	require.Error(t, err)
}

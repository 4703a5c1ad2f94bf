package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital-e/supply-service/internal/models"
	"github.com/hospital-e/supply-service/internal/store"
)

// scriptReader plays back a fixed message sequence, then cancels the run.
type scriptReader struct {
	msgs    []kafka.Message
	commits []kafka.Message
	cancel  context.CancelFunc
	closed  bool
}

func (r *scriptReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if ctx.Err() != nil {
		return kafka.Message{}, ctx.Err()
	}
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *scriptReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.commits = append(r.commits, msgs...)
	return nil
}

func (r *scriptReader) Close() error {
	r.closed = true
	return nil
}

// failingStore rejects order creation so processing errors can be provoked.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) CreateOrder(ctx context.Context, in store.OrderInput) (models.Order, bool, error) {
	return models.Order{}, false, errors.New("connection reset")
}

func messageFor(t *testing.T, cmd OrderCreationCommand, offset int64) kafka.Message {
	t.Helper()
	body, err := json.Marshal(cmd)
	require.NoError(t, err)
	return kafka.Message{Value: body, Partition: 0, Offset: offset}
}

func TestConsumerCommitsProcessedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemoryStore()
	first := commandFixture()
	second := commandFixture()
	second.CommandID = "cmd-002"
	second.OrderID = "ORD-2025-002"

	reader := &scriptReader{
		msgs:   []kafka.Message{messageFor(t, first, 0), messageFor(t, second, 1)},
		cancel: cancel,
	}
	c := NewConsumerWithReader(reader, newTestProcessor(st), log.New(io.Discard, "", 0))

	require.NoError(t, c.Run(ctx))

	orders, err := st.ListOrders(ctx, "Hospital-E", "", 0)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Len(t, reader.commits, 2, "each processed message is committed")
}

func TestConsumerLeavesFailedMessagesUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &failingStore{MemoryStore: store.NewMemoryStore()}
	reader := &scriptReader{
		msgs:   []kafka.Message{messageFor(t, commandFixture(), 0)},
		cancel: cancel,
	}
	c := NewConsumerWithReader(reader, newTestProcessor(st), log.New(io.Discard, "", 0))

	require.NoError(t, c.Run(ctx))

	assert.Empty(t, reader.commits, "store failure must leave the offset uncommitted for redelivery")
}

func TestConsumerClose(t *testing.T) {
	reader := &scriptReader{}
	c := NewConsumerWithReader(reader, newTestProcessor(store.NewMemoryStore()), log.New(io.Discard, "", 0))

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

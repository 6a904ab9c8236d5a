package buffered

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/logging"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]*api.Transaction
	err     error
}

func (r *recorder) flush(_ context.Context, txns []*api.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, txns)
	return nil
}

func (r *recorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = len(b)
	}
	return out
}

func txn(id string) *api.Transaction {
	return &api.Transaction{MessageID: id}
}

func TestWrite_BatchesAndAcks(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 2, FlushInterval: time.Hour}, logging.Discard())

	in := make(chan *api.Transaction, 5)
	ack := make(chan string, 5)
	for _, id := range []string{"a", "b", "", "d", "e"} {
		in <- txn(id)
	}
	close(in)

	require.NoError(t, w.Write(context.Background(), in, ack))
	close(ack)

	assert.Equal(t, []int{2, 2, 1}, rec.sizes())

	var acked []string
	for id := range ack {
		acked = append(acked, id)
	}
	assert.Equal(t, []string{"a", "b", "d", "e"}, acked)
	assert.Zero(t, w.BufferLen())
}

func TestWrite_FlushError(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	w := New(rec.flush, Config{BatchSize: 10, FlushInterval: time.Hour}, logging.Discard())

	in := make(chan *api.Transaction, 1)
	ack := make(chan string, 1)
	in <- txn("a")
	close(in)

	err := w.Write(context.Background(), in, ack)
	assert.EqualError(t, err, "disk full")
	assert.Empty(t, ack)
}

func TestWrite_IntervalFlush(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, logging.Discard())

	in := make(chan *api.Transaction)
	ack := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Write(ctx, in, ack) }()

	in <- txn("tick")
	select {
	case id := <-ack:
		assert.Equal(t, "tick", id)
	case <-time.After(2 * time.Second):
		t.Fatal("interval flush never acknowledged")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWrite_ShutdownFlushes(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 100, FlushInterval: time.Hour}, logging.Discard())

	in := make(chan *api.Transaction, 1)
	in <- txn("pending")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Write(ctx, in, nil) }()

	require.Eventually(t, func() bool { return w.BufferLen() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []int{1}, rec.sizes())
}

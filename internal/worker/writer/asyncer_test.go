package writer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type captureWriter struct {
	mu      sync.Mutex
	batches [][]int
	closed  bool
}

func (w *captureWriter) BWrite(ctx context.Context, items []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := make([]int, len(items))
	copy(batch, items)
	w.batches = append(w.batches, batch)
	return nil
}

func (w *captureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *captureWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestAsyncBatchWriter_FlushesOnBatchSize(t *testing.T) {
	sink := &captureWriter{}
	w := NewAsyncBatchWriter[int](zap.NewNop(), sink, 3, time.Hour, "test_size", 1)
	w.Start(context.Background())

	for i := 0; i < 6; i++ {
		w.Submit(i)
	}

	require.Eventually(t, func() bool { return sink.total() == 6 }, 2*time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, batch := range sink.batches {
		assert.Len(t, batch, 3)
	}
}

func TestAsyncBatchWriter_FlushesOnInterval(t *testing.T) {
	sink := &captureWriter{}
	w := NewAsyncBatchWriter[int](zap.NewNop(), sink, 100, 20*time.Millisecond, "test_interval", 1)
	w.Start(context.Background())

	w.Submit(1)
	w.Submit(2)

	require.Eventually(t, func() bool { return sink.total() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestAsyncBatchWriter_CloseFlushesRemainder(t *testing.T) {
	sink := &captureWriter{}
	w := NewAsyncBatchWriter[int](zap.NewNop(), sink, 100, time.Hour, "test_close", 1)
	w.Start(context.Background())

	w.Submit(1)
	w.Submit(2)
	w.Submit(3)
	w.Close()

	assert.Equal(t, 3, sink.total())
	assert.True(t, sink.closed)
}

// 关停后游离管线还可能提交完成结果，必须安静丢弃而不是panic
func TestAsyncBatchWriter_SubmitAfterCloseDropsItem(t *testing.T) {
	sink := &captureWriter{}
	w := NewAsyncBatchWriter[int](zap.NewNop(), sink, 100, time.Hour, "test_late_submit", 1)
	w.Start(context.Background())

	w.Submit(1)
	w.Close()

	require.NotPanics(t, func() { w.Submit(2) })
	assert.Equal(t, 1, sink.total())

	// 重复Close幂等
	require.NotPanics(t, w.Close)
}

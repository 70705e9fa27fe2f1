package local

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_TaskExecution(t *testing.T) {
	p := NewPool()

	var called int32
	require.NoError(t, p.Submit(func(ctx context.Context) { atomic.AddInt32(&called, 1) }))
	require.NoError(t, p.Submit(func(ctx context.Context) { atomic.AddInt32(&called, 1) }))

	p.Wait()
	require.Equal(t, int32(2), atomic.LoadInt32(&called))
}

func TestPool_CloseCancelsLongTask(t *testing.T) {
	p := NewPool()

	var done int32
	require.NoError(t, p.Submit(func(ctx context.Context) {
		<-ctx.Done()
		atomic.StoreInt32(&done, 1)
	}))

	// Close should cancel the task and wait for it to return
	p.Close()
	require.Equal(t, int32(1), atomic.LoadInt32(&done))
}

func TestPool_CloseWaitsForRunningTask(t *testing.T) {
	p := NewPool()

	var done int32
	require.NoError(t, p.Submit(func(ctx context.Context) {
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&done, 1)
	}))

	p.Close()
	require.Equal(t, int32(1), atomic.LoadInt32(&done))
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool()
	p.Close()

	err := p.Submit(func(ctx context.Context) {})
	require.ErrorIs(t, err, ErrPoolClosed)
}

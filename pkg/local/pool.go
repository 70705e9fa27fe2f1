package local

import (
	"context"
	"errors"
	"sync"
)

var ErrPoolClosed = errors.New("pool is closed")

// Task is a long-running loop owned by the pool. It must return once ctx is
// cancelled.
type Task func(ctx context.Context)

// Pool runs every submitted task on its own goroutine. Close cancels the
// shared context and waits for all tasks to return.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewPool() *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{ctx: ctx, cancel: cancel}
}

func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.wg.Go(func() {
		task(p.ctx)
	})
	return nil
}

// Wait blocks until every submitted task has returned on its own.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

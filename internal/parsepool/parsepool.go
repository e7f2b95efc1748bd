// Package parsepool bounds how much CPU heavy work (feed parsing, password
// hashing) runs at once, so request handling stays responsive under load.
package parsepool

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent work to a fixed number of slots. Work runs inline
// on the calling goroutine, so lexical context and tracing spans carry over.
type Pool struct {
	slots *semaphore.Weighted
}

// New creates a pool sized to the number of usable CPUs
func New() *Pool {
	return NewSized(runtime.GOMAXPROCS(0))
}

// NewSized creates a pool with an explicit slot count
func NewSized(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: semaphore.NewWeighted(int64(size))}
}

// Do runs fn once a slot is free. The wait is abandoned when ctx is done
// and fn doesn't run.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("couldn't acquire parse slot: %w", err)
	}
	defer p.slots.Release(1)
	fn()
	return nil
}

// Package workerpool runs blocking provider calls on a bounded number of
// goroutines.
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"

	"llmwrapper/internal/core"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 8

// Pool bounds how many submitted tasks run at once. Tasks beyond the bound
// wait for a free slot; a canceled context abandons the wait.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a pool with size slots.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Submit schedules fn and returns a Call that completes with its result.
// Each running task holds one slot until fn returns.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) (string, error)) *core.Call {
	return core.Go(ctx, func(ctx context.Context) (string, error) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer p.sem.Release(1)
		return fn(ctx)
	})
}

package core

import (
	"context"
	"errors"
)

// Call is the future returned by AsyncLLM.ChatAsync.
type Call struct {
	done chan struct{}
	text string
	err  error
}

// Go runs fn on its own goroutine and returns a Call that completes with
// fn's result.
func Go(ctx context.Context, fn func(ctx context.Context) (string, error)) *Call {
	c := &Call{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.text, c.err = fn(ctx)
	}()
	return c
}

// Done is closed once the result is available.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call completes or ctx is done. A canceled wait does
// not cancel the call itself; cancel the context passed to ChatAsync for that.
func (c *Call) Wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.text, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result blocks until the call completes.
func (c *Call) Result() (string, error) {
	<-c.done
	return c.text, c.err
}

// Gather waits for every call and returns the replies in submission order.
// The returned error joins every failure; the reply slot of a failed call is
// left empty.
func Gather(ctx context.Context, calls ...*Call) ([]string, error) {
	results := make([]string, len(calls))
	var errs []error
	for i, call := range calls {
		text, err := call.Wait(ctx)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results[i] = text
	}
	return results, errors.Join(errs...)
}

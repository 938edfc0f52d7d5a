package bootstage

import (
	"context"
	"sync"
)

// Ticket marks one unit of asynchronous work a stage waits for. It is returned
// by Stage.Waiter, and the stage cannot finish until Done has been called.
// Done may be called from any goroutine; only the first call has effect.
type Ticket struct {
	once sync.Once
	fire func()
}

// Done reports the work as complete.
func (t *Ticket) Done() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.fire != nil {
			t.fire()
		}
	})
}

// Completion resolves once every stage it was created for has finished.
type Completion struct {
	once sync.Once
	done chan struct{}
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func resolvedCompletion() *Completion {
	c := newCompletion()
	c.resolve()
	return c
}

func (c *Completion) resolve() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Done returns a channel that is closed when the Completion resolves.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Resolved reports whether the Completion has resolved.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the Completion resolves or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package loop provides the single logical UI thread of a widget.
//
// Every piece of widget state (channel client, hooks, surfaces) is owned by one
// Loop and touched only from tasks it runs. Other goroutines hand work over with
// Post or Do.
package loop

import (
	"context"
	"sync"

	"github.com/aretw0/bifrost/pkg/domain"
)

// Loop is a FIFO task queue drained by a single goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// New creates an idle loop. Call Run to start draining it.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. Tasks run in the order they were posted.
// It returns false if the loop has been closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from a task running on the same loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return domain.ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunPending runs the tasks queued so far, including tasks they post, and
// returns how many ran. Tests use it to drive a loop without a goroutine.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
		n++
	}
}

// Run drains the queue until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close stops accepting tasks. Tasks already queued still run.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

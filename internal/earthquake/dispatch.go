package earthquake

import (
	"context"
	"sync"
)

// Dispatcher runs functions on the caller's primary context. Load results
// are always delivered through it.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// MainQueue is a serial FIFO executor. Whatever goroutine drives Run (or
// RunPending) is the primary context for functions dispatched to it.
// Dispatch never blocks.
type MainQueue struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}
}

// NewMainQueue creates an empty queue.
func NewMainQueue() *MainQueue {
	return &MainQueue{notify: make(chan struct{}, 1)}
}

// Dispatch enqueues fn.
func (q *MainQueue) Dispatch(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Run executes queued functions in order until ctx is cancelled.
func (q *MainQueue) Run(ctx context.Context) error {
	for {
		q.RunPending()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
		}
	}
}

// RunPending executes everything queued so far, including functions queued
// by the functions it runs, and returns how many ran.
func (q *MainQueue) RunPending() int {
	ran := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return ran
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		fn()
		ran++
	}
}

// Len returns the number of queued functions.
func (q *MainQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

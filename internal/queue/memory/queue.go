// Package memory provides an in-process work queue with join semantics.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue closed")
	// ErrTooManyDone is returned when Done is called more times than items were enqueued.
	ErrTooManyDone = errors.New("done called too many times")
)

// Queue is a bounded FIFO of URLs. Every enqueued item counts as unfinished
// until a consumer calls Done for it; Join blocks until that count reaches zero.
type Queue struct {
	ch chan string

	closeMu sync.RWMutex
	closed  bool

	mu         sync.Mutex
	unfinished int
	idle       chan struct{}
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		ch:   make(chan string, capacity),
		idle: idle,
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item string) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	q.mu.Lock()
	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}
	q.unfinished++
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		_ = q.Done()
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return "", ErrClosed
		}
		return item, nil
	}
}

// Done marks one previously dequeued item as finished.
func (q *Queue) Done() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished <= 0 {
		return ErrTooManyDone
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.idle)
	}
	return nil
}

// Join blocks until every enqueued item has been marked done.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("join canceled: %w", ctx.Err())
	case <-idle:
		return nil
	}
}

// Len reports the number of items waiting to be dequeued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Unfinished reports the number of items not yet marked done.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Close closes the underlying channel. Pending items can still be drained.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

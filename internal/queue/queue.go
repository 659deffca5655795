package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned by TryPut when a bounded queue has no space.
	ErrFull = errors.New("queue full")
	// ErrEmpty is returned by TryGet when the queue holds no items.
	ErrEmpty = errors.New("queue empty")
	// ErrTimeout is returned by the Wait variants when their deadline expires.
	ErrTimeout = errors.New("queue wait timed out")
)

// Settings configures a Queue at construction time.
type Settings struct {
	// Capacity bounds the queue; zero or negative means unbounded.
	Capacity int
	// OnPush, when set, receives the queue size after every successful enqueue.
	OnPush func(size int)
	// OnPop, when set, receives the queue size after every successful dequeue.
	OnPop func(size int)
}

// Queue is a concurrent notifying FIFO.
type Queue[T any] struct {
	name     string
	capacity int
	onPush   func(int)
	onPop    func(int)

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []T
}

// New constructs a queue. The name only identifies the queue in logs and
// notifications and carries no behavior.
func New[T any](name string, settings Settings) *Queue[T] {
	q := &Queue[T]{
		name:     name,
		capacity: settings.Capacity,
		onPush:   settings.OnPush,
		onPop:    settings.OnPop,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Name returns the queue's identifying name.
func (q *Queue[T]) Name() string { return q.name }

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured capacity bound, zero meaning unbounded.
func (q *Queue[T]) Cap() int { return q.capacity }

func (q *Queue[T]) full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// Put appends an item, blocking while a bounded queue is full. It returns the
// context error if ctx is canceled before space frees up.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.full() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	q.push(item)
	return nil
}

// PutWait is Put bounded by a timeout, returning ErrTimeout on expiry.
func (q *Queue[T]) PutWait(item T, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := q.Put(ctx, item); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	return nil
}

// TryPut appends an item without waiting, returning ErrFull when no space is
// available.
func (q *Queue[T]) TryPut(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full() {
		return ErrFull
	}
	q.push(item)
	return nil
}

// Get removes and returns the oldest item, blocking while the queue is empty.
// It returns the context error if ctx is canceled before an item arrives.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		q.notEmpty.Wait()
	}
	return q.pop(), nil
}

// GetWait is Get bounded by a timeout, returning ErrTimeout on expiry.
func (q *Queue[T]) GetWait(timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	item, err := q.Get(ctx)
	if err != nil {
		var zero T
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, err
	}
	return item, nil
}

// TryGet removes and returns the oldest item without waiting, returning
// ErrEmpty when there is none.
func (q *Queue[T]) TryGet() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, ErrEmpty
	}
	return q.pop(), nil
}

// Purge drains and drops every queued item, emitting one popped notification
// per item, and returns the number of items discarded.
func (q *Queue[T]) Purge() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := 0
	for len(q.items) > 0 {
		q.pop()
		dropped++
	}
	return dropped
}

// push and pop run with q.mu held; the notification fires inside the critical
// section so size and operation stay atomic for observers.
func (q *Queue[T]) push(item T) {
	q.items = append(q.items, item)
	q.notEmpty.Signal()
	if q.onPush != nil {
		q.onPush(len(q.items))
	}
}

func (q *Queue[T]) pop() T {
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	q.notFull.Signal()
	if q.onPop != nil {
		q.onPop(len(q.items))
	}
	return item
}

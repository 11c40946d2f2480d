// Copyright (c) 2025 A Bit of Help, Inc.

// Package queue provides the blocking FIFO that connects adjacent pipeline stages.
//
// Queues carry Message values: either a work item or a shutdown signal. A stage with
// N workers is drained by N shutdown messages, one per worker.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Unbounded is the capacity of a queue that never blocks producers.
const Unbounded = 0

// Message is either a work item or a shutdown signal, never both.
type Message[T any] struct {
	value    T
	shutdown bool
}

// Item wraps a work item.
func Item[T any](v T) Message[T] {
	return Message[T]{value: v}
}

// Shutdown returns the "no more work" signal.
func Shutdown[T any]() Message[T] {
	return Message[T]{shutdown: true}
}

// IsShutdown reports whether the message is a shutdown signal.
func (m Message[T]) IsShutdown() bool {
	return m.shutdown
}

// Value returns the wrapped item; it is the zero value for a shutdown signal.
func (m Message[T]) Value() T {
	return m.value
}

// BoundedQueue is a FIFO with an optional capacity. Enqueue blocks while the queue is
// full and Dequeue blocks while it is empty; both give up when their context ends.
type BoundedQueue[T any] struct {
	name     string
	capacity int

	mu      sync.Mutex
	items   []Message[T]
	changed chan struct{}

	depth atomic.Int64
}

// New creates a queue. A capacity of Unbounded (0) never blocks producers.
func New[T any](name string, capacity int) *BoundedQueue[T] {
	if capacity < 0 {
		capacity = Unbounded
	}
	return &BoundedQueue[T]{
		name:     name,
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// Name returns the queue name used in logs.
func (q *BoundedQueue[T]) Name() string {
	return q.name
}

// Capacity returns the hard capacity, Unbounded when there is none.
func (q *BoundedQueue[T]) Capacity() int {
	return q.capacity
}

// Depth returns the current length without blocking. The value may be stale by the
// time it is read and is meant for observability and throttling only.
func (q *BoundedQueue[T]) Depth() int {
	return int(q.depth.Load())
}

// Enqueue appends msg, waiting while the queue is at capacity.
func (q *BoundedQueue[T]) Enqueue(ctx context.Context, msg Message[T]) error {
	for {
		q.mu.Lock()
		if q.capacity == Unbounded || len(q.items) < q.capacity {
			q.items = append(q.items, msg)
			q.depth.Store(int64(len(q.items)))
			q.broadcastLocked()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// EnqueueItem is shorthand for Enqueue(ctx, Item(v)).
func (q *BoundedQueue[T]) EnqueueItem(ctx context.Context, v T) error {
	return q.Enqueue(ctx, Item(v))
}

// EnqueueShutdown is shorthand for Enqueue(ctx, Shutdown()).
func (q *BoundedQueue[T]) EnqueueShutdown(ctx context.Context) error {
	return q.Enqueue(ctx, Shutdown[T]())
}

// Dequeue removes and returns the oldest message, waiting while the queue is empty.
func (q *BoundedQueue[T]) Dequeue(ctx context.Context) (Message[T], error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			var zero Message[T]
			q.items[0] = zero
			q.items = q.items[1:]
			q.depth.Store(int64(len(q.items)))
			q.broadcastLocked()
			q.mu.Unlock()
			return msg, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero Message[T]
			return zero, ctx.Err()
		}
	}
}

// WaitBelow polls every interval until the depth drops under limit. It is the soft cap
// used to throttle a producer: the check is racy, so the depth may briefly exceed limit.
// A limit of 0 or less never waits.
func (q *BoundedQueue[T]) WaitBelow(ctx context.Context, limit int, interval time.Duration) error {
	if limit <= 0 {
		return nil
	}
	if q.Depth() < limit {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for q.Depth() >= limit {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// broadcastLocked wakes every waiter. Callers hold q.mu.
func (q *BoundedQueue[T]) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

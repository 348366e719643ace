package queue

import (
	"context"
	"fmt"
)

// Queue orders pending job ids and hands them to worker slots. Enqueue
// must not block a request handler; Dequeue blocks until work arrives
// or ctx is cancelled.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (string, error)
}

// MemoryQueue is the default in-process FIFO, a buffered channel.
// Ordering is strict per worker slot; with several slots pulling from
// the same channel, FIFO holds per slot only.
type MemoryQueue struct {
	ch chan string
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan string, capacity)}
}

// Enqueue appends the job id, failing fast when the queue is full
// rather than blocking the caller.
func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	default:
		return fmt.Errorf("queue full (capacity %d)", cap(q.ch))
	}
}

// Dequeue blocks until a job id is available or ctx is cancelled.
func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case jobID := <-q.ch:
		return jobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

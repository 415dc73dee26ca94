package setup

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-storegate/core"
)

const defaultQueueCapacity = 256

// MemoryQueue is a bounded in-process job queue implementing both ends
// of the core job contracts. Single-instance deployments run on it
// directly; multi-instance installs swap in a go-job backed queue via
// adapters/gojob.
type MemoryQueue struct {
	mu       sync.Mutex
	closed   bool
	messages chan *core.JobExecutionMessage
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &MemoryQueue{
		messages: make(chan *core.JobExecutionMessage, capacity),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("setup: queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("setup: execution message is required")
	}
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return fmt.Errorf("setup: queue is closed")
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("setup: queue is full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("setup: queue is not configured")
	}
	select {
	case msg, ok := <-q.messages:
		if !ok {
			return nil, fmt.Errorf("setup: queue is closed")
		}
		return &memoryDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new work. Messages already queued still drain.
func (q *MemoryQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.messages)
}

func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.messages)
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *core.JobExecutionMessage
}

func (d *memoryDelivery) Message() *core.JobExecutionMessage {
	if d == nil {
		return nil
	}
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	return nil
}

func (d *memoryDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("setup: delivery is not configured")
	}
	if !opts.Requeue || opts.DeadLetter {
		return nil
	}
	return d.queue.Enqueue(ctx, d.msg)
}

var (
	_ core.JobEnqueuer = (*MemoryQueue)(nil)
	_ core.JobDequeuer = (*MemoryQueue)(nil)
	_ core.JobDelivery = (*memoryDelivery)(nil)
)

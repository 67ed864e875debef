package adapter

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"chatsync/internal/infrastructure/queue/port"
)

// MemoryQueue is an in-process queue for running the engine without Redis.
// It is both client and server: enqueued tasks are handed to the registered
// handler on a worker goroutine. No retries, no persistence.
type MemoryQueue struct {
	mu       sync.Mutex
	handlers map[string]port.Handler
	wg       sync.WaitGroup
	closed   bool
}

// NewMemoryQueue constructs an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{handlers: make(map[string]port.Handler)}
}

// Ensure interfaces are satisfied
var (
	_ port.Client = (*MemoryQueue)(nil)
	_ port.Server = (*MemoryQueue)(nil)
)

func (q *MemoryQueue) Enqueue(ctx context.Context, t port.Task, opts ...port.EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("queue: task type is required")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", errors.New("queue: closed")
	}
	h, ok := q.handlers[t.Type]
	if !ok {
		q.mu.Unlock()
		return "", errors.New("queue: no handler registered for " + t.Type)
	}
	q.wg.Add(1)
	q.mu.Unlock()

	id := uuid.NewString()
	// The caller's context ends with its request; the task must outlive it.
	// Cancellation of an accepted task is the handler's own concern.
	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer q.wg.Done()
		if err := h(taskCtx, t); err != nil {
			log.Printf("queue: task %s (%s) failed: %v", id, t.Type, err)
		}
	}()
	return id, nil
}

func (q *MemoryQueue) Register(taskType string, h port.Handler) {
	q.mu.Lock()
	q.handlers[taskType] = h
	q.mu.Unlock()
}

// Run blocks until the context is canceled. Workers are spawned per task, so
// there is nothing to pump here.
func (q *MemoryQueue) Run(ctx context.Context) error {
	<-ctx.Done()
	return q.Stop(context.Background())
}

// Stop waits for in-flight handlers to finish.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	_ = ctx
	q.wg.Wait()
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const memoryBufferSize = 1024

type memorySubscription struct {
	ch     chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

// MemoryQueue delivers messages to in-process subscribers. Messages
// published to a subject nobody listens on are dropped.
type MemoryQueue struct {
	mu            sync.RWMutex
	subscriptions map[string]*memorySubscription
	closed        bool

	published atomic.Int64
	dropped   atomic.Int64
}

func newMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		subscriptions: make(map[string]*memorySubscription),
	}
}

// Publish hands a copy of data to the subject's subscriber
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("memory queue closed")
	}

	sub, ok := q.subscriptions[subject]
	if !ok {
		q.dropped.Add(1)
		return nil
	}

	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case sub.ch <- msg:
		q.published.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		return fmt.Errorf("subscriber buffer full for subject: %s", subject)
	}
}

// PublishBatch publishes each message in order
func (q *MemoryQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	accepted := 0
	for _, msg := range messages {
		if err := q.Publish(ctx, msg.Subject, msg.Data); err != nil {
			continue
		}
		accepted++
	}
	return accepted, nil
}

// Subscribe starts a goroutine that feeds handler
func (q *MemoryQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("memory queue closed")
	}
	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &memorySubscription{
		ch:     make(chan []byte, memoryBufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.subscriptions[subject] = sub

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-sub.ch:
				// no redelivery in memory
				_ = handler(data)
			}
		}
	}()

	return nil
}

// Unsubscribe stops delivery for subject
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	sub, exists := q.subscriptions[subject]
	if exists {
		delete(q.subscriptions, subject)
	}
	q.mu.Unlock()

	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}

	sub.cancel()
	<-sub.done
	return nil
}

// Close stops every subscription
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	subs := q.subscriptions
	q.subscriptions = make(map[string]*memorySubscription)
	q.closed = true
	q.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

// Stats returns delivered and dropped message counts
func (q *MemoryQueue) Stats() (published, dropped int64) {
	return q.published.Load(), q.dropped.Load()
}

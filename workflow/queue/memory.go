package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a single-process Queue backed by a list and a map,
// sufficient for tests and single-process deployments that don't need a
// Redis dependency. It implements the same visibility-timeout contract as
// RedisQueue via an internal reaper goroutine.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  *list.List // of Message
	inFlight map[string]inFlightEntry
	notify   chan struct{}

	stop chan struct{}
	done chan struct{}
}

type inFlightEntry struct {
	msg      Message
	deadline time.Time
}

// NewMemoryQueue returns an empty MemoryQueue, starting a background
// reaper running every reaperInterval.
func NewMemoryQueue(reaperInterval time.Duration) *MemoryQueue {
	if reaperInterval <= 0 {
		reaperInterval = 100 * time.Millisecond
	}
	q := &MemoryQueue{
		pending:  list.New(),
		inFlight: make(map[string]inFlightEntry),
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.reapLoop(reaperInterval)
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, payload []byte) error {
	q.mu.Lock()
	q.pending.PushBack(Message{ID: uuid.NewString(), Handle: uuid.NewString(), Payload: payload})
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (Message, error) {
	for {
		q.mu.Lock()
		front := q.pending.Front()
		if front != nil {
			msg := q.pending.Remove(front).(Message)
			q.inFlight[msg.Handle] = inFlightEntry{msg: msg, deadline: time.Now().Add(visibilityTimeout)}
			q.mu.Unlock()
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, msg Message) error {
	q.mu.Lock()
	delete(q.inFlight, msg.Handle)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, msg Message) error {
	q.mu.Lock()
	delete(q.inFlight, msg.Handle)
	q.pending.PushBack(msg)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Close() error {
	close(q.stop)
	<-q.done
	return nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) reapLoop(interval time.Duration) {
	defer close(q.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.reapExpired()
		}
	}
}

func (q *MemoryQueue) reapExpired() {
	now := time.Now()
	var expired []Message
	q.mu.Lock()
	for handle, entry := range q.inFlight {
		if now.After(entry.deadline) {
			expired = append(expired, entry.msg)
			delete(q.inFlight, handle)
		}
	}
	for _, msg := range expired {
		q.pending.PushBack(msg)
	}
	q.mu.Unlock()
	if len(expired) > 0 {
		q.wake()
	}
}

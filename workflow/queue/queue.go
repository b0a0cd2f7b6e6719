// Package queue provides the durable FIFO of execution ids feeding the
// workers: at-least-once delivery, a visibility timeout so a crashed
// worker's message is requeued, and per-worker prefetch.
package queue

import (
	"context"
	"time"
)

// Message is one unit of work: the execution to advance. Handle is an
// opaque token a backend needs to Ack or Nack the specific delivery
// (distinct from ID, since the same ID may be redelivered after a
// visibility-timeout expiry).
type Message struct {
	ID      string
	Handle  string
	Payload []byte
}

// Queue is the durable FIFO contract every Coordinator dispatch loop
// consumes. Implementations must provide at-least-once delivery: a
// message is only removed for good on Ack; an unacked message becomes
// visible again once its visibility timeout elapses.
type Queue interface {
	// Enqueue appends payload to the back of the queue.
	Enqueue(ctx context.Context, payload []byte) error

	// Dequeue blocks (subject to ctx) until a message is available or
	// ctx is done, then marks it invisible to other consumers for
	// visibilityTimeout.
	Dequeue(ctx context.Context, visibilityTimeout time.Duration) (Message, error)

	// Ack permanently removes a delivered message.
	Ack(ctx context.Context, msg Message) error

	// Nack makes msg visible again immediately, for redelivery.
	Nack(ctx context.Context, msg Message) error

	// Close releases any resources (connections, background reapers).
	Close() error
}

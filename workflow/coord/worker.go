package coord

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/flowruntime/engine/workflow/queue"
)

// WorkerConfig tunes the queue-consuming loop.
type WorkerConfig struct {
	// Prefetch bounds concurrent in-flight executions per worker.
	Prefetch int
	// VisibilityTimeout is how long a dequeued message stays invisible
	// before the queue redelivers it to another worker.
	VisibilityTimeout time.Duration
}

// DefaultWorkerConfig returns a prefetch of 1 and a 5-minute visibility
// timeout.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{Prefetch: 1, VisibilityTimeout: 5 * time.Minute}
}

// Worker consumes execution ids from the queue and hands each to the
// Coordinator, acking on success and nacking when the Coordinator
// abandoned the execution over a lifecycle persistence failure.
type Worker struct {
	cfg    WorkerConfig
	queue  queue.Queue
	coord  *Coordinator
	logger *slog.Logger
}

// NewWorker returns a Worker. logger may be nil for slog.Default().
func NewWorker(cfg WorkerConfig, q queue.Queue, c *Coordinator, logger *slog.Logger) *Worker {
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{cfg: cfg, queue: q, coord: c, logger: logger}
}

// Run consumes until ctx is done. Each message occupies one prefetch slot
// for its whole lifetime, so at most Prefetch executions are in flight.
func (w *Worker) Run(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(w.cfg.Prefetch))
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}
		msg, err := w.queue.Dequeue(ctx, w.cfg.VisibilityTimeout)
		if err != nil {
			sem.Release(1)
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("dequeue failed", "error", err)
			continue
		}

		go func(msg queue.Message) {
			defer sem.Release(1)
			executionID := string(msg.Payload)
			if err := w.coord.Run(ctx, executionID); err != nil {
				// Lifecycle persistence failed; let the queue redeliver.
				w.logger.Error("execution abandoned", "executionId", executionID, "error", err)
				if nackErr := w.queue.Nack(context.WithoutCancel(ctx), msg); nackErr != nil {
					w.logger.Error("nack failed", "executionId", executionID, "error", nackErr)
				}
				return
			}
			if ackErr := w.queue.Ack(context.WithoutCancel(ctx), msg); ackErr != nil {
				w.logger.Error("ack failed", "executionId", executionID, "error", ackErr)
			}
		}(msg)
	}
}

// Recover re-enqueues executions a crashed worker left pending or
// running, using the store's ready list. Deduplication is by execution
// id: Coordinator.Run is a no-op for ids that already reached a terminal
// state by the time the redelivery arrives.
func (w *Worker) Recover(ctx context.Context) error {
	ids, err := w.coord.store.ListReadyExecutions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.queue.Enqueue(ctx, []byte(id)); err != nil {
			return err
		}
		w.logger.Info("recovered execution", "executionId", id)
	}
	return nil
}

package httpapi

import (
	"context"
	"sync"

	"github.com/flowruntime/engine/workflow"
)

// Hub fans LogEvents out to per-execution SSE subscribers. It implements
// emit.Emitter so the Coordinator can be wired to it alongside the store.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan workflow.LogEvent]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan workflow.LogEvent]struct{})}
}

// Subscribe returns a channel of events for executionID and a cancel
// function. The channel is buffered; a subscriber that falls far enough
// behind loses events rather than blocking the engine.
func (h *Hub) Subscribe(executionID string) (<-chan workflow.LogEvent, func()) {
	ch := make(chan workflow.LogEvent, 64)
	h.mu.Lock()
	if h.subs[executionID] == nil {
		h.subs[executionID] = make(map[chan workflow.LogEvent]struct{})
	}
	h.subs[executionID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[executionID], ch)
		if len(h.subs[executionID]) == 0 {
			delete(h.subs, executionID)
		}
		h.mu.Unlock()
	}
}

// Emit implements emit.Emitter.
func (h *Hub) Emit(event workflow.LogEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.ExecutionID] {
		select {
		case ch <- event:
		default: // slow subscriber, drop
		}
	}
}

// EmitBatch implements emit.Emitter.
func (h *Hub) EmitBatch(_ context.Context, events []workflow.LogEvent) error {
	for _, e := range events {
		h.Emit(e)
	}
	return nil
}

// Flush implements emit.Emitter.
func (h *Hub) Flush(context.Context) error { return nil }

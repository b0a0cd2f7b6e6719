package emit

import (
	"context"
	"sync"

	"github.com/flowruntime/engine/workflow"
)

// HistoryFilter narrows BufferedEmitter.GetHistory's result. A zero value
// (empty NodeID, MinSequence 0, MaxSequence 0) returns everything for the
// execution.
type HistoryFilter struct {
	NodeID      string
	MinSequence int
	MaxSequence int // 0 means unbounded
}

// matches reports whether event satisfies f.
func (f HistoryFilter) matches(event workflow.LogEvent) bool {
	if f.NodeID != "" && event.NodeID != f.NodeID {
		return false
	}
	if event.Sequence < f.MinSequence {
		return false
	}
	if f.MaxSequence != 0 && event.Sequence > f.MaxSequence {
		return false
	}
	return true
}

// BufferedEmitter keeps every emitted LogEvent in memory, keyed by
// ExecutionID, for later retrieval. Grounded on graph/emit/buffered.go's
// RunID-keyed in-memory history, re-keyed to ExecutionID and filtered by
// (NodeID, Sequence) instead of (NodeID, Step).
type BufferedEmitter struct {
	mu      sync.RWMutex
	history map[string][]workflow.LogEvent
}

// NewBufferedEmitter returns an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{history: make(map[string][]workflow.LogEvent)}
}

func (b *BufferedEmitter) Emit(event workflow.LogEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[event.ExecutionID] = append(b.history[event.ExecutionID], event)
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, events []workflow.LogEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range events {
		b.history[event.ExecutionID] = append(b.history[event.ExecutionID], event)
	}
	return nil
}

// Flush is a no-op: events are already resident in memory.
func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// GetHistory returns every buffered event for executionID matching filter,
// in emission order.
func (b *BufferedEmitter) GetHistory(executionID string, filter HistoryFilter) []workflow.LogEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	all := b.history[executionID]
	out := make([]workflow.LogEvent, 0, len(all))
	for _, event := range all {
		if filter.matches(event) {
			out = append(out, event)
		}
	}
	return out
}

// Clear discards all buffered events for executionID.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, executionID)
}

// Package emit provides pluggable observability backends for LogEvents.
//
// An Emitter receives every LogEvent the engine produces; backends
// include plain log output, an in-memory buffer, OpenTelemetry spans,
// and a no-op.
package emit

import (
	"context"

	"github.com/flowruntime/engine/workflow"
)

// Emitter receives LogEvents produced during workflow execution.
//
// Implementations must not block execution for long and must not panic;
// a failing emitter should log its own failure and drop the event rather
// than propagate an error into the node pipeline — a log failure never
// blocks execution.
type Emitter interface {
	// Emit sends a single LogEvent to the configured backend.
	Emit(event workflow.LogEvent)

	// EmitBatch sends multiple events in one call, preserving order.
	EmitBatch(ctx context.Context, events []workflow.LogEvent) error

	// Flush blocks until all buffered events have been sent.
	Flush(ctx context.Context) error
}

// MultiEmitter fans one event out to several Emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter returns an Emitter that forwards to every given emitter.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(event workflow.LogEvent) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

func (m *MultiEmitter) EmitBatch(ctx context.Context, events []workflow.LogEvent) error {
	var firstErr error
	for _, e := range m.emitters {
		if err := e.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiEmitter) Flush(ctx context.Context) error {
	var firstErr error
	for _, e := range m.emitters {
		if err := e.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

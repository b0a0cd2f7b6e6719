package emit

import (
	"context"

	"github.com/flowruntime/engine/workflow"
)

// NullEmitter discards every LogEvent. Useful where execution-log
// persistence (workflow/store) is the only durable sink and in-process
// observability overhead is unwanted.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that discards all events.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (n *NullEmitter) Emit(workflow.LogEvent) {}

func (n *NullEmitter) EmitBatch(context.Context, []workflow.LogEvent) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }

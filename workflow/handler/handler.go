// Package handler defines the Handler contract and the Registry that
// maps a BlockType to its handler, along with the built-in handlers for
// every recognized block type.
package handler

import (
	"context"

	"github.com/flowruntime/engine/workflow"
)

// Context carries everything a Handler needs beyond its node's resolved
// input: identifiers for log correlation, the execution-wide cancellation
// signal (via ctx), and a logger for LogEvents the handler wants to emit
// itself, in addition to the lifecycle events the metrics decorator
// always emits.
type Context struct {
	ExecutionID string
	NodeID      string
	// Attempt is the 1-based retry attempt this invocation belongs to,
	// set by the Node Executor.
	Attempt int
	Logger  func(level workflow.LogLevel, message string, data map[string]any)
}

// Handler executes one Block Type's behavior. Implementations must not
// mutate the input map and must honor ctx's cancellation on every
// blocking call.
type Handler interface {
	// Execute runs node against input (already template-resolved and
	// input-schema-validated by workflow/exec) and returns its output.
	Execute(ctx context.Context, hctx Context, node workflow.Node, input map[string]any) (map[string]any, error)

	// Schema returns the block type's declared inputs/outputs, used by
	// both workflow/validate and workflow/exec for schema checks.
	Schema() workflow.Schema
}

// Registry resolves a BlockType to its Handler. A BlockType absent from
// the registry resolves to unknownHandler, which raises CONFIG.
type Registry struct {
	handlers map[workflow.BlockType]Handler
}

// NewRegistry returns an empty Registry. Use Register to populate it.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[workflow.BlockType]Handler)}
}

// Register associates blockType with h, overwriting any prior handler.
func (r *Registry) Register(blockType workflow.BlockType, h Handler) {
	r.handlers[blockType] = h
}

// Handler returns the Handler for blockType, or the unknown handler if
// none was registered.
func (r *Registry) Handler(blockType workflow.BlockType) Handler {
	if h, ok := r.handlers[blockType]; ok {
		return h
	}
	return unknownHandler{}
}

// Schema implements workflow/validate.Registry by forwarding to the
// resolved handler's Schema, or reporting absence for BlockUnknown so
// validate skips config checks it has no schema for.
func (r *Registry) Schema(blockType workflow.BlockType) (workflow.Schema, bool) {
	h, ok := r.handlers[blockType]
	if !ok {
		return workflow.Schema{}, false
	}
	return h.Schema(), true
}

// unknownHandler backs every BlockType the Registry has no real handler
// for, including workflow.BlockUnknown itself.
type unknownHandler struct{}

func (unknownHandler) Execute(_ context.Context, hctx Context, node workflow.Node, _ map[string]any) (map[string]any, error) {
	return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "no handler registered for block type "+string(node.BlockType))
}

func (unknownHandler) Schema() workflow.Schema {
	return workflow.Schema{}
}

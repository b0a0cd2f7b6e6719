package handler

import (
	"context"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/sandbox"
)

// CustomHandler dispatches CUSTOM blocks to the Sandbox. The block's
// `kind` selects the code flavor; `code` is the user program; everything
// else in the input map is the code's declared-input environment.
type CustomHandler struct {
	sandbox *sandbox.Sandbox
}

// NewCustomHandler returns a CustomHandler over sb.
func NewCustomHandler(sb *sandbox.Sandbox) *CustomHandler {
	return &CustomHandler{sandbox: sb}
}

func (h *CustomHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "kind", Kind: workflow.KindString, Required: true},
			{Name: "code", Kind: workflow.KindString, Required: true},
		},
		Outputs: nil, // output shape depends on kind; condition adds its own keys
	}
}

func (h *CustomHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	kind, _ := input["kind"].(string)
	code, _ := input["code"].(string)

	// The declared-input environment is everything except the sandbox's
	// own control fields, so user code can't read its own source.
	env := make(map[string]any, len(input))
	for k, v := range input {
		if k == "kind" || k == "code" {
			continue
		}
		env[k] = v
	}

	logger := func(level workflow.LogLevel, message string) {
		hctx.Logger(level, message, map[string]any{"source": "sandbox"})
	}

	result, err := h.sandbox.Eval(ctx, sandbox.Kind(kind), code, env, logger)
	if err != nil {
		if engErr, ok := err.(*workflow.Error); ok {
			engErr.NodeID = hctx.NodeID
			return nil, engErr
		}
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}

	if sandbox.Kind(kind) == sandbox.KindCondition {
		b, ok := result.(bool)
		if !ok {
			return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "condition code must evaluate to a boolean")
		}
		route := "false"
		if b {
			route = "true"
		}
		return map[string]any{"result": b, "route": route}, nil
	}

	return map[string]any{"result": result}, nil
}

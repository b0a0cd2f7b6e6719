package handler

import (
	"context"
	"fmt"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/template"
)

// TransformHandler applies the Template Engine to a declared output
// shape: its `shape` config is a JSON-object template whose `{{path}}`
// placeholders resolve against the node's assembled input.
type TransformHandler struct{}

// NewTransformHandler returns a TransformHandler.
func NewTransformHandler() *TransformHandler { return &TransformHandler{} }

func (TransformHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "shape", Kind: workflow.KindObject, Required: true},
		},
		Outputs: nil, // output keys are whatever shape declares
	}
}

func (TransformHandler) Execute(_ context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	shape, ok := input["shape"].(map[string]any)
	if !ok {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "shape must be an object")
	}
	rendered, ok := template.Render(shape, input).(map[string]any)
	if !ok {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "shape did not render to an object")
	}
	return rendered, nil
}

// CalculatorHandler performs one arithmetic operation over numeric
// inputs. Operands are coerced at this handler site, so an upstream
// value spliced in as "2" still computes.
type CalculatorHandler struct{}

// NewCalculatorHandler returns a CalculatorHandler.
func NewCalculatorHandler() *CalculatorHandler { return &CalculatorHandler{} }

func (CalculatorHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "operation", Kind: workflow.KindString, Required: true},
			{Name: "x", Kind: workflow.KindAny, Required: true},
			{Name: "y", Kind: workflow.KindAny, Required: true},
		},
		Outputs: []workflow.Field{
			{Name: "result", Kind: workflow.KindNumber},
		},
	}
}

func (CalculatorHandler) Execute(_ context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	op, _ := input["operation"].(string)
	x, okX := toNumber(input["x"])
	y, okY := toNumber(input["y"])
	if !okX || !okY {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "x and y must be numeric")
	}

	var result float64
	switch op {
	case "add":
		result = x + y
	case "subtract":
		result = x - y
	case "multiply":
		result = x * y
	case "divide":
		if y == 0 {
			return nil, workflow.NewError(workflow.KindExecution, hctx.NodeID, "division by zero")
		}
		result = x / y
	case "modulo":
		if y == 0 {
			return nil, workflow.NewError(workflow.KindExecution, hctx.NodeID, "modulo by zero")
		}
		result = float64(int64(x) % int64(y))
	default:
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, fmt.Sprintf("unknown operation %q", op))
	}

	return map[string]any{"result": result}, nil
}

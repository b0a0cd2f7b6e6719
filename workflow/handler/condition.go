package handler

import (
	"context"
	"sort"

	"github.com/google/cel-go/cel"

	"github.com/flowruntime/engine/workflow"
)

// ConditionHandler evaluates a CEL boolean expression over the node's
// inputs and routes on the result. CEL gives the CONDITION block the same
// closed-world evaluation guarantees the sandbox relies on: only declared
// input identifiers resolve, and evaluation has no ambient capability.
type ConditionHandler struct{}

// NewConditionHandler returns a ConditionHandler.
func NewConditionHandler() *ConditionHandler { return &ConditionHandler{} }

func (ConditionHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "expression", Kind: workflow.KindString, Required: true},
		},
		Outputs: []workflow.Field{
			{Name: "result", Kind: workflow.KindBoolean},
			{Name: "route", Kind: workflow.KindString},
		},
	}
}

func (ConditionHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	expr, _ := input["expression"].(string)

	names := make([]string, 0, len(input))
	for k := range input {
		names = append(names, k)
	}
	sort.Strings(names)
	opts := make([]cel.EnvOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindConfig, hctx.NodeID, err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, workflow.Wrap(workflow.KindConfig, hctx.NodeID, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindConfig, hctx.NodeID, err)
	}

	out, _, err := program.ContextEval(ctx, input)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "condition expression must evaluate to a boolean")
	}

	route := "false"
	if result {
		route = "true"
	}
	return map[string]any{"result": result, "route": route}, nil
}

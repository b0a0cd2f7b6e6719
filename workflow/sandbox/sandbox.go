// Package sandbox evaluates CUSTOM block user code under the fixed
// capability set: no ambient I/O, no reflection
// into engine internals, a hard wall-clock limit, and access only to the
// node's declared inputs.
//
// github.com/google/cel-go is the evaluator for the expression, condition
// and script kinds; the template kind goes through workflow/template. CEL has no
// ambient capability by construction — a compiled program can only touch
// identifiers it declared as cel.Variable, and evaluation never reaches
// outside the activation map handed to it — which is exactly the closed
// world user code must stay inside, without embedding a general
// scripting runtime.
package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/template"
)

// Kind is the CUSTOM block's code flavor.
type Kind string

const (
	KindExpression Kind = "expression"
	KindCondition  Kind = "condition"
	KindScript     Kind = "script"
	KindTemplate   Kind = "template"
)

// Logger receives console_log/console_error output produced by user
// code, giving user code an observable side channel without granting it
// a general I/O capability.
type Logger func(level workflow.LogLevel, message string)

// Sandbox evaluates CUSTOM block code.
type Sandbox struct {
	timeout time.Duration
}

// New returns a Sandbox enforcing the given wall-clock timeout per
// evaluation.
func New(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sandbox{timeout: timeout}
}

// Eval runs code of the given kind against inputs and returns its result.
// logger may be nil, in which case console_log/console_error calls are
// discarded.
func (s *Sandbox) Eval(ctx context.Context, kind Kind, code string, inputs map[string]any, logger Logger) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch kind {
	case KindExpression, KindCondition:
		return s.evalExpression(ctx, code, inputs, logger)
	case KindScript:
		return s.evalScript(ctx, code, inputs, logger)
	case KindTemplate:
		return evalTemplate(code, inputs), nil
	default:
		return nil, workflow.NewError(workflow.KindConfig, "", fmt.Sprintf("unknown sandbox kind %q", kind))
	}
}

// evalExpression compiles and evaluates a single CEL expression over an
// environment built solely from inputs' top-level keys, so any identifier
// outside that set is a compile error rather than a runtime nil.
func (s *Sandbox) evalExpression(ctx context.Context, code string, inputs map[string]any, logger Logger) (any, error) {
	env, err := newEnv(inputs, logger)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindConfig, "", err)
	}
	return run(ctx, env, code, inputs)
}

// evalScript runs a semicolon-separated sequence of `name = expr`
// bindings (a constrained let-style script), threading each binding's
// result into the environment available to the next statement, then
// evaluates the final bare expression as the script's result.
func (s *Sandbox) evalScript(ctx context.Context, code string, inputs map[string]any, logger Logger) (any, error) {
	statements := splitStatements(code)
	if len(statements) == 0 {
		return nil, workflow.NewError(workflow.KindConfig, "", "empty script")
	}

	scope := make(map[string]any, len(inputs))
	for k, v := range inputs {
		scope[k] = v
	}

	var result any
	for i, stmt := range statements {
		name, expr, isBinding := splitBinding(stmt)
		env, err := newEnv(scope, logger)
		if err != nil {
			return nil, workflow.Wrap(workflow.KindConfig, "", err)
		}
		value, err := run(ctx, env, expr, scope)
		if err != nil {
			return nil, err
		}
		if isBinding {
			scope[name] = value
		}
		if i == len(statements)-1 {
			result = value
		}
	}
	return result, nil
}

// newEnv builds a CEL environment declaring one variable per top-level
// input key (typed dyn, since block config values are heterogeneous
// map[string]any), plus the console_log/console_error function bindings.
func newEnv(inputs map[string]any, logger Logger) (*cel.Env, error) {
	names := make([]string, 0, len(inputs))
	for k := range inputs {
		names = append(names, k)
	}
	sort.Strings(names)

	opts := make([]cel.EnvOption, 0, len(names)+2)
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	opts = append(opts, consoleFunctions(logger)...)

	return cel.NewEnv(opts...)
}

// consoleFunctions binds console_log(string) and console_error(string) as
// CEL free functions that forward to logger, giving user code an
// observable side channel without ambient I/O.
func consoleFunctions(logger Logger) []cel.EnvOption {
	log := func(level workflow.LogLevel) func(string) {
		return func(msg string) {
			if logger != nil {
				logger(level, msg)
			}
		}
	}
	logInfo := log(workflow.LevelInfo)
	logError := log(workflow.LevelError)

	return []cel.EnvOption{
		cel.Function("console_log",
			cel.Overload("console_log_string", []*cel.Type{cel.StringType}, cel.NullType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					logInfo(fmt.Sprintf("%v", arg.Value()))
					return types.NullValue
				}),
			),
		),
		cel.Function("console_error",
			cel.Overload("console_error_string", []*cel.Type{cel.StringType}, cel.NullType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					logError(fmt.Sprintf("%v", arg.Value()))
					return types.NullValue
				}),
			),
		),
	}
}

// run compiles and evaluates a single CEL expression against inputs,
// honoring ctx's deadline through ContextEval.
func run(ctx context.Context, env *cel.Env, code string, inputs map[string]any) (any, error) {
	ast, issues := env.Compile(code)
	if issues != nil && issues.Err() != nil {
		return nil, workflow.Wrap(workflow.KindConfig, "", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindConfig, "", err)
	}

	out, _, err := program.ContextEval(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, workflow.NewError(workflow.KindTimeout, "", "sandbox evaluation exceeded its timeout")
		}
		return nil, workflow.Wrap(workflow.KindExecution, "", err)
	}
	return out.Value(), nil
}

// splitStatements splits script code on top-level semicolons.
func splitStatements(code string) []string {
	raw := strings.Split(code, ";")
	out := make([]string, 0, len(raw))
	for _, stmt := range raw {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// splitBinding recognizes `name = expr` at the start of a statement. A
// statement without a top-level `=` is treated as a bare expression.
func splitBinding(stmt string) (name, expr string, isBinding bool) {
	eq := strings.Index(stmt, "=")
	if eq <= 0 || eq+1 >= len(stmt) {
		return "", stmt, false
	}
	// Don't mistake `==`, `<=`, `>=`, `!=` for an assignment.
	if stmt[eq-1] == '<' || stmt[eq-1] == '>' || stmt[eq-1] == '!' || (eq+1 < len(stmt) && stmt[eq+1] == '=') {
		return "", stmt, false
	}
	candidate := strings.TrimSpace(stmt[:eq])
	if !isIdentifier(candidate) {
		return "", stmt, false
	}
	return candidate, strings.TrimSpace(stmt[eq+1:]), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// evalTemplate renders code through the template engine and resolves a
// lightweight `{{#if var}}...{{/if}}` conditional block layered on top,
// since the Template Engine itself only substitutes values.
func evalTemplate(code string, inputs map[string]any) any {
	return template.Render(renderConditionals(code, inputs), inputs)
}

var ifOpen = "{{#if "

// renderConditionals strips `{{#if var}}...{{/if}}` blocks whose
// condition is falsy, and unwraps the ones that are truthy, before the
// result is handed to the ordinary template renderer.
func renderConditionals(code string, inputs map[string]any) string {
	for {
		start := strings.Index(code, ifOpen)
		if start < 0 {
			return code
		}
		condEnd := strings.Index(code[start:], "}}")
		if condEnd < 0 {
			return code
		}
		condEnd += start
		varName := strings.TrimSpace(code[start+len(ifOpen) : condEnd])

		closeTag := "{{/if}}"
		end := strings.Index(code[condEnd:], closeTag)
		if end < 0 {
			return code
		}
		end += condEnd

		body := code[condEnd+2 : end]
		replacement := ""
		if truthy(lookupVar(varName, inputs)) {
			replacement = body
		}
		code = code[:start] + replacement + code[end+len(closeTag):]
	}
}

func lookupVar(name string, inputs map[string]any) any {
	return inputs[name]
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

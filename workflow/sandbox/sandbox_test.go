package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/flowruntime/engine/workflow"
)

func TestSandbox_EvalExpression(t *testing.T) {
	s := New(time.Second)
	inputs := map[string]any{"price": 105.0, "threshold": 100.0}

	out, err := s.Eval(context.Background(), KindExpression, "price - threshold", inputs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 5.0 {
		t.Errorf("expected 5.0, got %v", out)
	}
}

func TestSandbox_EvalCondition(t *testing.T) {
	s := New(time.Second)
	inputs := map[string]any{"price": 105.0, "threshold": 100.0}

	out, err := s.Eval(context.Background(), KindCondition, "price > threshold", inputs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != true {
		t.Errorf("expected true, got %v", out)
	}
}

func TestSandbox_UndeclaredIdentifierIsConfigError(t *testing.T) {
	s := New(time.Second)
	inputs := map[string]any{"price": 105.0}

	_, err := s.Eval(context.Background(), KindExpression, "price - secretBalance", inputs, nil)
	if err == nil {
		t.Fatal("expected an error for an identifier outside the declared inputs")
	}
	var engErr *workflow.Error
	if e, ok := err.(*workflow.Error); ok {
		engErr = e
	}
	if engErr == nil || engErr.Kind != workflow.KindConfig {
		t.Errorf("expected KindConfig, got %v", err)
	}
}

func TestSandbox_ScriptBindingsAndFinalExpression(t *testing.T) {
	s := New(time.Second)
	inputs := map[string]any{"a": 2.0, "b": 3.0}

	out, err := s.Eval(context.Background(), KindScript, "c = a + b; c * 2.0", inputs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 10.0 {
		t.Errorf("expected 10.0, got %v", out)
	}
}

func TestSandbox_ScriptConsoleLog(t *testing.T) {
	s := New(time.Second)
	var logged []string
	logger := func(level workflow.LogLevel, message string) {
		logged = append(logged, string(level)+":"+message)
	}

	_, err := s.Eval(context.Background(), KindScript, `console_log("hello")`, map[string]any{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logged) != 1 || logged[0] != "info:hello" {
		t.Errorf("expected one info log 'hello', got %v", logged)
	}
}

func TestSandbox_TemplateKind(t *testing.T) {
	s := New(time.Second)
	inputs := map[string]any{"name": "Ada"}

	out, err := s.Eval(context.Background(), KindTemplate, "hello {{name}}", inputs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello Ada" {
		t.Errorf("expected 'hello Ada', got %v", out)
	}
}

func TestSandbox_TemplateConditional(t *testing.T) {
	s := New(time.Second)

	out, err := s.Eval(context.Background(), KindTemplate, "{{#if active}}on{{/if}}{{#if inactive}}off{{/if}}",
		map[string]any{"active": true, "inactive": false}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "on" {
		t.Errorf("expected 'on', got %v", out)
	}
}

package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/handler"
)

type stubHandler struct {
	schema  workflow.Schema
	execute func(ctx context.Context, hctx handler.Context, node workflow.Node, input map[string]any) (map[string]any, error)
}

func (s stubHandler) Schema() workflow.Schema { return s.schema }

func (s stubHandler) Execute(ctx context.Context, hctx handler.Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	return s.execute(ctx, hctx, node, input)
}

type stubPauses struct {
	paused map[string]bool
}

func (p stubPauses) IsPaused(_ context.Context, executionID, nodeID string) (bool, error) {
	return p.paused[executionID+"/"+nodeID], nil
}

type recordingSink struct {
	mu       sync.Mutex
	started  int
	statuses []workflow.NodeExecutionStatus
	attempts []int
	events   []workflow.LogEvent
}

func (r *recordingSink) NodeStarted(_ context.Context, _, _ string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *recordingSink) SetNodeExecutionStatus(_ context.Context, _, _ string, status workflow.NodeExecutionStatus, attempts int, _ map[string]any, _ *workflow.Error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.attempts = append(r.attempts, attempts)
	return nil
}

func (r *recordingSink) AppendLogEvent(_ context.Context, event workflow.LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

const testBlockType workflow.BlockType = "TEST_BLOCK"

func TestExecutor_SuccessPath(t *testing.T) {
	registry := handler.NewRegistry()
	registry.Register(testBlockType, stubHandler{
		schema: workflow.Schema{
			Inputs:  []workflow.Field{{Name: "x", Kind: workflow.KindNumber, Required: true}},
			Outputs: []workflow.Field{{Name: "y", Kind: workflow.KindNumber, Required: true}},
		},
		execute: func(_ context.Context, _ handler.Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
			return map[string]any{"y": input["x"].(float64) * 2}, nil
		},
	})

	sink := &recordingSink{}
	e := New(DefaultConfig(), registry, nil, sink)
	node := workflow.Node{ID: "n1", BlockType: testBlockType, Config: map[string]any{}}

	out, err := e.Run(context.Background(), "exec1", node, map[string]any{"x": 21.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["y"] != 42.0 {
		t.Errorf("expected y=42, got %v", out["y"])
	}
	if len(sink.statuses) != 1 || sink.statuses[0] != workflow.NodeSucceeded {
		t.Errorf("expected a single succeeded status, got %v", sink.statuses)
	}
}

func TestExecutor_MissingRequiredInputIsConfigFailure(t *testing.T) {
	registry := handler.NewRegistry()
	registry.Register(testBlockType, stubHandler{
		schema: workflow.Schema{Inputs: []workflow.Field{{Name: "x", Kind: workflow.KindNumber, Required: true}}},
		execute: func(context.Context, handler.Context, workflow.Node, map[string]any) (map[string]any, error) {
			t.Fatal("handler should not be invoked when input validation fails")
			return nil, nil
		},
	})

	sink := &recordingSink{}
	e := New(DefaultConfig(), registry, nil, sink)
	node := workflow.Node{ID: "n1", BlockType: testBlockType}

	_, err := e.Run(context.Background(), "exec1", node, map[string]any{})
	if err == nil {
		t.Fatal("expected an error for missing required input")
	}
	engErr, ok := err.(*workflow.Error)
	if !ok || engErr.Kind != workflow.KindConfig {
		t.Errorf("expected KindConfig, got %v", err)
	}
}

func TestExecutor_PauseShortCircuits(t *testing.T) {
	registry := handler.NewRegistry()
	registry.Register(testBlockType, stubHandler{
		execute: func(context.Context, handler.Context, workflow.Node, map[string]any) (map[string]any, error) {
			t.Fatal("handler should not run for a paused node")
			return nil, nil
		},
	})

	sink := &recordingSink{}
	pauses := stubPauses{paused: map[string]bool{"exec1/n1": true}}
	e := New(DefaultConfig(), registry, pauses, sink)
	node := workflow.Node{ID: "n1", BlockType: testBlockType}

	_, err := e.Run(context.Background(), "exec1", node, map[string]any{})
	if !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if len(sink.statuses) != 1 || sink.statuses[0] != workflow.NodePaused {
		t.Errorf("expected a paused status, got %v", sink.statuses)
	}
}

func TestExecutor_RetriesRecoverableFailures(t *testing.T) {
	registry := handler.NewRegistry()
	calls := 0
	registry.Register(testBlockType, stubHandler{
		execute: func(context.Context, handler.Context, workflow.Node, map[string]any) (map[string]any, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("connection reset")
			}
			return map[string]any{}, nil
		},
	})

	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	sink := &recordingSink{}
	e := New(cfg, registry, nil, sink)
	node := workflow.Node{ID: "n1", BlockType: testBlockType}

	_, err := e.Run(context.Background(), "exec1", node, map[string]any{})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestExecutor_NonRecoverableFailureStopsImmediately(t *testing.T) {
	registry := handler.NewRegistry()
	calls := 0
	registry.Register(testBlockType, stubHandler{
		execute: func(context.Context, handler.Context, workflow.Node, map[string]any) (map[string]any, error) {
			calls++
			return nil, errors.New("invalid configuration")
		},
	})

	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	sink := &recordingSink{}
	e := New(cfg, registry, nil, sink)
	node := workflow.Node{ID: "n1", BlockType: testBlockType}

	_, err := e.Run(context.Background(), "exec1", node, map[string]any{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt for a non-recoverable error, got %d", calls)
	}
}

func TestExecutor_UnregisteredBlockTypeRaisesConfig(t *testing.T) {
	registry := handler.NewRegistry()
	sink := &recordingSink{}
	e := New(DefaultConfig(), registry, nil, sink)
	node := workflow.Node{ID: "n1", BlockType: "NO_SUCH_TYPE"}

	_, err := e.Run(context.Background(), "exec1", node, map[string]any{})
	if err == nil {
		t.Fatal("expected an error for an unregistered block type")
	}
	engErr, ok := err.(*workflow.Error)
	if !ok || engErr.Kind != workflow.KindConfig {
		t.Errorf("expected KindConfig, got %v", err)
	}
}

func TestIsRecoverable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("Connection Refused by peer"), true},
		{errors.New("RATE LIMIT exceeded"), true},
		{errors.New("invalid signature"), false},
		{workflow.NewError(workflow.KindCircuitOpen, "n1", "circuit open"), false},
	}
	for _, c := range cases {
		if got := IsRecoverable(c.err); got != c.want {
			t.Errorf("IsRecoverable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/exec"
	"github.com/flowruntime/engine/workflow/handler"
)

type noopSink struct{}

func (noopSink) NodeStarted(context.Context, string, string, map[string]any) error { return nil }

func (noopSink) SetNodeExecutionStatus(context.Context, string, string, workflow.NodeExecutionStatus, int, map[string]any, *workflow.Error) error {
	return nil
}
func (noopSink) AppendLogEvent(context.Context, workflow.LogEvent) {}

type passthroughHandler struct {
	delta map[string]any
}

func (h passthroughHandler) Schema() workflow.Schema { return workflow.Schema{} }

func (h passthroughHandler) Execute(_ context.Context, _ handler.Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input)+len(h.delta))
	for k, v := range input {
		out[k] = v
	}
	for k, v := range h.delta {
		out[k] = v
	}
	return out, nil
}

func linearWorkflow() workflow.Workflow {
	return workflow.Workflow{
		ID: "wf1",
		Nodes: []workflow.Node{
			{ID: "a", BlockType: "A"},
			{ID: "b", BlockType: "B"},
			{ID: "c", BlockType: "EMAIL"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
		},
	}
}

func TestScheduler_LinearWorkflowCompletes(t *testing.T) {
	registry := handler.NewRegistry()
	registry.Register("A", passthroughHandler{delta: map[string]any{"fromA": 1.0}})
	registry.Register("B", passthroughHandler{delta: map[string]any{"fromB": 2.0}})
	registry.Register("EMAIL", passthroughHandler{delta: map[string]any{"fromC": 3.0}})

	executor := exec.New(exec.DefaultConfig(), registry, nil, noopSink{})
	s := New(DefaultConfig(), executor)

	result := s.Run(context.Background(), "exec1", linearWorkflow())
	if result.Status != workflow.ExecutionCompleted {
		t.Fatalf("expected completed, got %s (failed=%v)", result.Status, result.Failed)
	}
	if result.Outputs["c"]["fromA"] != 1.0 || result.Outputs["c"]["fromB"] != 2.0 || result.Outputs["c"]["fromC"] != 3.0 {
		t.Errorf("expected c's output to accumulate upstream values, got %v", result.Outputs["c"])
	}
}

func TestScheduler_DiamondWorkflowMergesBothParents(t *testing.T) {
	wf := workflow.Workflow{
		ID: "wf2",
		Nodes: []workflow.Node{
			{ID: "a", BlockType: "A"},
			{ID: "b", BlockType: "B"},
			{ID: "c", BlockType: "C"},
			{ID: "d", BlockType: "EMAIL"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "d"},
			{ID: "e4", Source: "c", Target: "d"},
		},
	}

	registry := handler.NewRegistry()
	registry.Register("A", passthroughHandler{delta: map[string]any{"fromA": 1.0}})
	registry.Register("B", passthroughHandler{delta: map[string]any{"fromB": 2.0}})
	registry.Register("C", passthroughHandler{delta: map[string]any{"fromC": 3.0}})
	registry.Register("EMAIL", passthroughHandler{})

	executor := exec.New(exec.DefaultConfig(), registry, nil, noopSink{})
	s := New(Config{MaxInFlight: 2}, executor)

	result := s.Run(context.Background(), "exec2", wf)
	if result.Status != workflow.ExecutionCompleted {
		t.Fatalf("expected completed, got %s (failed=%v)", result.Status, result.Failed)
	}
	d := result.Outputs["d"]
	if d["fromA"] != 1.0 || d["fromB"] != 2.0 || d["fromC"] != 3.0 {
		t.Errorf("expected d to see both parents' outputs, got %v", d)
	}
}

type failingHandler struct{}

func (failingHandler) Schema() workflow.Schema { return workflow.Schema{} }
func (failingHandler) Execute(context.Context, handler.Context, workflow.Node, map[string]any) (map[string]any, error) {
	return nil, workflow.NewError(workflow.KindConfig, "", "deliberate failure")
}

func TestScheduler_FailureStopsDownstream(t *testing.T) {
	registry := handler.NewRegistry()
	registry.Register("A", failingHandler{})
	registry.Register("B", passthroughHandler{})
	registry.Register("EMAIL", passthroughHandler{})

	executor := exec.New(exec.DefaultConfig(), registry, nil, noopSink{})
	s := New(DefaultConfig(), executor)

	result := s.Run(context.Background(), "exec3", linearWorkflow())
	if result.Status != workflow.ExecutionFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Failed == nil {
		t.Fatal("expected Failed to be set")
	}
	if _, ran := result.Outputs["b"]; ran {
		t.Error("expected downstream node b to never run after a's failure")
	}
}

type pausingHandler struct {
	calls *int
}

func TestScheduler_PausedNodeSkipsDescendants(t *testing.T) {
	registry := handler.NewRegistry()
	registry.Register("A", passthroughHandler{})
	registry.Register("B", passthroughHandler{})
	registry.Register("EMAIL", passthroughHandler{})

	pauses := alwaysPaused{node: "b"}
	executor := exec.New(exec.DefaultConfig(), registry, pauses, noopSink{})
	s := New(DefaultConfig(), executor)

	result := s.Run(context.Background(), "exec4", linearWorkflow())
	if !result.Skipped["c"] {
		t.Errorf("expected c to be marked skipped after b's pause, got %v", result.Skipped)
	}
	if _, ran := result.Outputs["c"]; ran {
		t.Error("expected c to never run")
	}
}

type alwaysPaused struct{ node string }

func (p alwaysPaused) IsPaused(_ context.Context, _, nodeID string) (bool, error) {
	return nodeID == p.node, nil
}

func TestScheduler_RespectsContextCancellation(t *testing.T) {
	registry := handler.NewRegistry()
	registry.Register("A", passthroughHandler{})
	registry.Register("B", passthroughHandler{})
	registry.Register("EMAIL", passthroughHandler{})

	executor := exec.New(exec.DefaultConfig(), registry, nil, noopSink{})
	s := New(DefaultConfig(), executor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := s.Run(ctx, "exec5", linearWorkflow())
	_ = time.Millisecond // no sleep needed; cancellation is checked before first dispatch
	if result.Status != workflow.ExecutionCancelled {
		t.Errorf("expected cancelled, got %s", result.Status)
	}
}

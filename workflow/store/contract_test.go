package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowruntime/engine/workflow"
)

// runContractTests exercises every Store operation against s, shared by
// the per-backend tests so every backend is held to the same behavior.
func runContractTests(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	wf := workflow.Workflow{
		ID:      "wf-1",
		Version: 1,
		Nodes: []workflow.Node{
			{ID: "a", BlockType: workflow.BlockCalculator, Config: map[string]any{"operation": "add"}},
			{ID: "b", BlockType: workflow.BlockEmail, Config: map[string]any{"subject": "hi"}},
		},
		Edges:    []workflow.Edge{{ID: "e1", Source: "a", Target: "b"}},
		Metadata: map[string]any{"owner": "test"},
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	loaded, err := s.LoadWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, wf.Version, loaded.Version)
	require.Len(t, loaded.Nodes, 2)
	require.Len(t, loaded.Edges, 1)
	require.Equal(t, "test", loaded.Metadata["owner"])

	wf.Version = 2
	require.NoError(t, s.UpdateWorkflow(ctx, wf))
	loaded, err = s.LoadWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Version)

	_, err = s.LoadWorkflow(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	exec := workflow.Execution{ID: "ex-1", WorkflowID: "wf-1", Status: workflow.ExecutionPending, TriggerSource: "manual"}
	require.NoError(t, s.CreateExecution(ctx, exec))

	got, err := s.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionPending, got.Status)

	require.NoError(t, s.UpdateExecutionStatus(ctx, "ex-1", workflow.ExecutionRunning, nil))
	got, err = s.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	fatalErr := workflow.NewError(workflow.KindExecution, "b", "boom")
	require.NoError(t, s.UpdateExecutionStatus(ctx, "ex-1", workflow.ExecutionFailed, fatalErr))
	got, err = s.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.LastError)
	require.Equal(t, workflow.KindExecution, got.LastError.Kind)

	require.NoError(t, s.SetExecutionResult(ctx, "ex-1", map[string]any{"n": float64(6)}))
	got, err = s.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	require.Equal(t, float64(6), got.Result["n"])

	ready, err := s.ListReadyExecutions(ctx)
	require.NoError(t, err)
	require.NotContains(t, ready, "ex-1") // failed is terminal, not "ready"

	require.NoError(t, s.SetNodeExecutionStatus(ctx, "ex-1", "a", workflow.NodeSucceeded, 1, map[string]any{"n": float64(2)}, nil))
	ne, ok, err := s.GetNodeExecution(ctx, "ex-1", "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, workflow.NodeSucceeded, ne.Status)
	require.Equal(t, 1, ne.Attempts)
	require.Equal(t, float64(2), ne.Output["n"])
	require.NotNil(t, ne.StartedAt)
	require.NotNil(t, ne.CompletedAt)

	badErr := workflow.NewError(workflow.KindConfig, "b", "missing field")
	require.NoError(t, s.SetNodeExecutionStatus(ctx, "ex-1", "b", workflow.NodeFailed, 1, nil, badErr))
	ne, ok, err = s.GetNodeExecution(ctx, "ex-1", "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, workflow.NodeFailed, ne.Status)
	require.NotNil(t, ne.Error)
	require.Equal(t, workflow.KindConfig, ne.Error.Kind)

	all, err := s.ListNodeExecutions(ctx, "ex-1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, ok, err = s.GetNodeExecution(ctx, "ex-1", "missing")
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Now()
	s.AppendLogEvent(ctx, workflow.LogEvent{ExecutionID: "ex-1", NodeID: "a", Level: workflow.LevelInfo, Message: "started", Timestamp: now})
	s.AppendLogEvent(ctx, workflow.LogEvent{ExecutionID: "ex-1", NodeID: "b", Level: workflow.LevelWarn, Message: "retrying", Timestamp: now.Add(time.Millisecond)})

	logs, err := s.ListLogEvents(ctx, "ex-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "started", logs[0].Message)

	nodeLogs, err := s.ListNodeLogEvents(ctx, "ex-1", "b")
	require.NoError(t, err)
	require.Len(t, nodeLogs, 1)
	require.Equal(t, "retrying", nodeLogs[0].Message)

	paused, err := s.IsPaused(ctx, "ex-1", "a")
	require.NoError(t, err)
	require.False(t, paused)

	require.NoError(t, s.SetPause(ctx, workflow.Pause{ExecutionID: "ex-1", NodeID: "a", CreatedAt: now}))
	paused, err = s.IsPaused(ctx, "ex-1", "a")
	require.NoError(t, err)
	require.True(t, paused)

	p, ok, err := s.GetPause(ctx, "ex-1", "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", p.NodeID)

	require.NoError(t, s.ClearPause(ctx, "ex-1", "a"))
	paused, err = s.IsPaused(ctx, "ex-1", "a")
	require.NoError(t, err)
	require.False(t, paused)

	scope := workflow.CircuitScope{System: "ethereum-mainnet", Principal: "wallet-1"}
	_, ok, err = s.LoadCircuitState(ctx, scope.Key("send_tx"))
	require.NoError(t, err)
	require.False(t, ok)

	opened := now
	require.NoError(t, s.SaveCircuitState(ctx, workflow.CircuitState{
		Scope: scope, Operation: "send_tx", State: workflow.CircuitOpen, ConsecutiveFailures: 5, OpenedAt: &opened,
	}))
	cs, ok, err := s.LoadCircuitState(ctx, scope.Key("send_tx"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, workflow.CircuitOpen, cs.State)
	require.Equal(t, 5, cs.ConsecutiveFailures)
	require.NotNil(t, cs.OpenedAt)

	require.NoError(t, s.RecordBlockExecution(ctx, workflow.BlockExecution{
		ID: "be-1", ExecutionID: "ex-1", NodeID: "a", Attempt: 1,
		BlockType: workflow.BlockCalculator, Result: "success", DurationMs: 12, CreatedAt: now,
	}))

	require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))
	_, err = s.LoadWorkflow(ctx, "wf-1")
	require.ErrorIs(t, err, ErrNotFound)
}

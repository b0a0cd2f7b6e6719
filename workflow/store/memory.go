package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowruntime/engine/workflow"
)

// Memory is an in-process Store backed by plain maps. Suitable for tests
// and single-process deployments that accept losing state on restart.
type Memory struct {
	mu sync.RWMutex

	workflows       map[string]workflow.Workflow
	executions      map[string]workflow.Execution
	nodeExecutions  map[string]map[string]workflow.NodeExecution // executionID -> nodeID -> row
	logs            map[string][]workflow.LogEvent               // executionID -> events
	pauses          map[string]workflow.Pause                    // "executionID/nodeID" -> pause
	circuits        map[string]workflow.CircuitState
	blockExecutions []workflow.BlockExecution

	seq int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows:      make(map[string]workflow.Workflow),
		executions:     make(map[string]workflow.Execution),
		nodeExecutions: make(map[string]map[string]workflow.NodeExecution),
		logs:           make(map[string][]workflow.LogEvent),
		pauses:         make(map[string]workflow.Pause),
		circuits:       make(map[string]workflow.CircuitState),
	}
}

func (m *Memory) CreateWorkflow(_ context.Context, wf workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = wf
	return nil
}

func (m *Memory) LoadWorkflow(_ context.Context, id string) (workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return workflow.Workflow{}, ErrNotFound
	}
	return wf, nil
}

func (m *Memory) UpdateWorkflow(_ context.Context, wf workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	m.workflows[wf.ID] = wf
	return nil
}

func (m *Memory) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, id)
	return nil
}

func (m *Memory) CreateExecution(_ context.Context, execution workflow.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[execution.ID] = execution
	if _, ok := m.nodeExecutions[execution.ID]; !ok {
		m.nodeExecutions[execution.ID] = make(map[string]workflow.NodeExecution)
	}
	return nil
}

func (m *Memory) GetExecution(_ context.Context, id string) (workflow.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executions[id]
	if !ok {
		return workflow.Execution{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) UpdateExecutionStatus(_ context.Context, id string, status workflow.ExecutionStatus, lastErr *workflow.Error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	now := time.Now()
	if status == workflow.ExecutionRunning && e.StartedAt == nil {
		e.StartedAt = &now
	}
	if status.Terminal() {
		e.CompletedAt = &now
	}
	if lastErr != nil {
		e.LastError = lastErr
	}
	m.executions[id] = e
	return nil
}

func (m *Memory) SetExecutionResult(_ context.Context, id string, result map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return ErrNotFound
	}
	e.Result = result
	m.executions[id] = e
	return nil
}

func (m *Memory) ListReadyExecutions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, e := range m.executions {
		if e.Status == workflow.ExecutionPending || e.Status == workflow.ExecutionRunning {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) CreateNodeExecution(_ context.Context, ne workflow.NodeExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNode, ok := m.nodeExecutions[ne.ExecutionID]
	if !ok {
		byNode = make(map[string]workflow.NodeExecution)
		m.nodeExecutions[ne.ExecutionID] = byNode
	}
	byNode[ne.NodeID] = ne
	return nil
}

func (m *Memory) GetNodeExecution(_ context.Context, executionID, nodeID string) (workflow.NodeExecution, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byNode, ok := m.nodeExecutions[executionID]
	if !ok {
		return workflow.NodeExecution{}, false, nil
	}
	ne, ok := byNode[nodeID]
	return ne, ok, nil
}

func (m *Memory) ListNodeExecutions(_ context.Context, executionID string) ([]workflow.NodeExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byNode := m.nodeExecutions[executionID]
	out := make([]workflow.NodeExecution, 0, len(byNode))
	for _, ne := range byNode {
		out = append(out, ne)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

func (m *Memory) UpdateNodeExecutionStatus(_ context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ne := m.touchNodeExecution(executionID, nodeID)
	ne.Status = status
	ne.Attempts = attempts
	now := time.Now()
	if ne.StartedAt == nil {
		ne.StartedAt = &now
	}
	m.nodeExecutions[executionID][nodeID] = ne
	return nil
}

func (m *Memory) SetNodeExecutionOutput(_ context.Context, executionID, nodeID string, output map[string]any, execErr *workflow.Error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ne := m.touchNodeExecution(executionID, nodeID)
	ne.Output = output
	ne.Error = execErr
	m.nodeExecutions[executionID][nodeID] = ne
	return nil
}

func (m *Memory) SetNodeExecutionStatus(_ context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int, output map[string]any, execErr *workflow.Error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ne := m.touchNodeExecution(executionID, nodeID)
	now := time.Now()
	if ne.StartedAt == nil {
		ne.StartedAt = &now
	}
	ne.Status = status
	ne.Attempts = attempts
	ne.Output = output
	ne.Error = execErr
	if status == workflow.NodeSucceeded || status == workflow.NodeFailed || status == workflow.NodeSkipped {
		ne.CompletedAt = &now
	}
	m.nodeExecutions[executionID][nodeID] = ne
	return nil
}

// touchNodeExecution returns the existing row for (executionID, nodeID),
// creating a pending placeholder if this is the first touch. Caller must
// hold m.mu.
func (m *Memory) touchNodeExecution(executionID, nodeID string) workflow.NodeExecution {
	byNode, ok := m.nodeExecutions[executionID]
	if !ok {
		byNode = make(map[string]workflow.NodeExecution)
		m.nodeExecutions[executionID] = byNode
	}
	ne, ok := byNode[nodeID]
	if !ok {
		ne = workflow.NodeExecution{ID: executionID + "/" + nodeID, ExecutionID: executionID, NodeID: nodeID, Status: workflow.NodePending}
	}
	return ne
}

func (m *Memory) AppendLogEvent(_ context.Context, event workflow.LogEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	event.Sequence = m.seq
	m.logs[event.ExecutionID] = append(m.logs[event.ExecutionID], event)
}

func (m *Memory) ListLogEvents(_ context.Context, executionID string) ([]workflow.LogEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workflow.LogEvent, len(m.logs[executionID]))
	copy(out, m.logs[executionID])
	return out, nil
}

func (m *Memory) ListNodeLogEvents(_ context.Context, executionID, nodeID string) ([]workflow.LogEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.LogEvent
	for _, e := range m.logs[executionID] {
		if e.NodeID == nodeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func pauseKey(executionID, nodeID string) string { return executionID + "/" + nodeID }

func (m *Memory) GetPause(_ context.Context, executionID, nodeID string) (workflow.Pause, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pauses[pauseKey(executionID, nodeID)]
	return p, ok, nil
}

func (m *Memory) IsPaused(ctx context.Context, executionID, nodeID string) (bool, error) {
	// An execution-wide pause (empty node id) covers every node.
	if _, ok, err := m.GetPause(ctx, executionID, ""); ok || err != nil {
		return ok, err
	}
	_, ok, err := m.GetPause(ctx, executionID, nodeID)
	return ok, err
}

func (m *Memory) SetPause(_ context.Context, pause workflow.Pause) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses[pauseKey(pause.ExecutionID, pause.NodeID)] = pause
	return nil
}

func (m *Memory) ClearPause(_ context.Context, executionID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pauses, pauseKey(executionID, nodeID))
	return nil
}

func (m *Memory) RecordBlockExecution(_ context.Context, be workflow.BlockExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockExecutions = append(m.blockExecutions, be)
	return nil
}

// ListBlockExecutions returns the per-attempt ledger for executionID,
// in insertion order. Test helper; the SQL stores expose the same data
// through their block_executions table.
func (m *Memory) ListBlockExecutions(_ context.Context, executionID string) []workflow.BlockExecution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.BlockExecution
	for _, be := range m.blockExecutions {
		if be.ExecutionID == executionID {
			out = append(out, be)
		}
	}
	return out
}

func (m *Memory) LoadCircuitState(_ context.Context, key string) (workflow.CircuitState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.circuits[key]
	return cs, ok, nil
}

func (m *Memory) SaveCircuitState(_ context.Context, state workflow.CircuitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuits[state.Scope.Key(state.Operation)] = state
	return nil
}

func (m *Memory) Close() error { return nil }

// Package store implements the persistence gateway: one interface
// covering workflow/execution/node-execution/log/pause/circuit-state
// rows, satisfied by four backends (memory, sqlite, postgres, mysql).
package store

import (
	"context"
	"errors"

	"github.com/flowruntime/engine/workflow"
)

// ErrNotFound is returned when a requested workflow, execution, or node
// execution does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the single persistence interface every execution subsystem
// component depends on. Lifecycle writes (executions, node executions,
// pauses, circuit state) are fatal on failure; AppendLogEvent never
// returns an error because a log write failure must never block
// execution.
type Store interface {
	// Workflow CRUD, backing the HTTP surface.
	CreateWorkflow(ctx context.Context, wf workflow.Workflow) error
	LoadWorkflow(ctx context.Context, id string) (workflow.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf workflow.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	// Execution lifecycle.
	CreateExecution(ctx context.Context, execution workflow.Execution) error
	GetExecution(ctx context.Context, id string) (workflow.Execution, error)
	UpdateExecutionStatus(ctx context.Context, id string, status workflow.ExecutionStatus, lastErr *workflow.Error) error
	SetExecutionResult(ctx context.Context, id string, result map[string]any) error
	// ListReadyExecutions backs queue recovery: executions left `running`
	// or `pending` by a crashed worker, eligible for redelivery.
	ListReadyExecutions(ctx context.Context) ([]string, error)

	// Node execution lifecycle. One row per (executionID, nodeID).
	CreateNodeExecution(ctx context.Context, ne workflow.NodeExecution) error
	GetNodeExecution(ctx context.Context, executionID, nodeID string) (workflow.NodeExecution, bool, error)
	ListNodeExecutions(ctx context.Context, executionID string) ([]workflow.NodeExecution, error)
	UpdateNodeExecutionStatus(ctx context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int) error
	SetNodeExecutionOutput(ctx context.Context, executionID, nodeID string, output map[string]any, execErr *workflow.Error) error
	// SetNodeExecutionStatus is the composite create-or-update operation
	// workflow/exec.Sink drives: it creates the row on first dispatch and
	// updates status/attempts/output/error on every subsequent call.
	SetNodeExecutionStatus(ctx context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int, output map[string]any, execErr *workflow.Error) error

	// Logs: append-only, never fatal.
	AppendLogEvent(ctx context.Context, event workflow.LogEvent)
	ListLogEvents(ctx context.Context, executionID string) ([]workflow.LogEvent, error)
	ListNodeLogEvents(ctx context.Context, executionID, nodeID string) ([]workflow.LogEvent, error)

	// Pause records, single-writer per (executionID, nodeID).
	GetPause(ctx context.Context, executionID, nodeID string) (workflow.Pause, bool, error)
	IsPaused(ctx context.Context, executionID, nodeID string) (bool, error)
	SetPause(ctx context.Context, pause workflow.Pause) error
	ClearPause(ctx context.Context, executionID, nodeID string) error

	// Block executions: one row per handler invocation attempt, written
	// by the handler metrics decorator.
	RecordBlockExecution(ctx context.Context, be workflow.BlockExecution) error

	// Circuit breaker state, surviving restarts.
	LoadCircuitState(ctx context.Context, key string) (workflow.CircuitState, bool, error)
	SaveCircuitState(ctx context.Context, state workflow.CircuitState) error

	// Close releases any held resources (DB connections, pools).
	Close() error
}

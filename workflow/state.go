package workflow

import "time"

// ExecutionStatus is the lifecycle state of one Execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether status is one of the final states.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// Execution is one run of a Workflow.
type Execution struct {
	ID            string
	WorkflowID    string
	Status        ExecutionStatus
	StartedAt     *time.Time
	CompletedAt   *time.Time
	TriggerSource string
	InitiatorID   string
	Result        map[string]any
	LastError     *Error
}

// NodeExecutionStatus is the lifecycle state of one (execution, node)
// pair.
type NodeExecutionStatus string

const (
	NodePending   NodeExecutionStatus = "pending"
	NodeRunning   NodeExecutionStatus = "running"
	NodeSucceeded NodeExecutionStatus = "succeeded"
	NodeFailed    NodeExecutionStatus = "failed"
	NodeSkipped   NodeExecutionStatus = "skipped"
	NodePaused    NodeExecutionStatus = "paused"
)

// NodeExecution is exactly one row per (ExecutionID, NodeID) in the
// terminal set, created on first dispatch.
type NodeExecution struct {
	ID          string
	ExecutionID string
	NodeID      string
	Status      NodeExecutionStatus
	Attempts    int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Input       map[string]any
	Output      map[string]any
	Error       *Error
}

// LogLevel is the severity of a LogEvent.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEvent is one append-only log line attached to an execution and,
// optionally, one node within it.
type LogEvent struct {
	ExecutionID string
	NodeID      string
	Level       LogLevel
	Message     string
	Data        map[string]any
	Timestamp   time.Time
	// Sequence disambiguates events emitted at the same wall-clock
	// timestamp by the same emitter.
	Sequence int
}

// CircuitFSMState is the state of a circuit breaker for one scope.
type CircuitFSMState string

const (
	CircuitClosed   CircuitFSMState = "closed"
	CircuitOpen     CircuitFSMState = "open"
	CircuitHalfOpen CircuitFSMState = "halfOpen"
)

// CircuitScope pairs an external-system identifier (e.g. a chain id) with
// a principal identifier, per the glossary's "Scope (breaker)" entry.
type CircuitScope struct {
	System    string
	Principal string
}

// Key returns the stable string form used as the persistence row key.
func (s CircuitScope) Key(operation string) string {
	return s.System + "/" + s.Principal + "/" + operation
}

// CircuitState is the persisted state of one (scope, operation) circuit
// breaker.
type CircuitState struct {
	Scope               CircuitScope
	Operation           string
	State               CircuitFSMState
	ConsecutiveFailures int
	OpenedAt            *time.Time
	LastSuccessAt       *time.Time
}

// BlockExecution records one handler invocation attempt: the
// per-attempt ledger behind the node-level NodeExecution row, written by
// the handler metrics decorator.
type BlockExecution struct {
	ID          string
	ExecutionID string
	NodeID      string
	Attempt     int
	BlockType   BlockType
	Result      string // "success" or "failure"
	DurationMs  int64
	CreatedAt   time.Time
}

// Pause marks that a node (or an entire execution, when NodeID is empty)
// is paused.
type Pause struct {
	ExecutionID string
	NodeID      string
	CreatedAt   time.Time
}

package workflow

import "fmt"

// ErrorKind is the closed set of failure categories surfaced by the
// engine. Every *Error carries one of these so callers —
// the Scheduler, the Coordinator, and the HTTP surface — can branch on
// kind without parsing messages.
type ErrorKind string

const (
	KindValidation  ErrorKind = "VALIDATION"
	KindConfig      ErrorKind = "CONFIG"
	KindTimeout     ErrorKind = "TIMEOUT"
	KindExecution   ErrorKind = "EXECUTION"
	KindCancelled   ErrorKind = "CANCELLED"
	KindCircuitOpen ErrorKind = "CIRCUIT_OPEN"
	KindPersistence ErrorKind = "PERSISTENCE"
)

// Error is the engine's structured error type. It wraps an optional cause
// so %w-style unwrapping still works, while exposing Kind for the
// classifier and NodeID for log correlation.
type Error struct {
	Kind    ErrorKind
	NodeID  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs an *Error with the given kind and message.
func NewError(kind ErrorKind, nodeID, message string) *Error {
	return &Error{Kind: kind, NodeID: nodeID, Message: message}
}

// Wrap constructs an *Error that wraps cause, taking its message from
// cause.Error() (empty when cause is nil).
func Wrap(kind ErrorKind, nodeID string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, NodeID: nodeID, Message: msg, Cause: cause}
}

// ViolationKind enumerates the tagged reasons the Validator can reject a
// workflow.
type ViolationKind string

const (
	ViolationEmpty             ViolationKind = "EMPTY"
	ViolationCycle             ViolationKind = "CYCLE"
	ViolationOrphan            ViolationKind = "ORPHAN"
	ViolationMultipleEntries   ViolationKind = "MULTIPLE_ENTRIES"
	ViolationNoEntry           ViolationKind = "NO_ENTRY"
	ViolationTerminalNotAction ViolationKind = "TERMINAL_NOT_ACTION"
	ViolationConfigInvalid     ViolationKind = "CONFIG_INVALID"
	ViolationMissingConfig     ViolationKind = "MISSING_CONFIG"
	ViolationUnknownReference  ViolationKind = "UNKNOWN_REFERENCE"
)

// Violation is one tagged reason a Workflow failed validation.
type Violation struct {
	Kind     ViolationKind
	NodeID   string
	EdgeID   string
	Endpoint string
	Field    string
	Reason   string
	NodeIDs  []string // for MULTIPLE_ENTRIES
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationCycle, ViolationOrphan, ViolationTerminalNotAction:
		return fmt.Sprintf("%s(%s)", v.Kind, v.NodeID)
	case ViolationMultipleEntries:
		return fmt.Sprintf("%s(%v)", v.Kind, v.NodeIDs)
	case ViolationConfigInvalid:
		return fmt.Sprintf("%s(%s, %s, %s)", v.Kind, v.NodeID, v.Field, v.Reason)
	case ViolationMissingConfig:
		return fmt.Sprintf("%s(%s, %s)", v.Kind, v.NodeID, v.Field)
	case ViolationUnknownReference:
		return fmt.Sprintf("%s(%s, %s)", v.Kind, v.EdgeID, v.Endpoint)
	default:
		return string(v.Kind)
	}
}

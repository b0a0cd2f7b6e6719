package httpapi

import (
	"time"

	"github.com/flowruntime/engine/workflow"
)

// Wire shapes for the JSON surface. The engine's canonical types carry no
// serialization tags; naming for external consumers is mapped here, at
// the boundary, and nowhere else.

type workflowDTO struct {
	ID       string         `json:"id"`
	Version  int            `json:"version"`
	Nodes    []nodeDTO      `json:"nodes"`
	Edges    []edgeDTO      `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type nodeDTO struct {
	ID        string         `json:"id"`
	BlockType string         `json:"blockType"`
	Config    map[string]any `json:"config,omitempty"`
	Position  map[string]any `json:"position,omitempty"`
}

type edgeDTO struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

type violationDTO struct {
	Kind     string   `json:"kind"`
	NodeID   string   `json:"nodeId,omitempty"`
	EdgeID   string   `json:"edgeId,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"`
	Field    string   `json:"field,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	NodeIDs  []string `json:"nodeIds,omitempty"`
}

type errorDTO struct {
	Kind    string `json:"kind"`
	NodeID  string `json:"nodeId,omitempty"`
	Message string `json:"message"`
}

type executionDTO struct {
	ID             string             `json:"id"`
	WorkflowID     string             `json:"workflowId"`
	Status         string             `json:"status"`
	StartedAt      *string            `json:"startedAt,omitempty"`
	CompletedAt    *string            `json:"completedAt,omitempty"`
	TriggerSource  string             `json:"triggerSource,omitempty"`
	InitiatorID    string             `json:"initiatorId,omitempty"`
	Result         map[string]any     `json:"result,omitempty"`
	LastError      *errorDTO          `json:"lastError,omitempty"`
	NodeExecutions []nodeExecutionDTO `json:"nodeExecutions,omitempty"`
	RecentLogs     []logEventDTO      `json:"recentLogs,omitempty"`
}

type nodeExecutionDTO struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"executionId"`
	NodeID      string         `json:"nodeId"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	StartedAt   *string        `json:"startedAt,omitempty"`
	CompletedAt *string        `json:"completedAt,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       *errorDTO      `json:"error,omitempty"`
}

type logEventDTO struct {
	ExecutionID string         `json:"executionId"`
	NodeID      string         `json:"nodeId,omitempty"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

func isoTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func toWorkflow(dto workflowDTO) workflow.Workflow {
	wf := workflow.Workflow{ID: dto.ID, Version: dto.Version, Metadata: dto.Metadata}
	for _, n := range dto.Nodes {
		wf.Nodes = append(wf.Nodes, workflow.Node{
			ID: n.ID, BlockType: workflow.BlockType(n.BlockType), Config: n.Config, Position: n.Position,
		})
	}
	for _, e := range dto.Edges {
		wf.Edges = append(wf.Edges, workflow.Edge{
			ID: e.ID, Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle,
		})
	}
	return wf
}

func fromWorkflow(wf workflow.Workflow) workflowDTO {
	dto := workflowDTO{ID: wf.ID, Version: wf.Version, Metadata: wf.Metadata, Nodes: []nodeDTO{}, Edges: []edgeDTO{}}
	for _, n := range wf.Nodes {
		dto.Nodes = append(dto.Nodes, nodeDTO{ID: n.ID, BlockType: string(n.BlockType), Config: n.Config, Position: n.Position})
	}
	for _, e := range wf.Edges {
		dto.Edges = append(dto.Edges, edgeDTO{ID: e.ID, Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle})
	}
	return dto
}

func fromViolations(violations []workflow.Violation) []violationDTO {
	out := make([]violationDTO, len(violations))
	for i, v := range violations {
		out[i] = violationDTO{
			Kind: string(v.Kind), NodeID: v.NodeID, EdgeID: v.EdgeID,
			Endpoint: v.Endpoint, Field: v.Field, Reason: v.Reason, NodeIDs: v.NodeIDs,
		}
	}
	return out
}

func fromError(err *workflow.Error) *errorDTO {
	if err == nil {
		return nil
	}
	return &errorDTO{Kind: string(err.Kind), NodeID: err.NodeID, Message: err.Message}
}

func fromExecution(e workflow.Execution) executionDTO {
	return executionDTO{
		ID: e.ID, WorkflowID: e.WorkflowID, Status: string(e.Status),
		StartedAt: isoTime(e.StartedAt), CompletedAt: isoTime(e.CompletedAt),
		TriggerSource: e.TriggerSource, InitiatorID: e.InitiatorID,
		Result: e.Result, LastError: fromError(e.LastError),
	}
}

func fromNodeExecution(ne workflow.NodeExecution) nodeExecutionDTO {
	return nodeExecutionDTO{
		ID: ne.ID, ExecutionID: ne.ExecutionID, NodeID: ne.NodeID,
		Status: string(ne.Status), Attempts: ne.Attempts,
		StartedAt: isoTime(ne.StartedAt), CompletedAt: isoTime(ne.CompletedAt),
		Input: ne.Input, Output: ne.Output, Error: fromError(ne.Error),
	}
}

func fromLogEvent(e workflow.LogEvent) logEventDTO {
	return logEventDTO{
		ExecutionID: e.ExecutionID, NodeID: e.NodeID, Level: string(e.Level),
		Message: e.Message, Data: e.Data, Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

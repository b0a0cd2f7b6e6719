package validate

import (
	"testing"

	"github.com/flowruntime/engine/workflow"
)

// schemaRegistry is a test Registry over a fixed schema table.
type schemaRegistry map[workflow.BlockType]workflow.Schema

func (r schemaRegistry) Schema(bt workflow.BlockType) (workflow.Schema, bool) {
	s, ok := r[bt]
	return s, ok
}

func actionTerminal(id string) workflow.Node {
	return workflow.Node{ID: id, BlockType: workflow.BlockEmail}
}

func mid(id string) workflow.Node {
	return workflow.Node{ID: id, BlockType: workflow.BlockTransform}
}

func hasViolation(violations []workflow.Violation, kind workflow.ViolationKind) bool {
	for _, v := range violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

func TestValidate_AcceptsLinearWorkflow(t *testing.T) {
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a"), mid("b"), actionTerminal("c")},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
		},
	}
	if violations := Validate(wf, nil); len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}

func TestValidate_EmptyWorkflow(t *testing.T) {
	violations := Validate(workflow.Workflow{ID: "wf"}, nil)
	if !hasViolation(violations, workflow.ViolationEmpty) {
		t.Errorf("expected EMPTY, got %v", violations)
	}
}

func TestValidate_CycleNamesANodeOnTheCycle(t *testing.T) {
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a"), mid("b"), mid("c")},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
			{ID: "e3", Source: "c", Target: "a"},
		},
	}
	violations := Validate(wf, nil)
	var cycleNode string
	for _, v := range violations {
		if v.Kind == workflow.ViolationCycle {
			cycleNode = v.NodeID
		}
	}
	if cycleNode != "a" && cycleNode != "b" && cycleNode != "c" {
		t.Errorf("expected CYCLE naming a node on the cycle, got %v", violations)
	}
}

func TestValidate_SelfLoopIsACycle(t *testing.T) {
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a"), actionTerminal("b")},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
		},
	}
	if violations := Validate(wf, nil); !hasViolation(violations, workflow.ViolationCycle) {
		t.Errorf("expected CYCLE for self-loop, got %v", violations)
	}
}

func TestValidate_MultipleEntries(t *testing.T) {
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a"), mid("b"), actionTerminal("c")},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "c"},
			{ID: "e2", Source: "b", Target: "c"},
		},
	}
	violations := Validate(wf, nil)
	var entries []string
	for _, v := range violations {
		if v.Kind == workflow.ViolationMultipleEntries {
			entries = v.NodeIDs
		}
	}
	if len(entries) != 2 || entries[0] != "a" || entries[1] != "b" {
		t.Errorf("expected MULTIPLE_ENTRIES [a b], got %v", violations)
	}
}

func TestValidate_OrphanUnreachableFromEntry(t *testing.T) {
	// d <-> e forms an unreachable island that is also a cycle, so CYCLE
	// is reported too; look specifically for ORPHAN.
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a"), actionTerminal("b"), mid("d"), actionTerminal("e")},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "d", Target: "e"},
			{ID: "e3", Source: "e", Target: "d"}, // cycle keeps the island out of the entry set
		},
	}
	violations := Validate(wf, nil)
	if !hasViolation(violations, workflow.ViolationOrphan) {
		t.Errorf("expected ORPHAN, got %v", violations)
	}
}

func TestValidate_TerminalMustBeAction(t *testing.T) {
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a"), mid("b")},
		Edges: []workflow.Edge{{ID: "e1", Source: "a", Target: "b"}},
	}
	violations := Validate(wf, nil)
	if !hasViolation(violations, workflow.ViolationTerminalNotAction) {
		t.Errorf("expected TERMINAL_NOT_ACTION, got %v", violations)
	}
}

func TestValidate_UnknownEdgeReferenceShortCircuits(t *testing.T) {
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a")},
		Edges: []workflow.Edge{{ID: "e1", Source: "a", Target: "ghost"}},
	}
	violations := Validate(wf, nil)
	if len(violations) != 1 || violations[0].Kind != workflow.ViolationUnknownReference {
		t.Errorf("expected only UNKNOWN_REFERENCE, got %v", violations)
	}
	if violations[0].EdgeID != "e1" || violations[0].Endpoint != "ghost" {
		t.Errorf("expected edge/endpoint tagged, got %+v", violations[0])
	}
}

func TestValidate_ConfigChecksAgainstSchema(t *testing.T) {
	reg := schemaRegistry{
		workflow.BlockEmail: {Inputs: []workflow.Field{
			{Name: "to", Kind: workflow.KindString, Required: true},
			{Name: "subject", Kind: workflow.KindString, Required: true},
		}},
	}
	wf := workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{{
			ID: "a", BlockType: workflow.BlockEmail,
			Config: map[string]any{"to": 42},
		}},
	}
	violations := Validate(wf, reg)
	if !hasViolation(violations, workflow.ViolationMissingConfig) {
		t.Errorf("expected MISSING_CONFIG for subject, got %v", violations)
	}
	if !hasViolation(violations, workflow.ViolationConfigInvalid) {
		t.Errorf("expected CONFIG_INVALID for numeric to, got %v", violations)
	}
}

func TestValidate_TemplateValuesPassConfigTypeChecks(t *testing.T) {
	reg := schemaRegistry{
		workflow.BlockEmail: {Inputs: []workflow.Field{
			{Name: "to", Kind: workflow.KindString, Required: true},
			{Name: "subject", Kind: workflow.KindString, Required: true},
		}},
	}
	wf := workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{{
			ID: "a", BlockType: workflow.BlockEmail,
			Config: map[string]any{"to": "{{recipient}}", "subject": "v={{result}}"},
		}},
	}
	if violations := Validate(wf, reg); len(violations) != 0 {
		t.Errorf("template placeholders must validate, got %v", violations)
	}
}

func TestTopologicalOrder_DeterministicTieBreak(t *testing.T) {
	// Diamond: a -> {b, c} -> d. b and c are tied; ascending id wins.
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("d"), mid("c"), mid("b"), mid("a")},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "d"},
			{ID: "e4", Source: "c", Target: "d"},
		},
	}
	order, ok := TopologicalOrder(wf)
	if !ok {
		t.Fatal("expected a topological order")
	}
	want := []string{"a", "b", "c", "d"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestTopologicalOrder_CyclicReportsFailure(t *testing.T) {
	wf := workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{mid("a"), mid("b")},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	if _, ok := TopologicalOrder(wf); ok {
		t.Error("expected no order for a cyclic graph")
	}
}

// Property: every accepted workflow admits a topological order; every
// rejected-for-cycle workflow does not (spec invariant 1), exercised over
// a sweep of generated layered DAGs and their cycle-closed variants.
func TestValidateAndTopoOrderAgreeOnCycles(t *testing.T) {
	for layers := 1; layers <= 4; layers++ {
		wf := layeredWorkflow(layers)
		violations := Validate(wf, nil)
		_, ok := TopologicalOrder(wf)
		if hasViolation(violations, workflow.ViolationCycle) == ok {
			t.Fatalf("layers=%d: cycle violation and topo order disagree", layers)
		}

		// Close a back edge to make it cyclic.
		cyclic := wf
		cyclic.Edges = append(append([]workflow.Edge{}, wf.Edges...), workflow.Edge{
			ID: "back", Source: wf.Nodes[len(wf.Nodes)-1].ID, Target: wf.Nodes[0].ID,
		})
		if _, ok := TopologicalOrder(cyclic); ok {
			t.Fatalf("layers=%d: cyclic variant still has a topo order", layers)
		}
		if !hasViolation(Validate(cyclic, nil), workflow.ViolationCycle) {
			t.Fatalf("layers=%d: cyclic variant not flagged", layers)
		}
	}
}

// layeredWorkflow builds a chain of `layers` transform nodes ending in an
// action terminal.
func layeredWorkflow(layers int) workflow.Workflow {
	wf := workflow.Workflow{ID: "gen"}
	prev := ""
	for i := 0; i < layers; i++ {
		id := string(rune('a' + i))
		wf.Nodes = append(wf.Nodes, mid(id))
		if prev != "" {
			wf.Edges = append(wf.Edges, workflow.Edge{ID: "e" + id, Source: prev, Target: id})
		}
		prev = id
	}
	wf.Nodes = append(wf.Nodes, actionTerminal("z"))
	wf.Edges = append(wf.Edges, workflow.Edge{ID: "ez", Source: prev, Target: "z"})
	return wf
}

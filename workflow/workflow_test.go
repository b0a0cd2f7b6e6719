package workflow

import "testing"

func sampleWorkflow() Workflow {
	return Workflow{
		ID: "wf",
		Nodes: []Node{
			{ID: "a", BlockType: BlockHTTP},
			{ID: "b", BlockType: BlockCalculator},
			{ID: "c", BlockType: BlockEmail},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c", SourceHandle: "body"},
			{ID: "e3", Source: "b", Target: "c"},
		},
	}
}

func TestWorkflow_NodeByID(t *testing.T) {
	wf := sampleWorkflow()
	if n, ok := wf.NodeByID("b"); !ok || n.BlockType != BlockCalculator {
		t.Errorf("got %v %v", n, ok)
	}
	if _, ok := wf.NodeByID("ghost"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestWorkflow_IncomingOutgoing(t *testing.T) {
	wf := sampleWorkflow()
	if in := wf.Incoming("c"); len(in) != 2 {
		t.Errorf("expected 2 incoming for c, got %d", len(in))
	}
	out := wf.Outgoing("a")
	if len(out) != 2 {
		t.Fatalf("expected 2 outgoing for a, got %d", len(out))
	}
	if out[1].SourceHandle != "body" {
		t.Errorf("expected handle preserved, got %+v", out[1])
	}
}

func TestExecutionStatus_Terminal(t *testing.T) {
	terminal := []ExecutionStatus{ExecutionCompleted, ExecutionFailed, ExecutionCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []ExecutionStatus{ExecutionPending, ExecutionRunning, ExecutionPaused} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestActionSet_MatchesSpec(t *testing.T) {
	want := []BlockType{BlockEmail, BlockNotification, BlockDatabase, BlockDiscord, BlockWebhook, BlockBlockchainTransaction}
	if len(ActionSet) != len(want) {
		t.Fatalf("ActionSet has %d entries, want %d", len(ActionSet), len(want))
	}
	for _, bt := range want {
		if !ActionSet[bt] {
			t.Errorf("%s missing from ActionSet", bt)
		}
	}
}

func TestCircuitScope_Key(t *testing.T) {
	scope := CircuitScope{System: "1", Principal: "0xabc"}
	if got := scope.Key("transaction"); got != "1/0xabc/transaction" {
		t.Errorf("got %q", got)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindTimeout, "n1", "node exceeded timeout")
	if err.Error() != "TIMEOUT: node n1: node exceeded timeout" {
		t.Errorf("got %q", err.Error())
	}
	bare := NewError(KindValidation, "", "bad graph")
	if bare.Error() != "VALIDATION: bad graph" {
		t.Errorf("got %q", bare.Error())
	}
}

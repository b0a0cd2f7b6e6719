package coord

import (
	"context"
	"testing"
	"time"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/handler"
	"github.com/flowruntime/engine/workflow/queue"
	"github.com/flowruntime/engine/workflow/store"
)

func TestWorker_ConsumesStartedExecution(t *testing.T) {
	st := store.NewMemory()
	q := queue.NewMemoryQueue(10 * time.Millisecond)
	defer q.Close()

	mailer := &captureMailer{}
	registry := handler.NewRegistry()
	registry.Register(workflow.BlockEmail, handler.NewEmailHandler(mailer))

	wf := workflow.Workflow{
		ID:    "wf-worker",
		Nodes: []workflow.Node{{ID: "a", BlockType: workflow.BlockEmail, Config: map[string]any{"to": "x@example.com", "subject": "hi"}}},
	}
	if err := st.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatal(err)
	}

	c := New(fastConfig(), st, registry, nil, q)
	executionID, violations, err := c.Start(context.Background(), wf.ID, "test", "u1")
	if err != nil || len(violations) > 0 {
		t.Fatalf("start: err=%v violations=%v", err, violations)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(WorkerConfig{Prefetch: 2, VisibilityTimeout: time.Minute}, q, c, nil)
	go func() { _ = w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		execution, err := st.GetExecution(context.Background(), executionID)
		if err == nil && execution.Status == workflow.ExecutionCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("execution never completed, status=%v", execution.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
	if mailer.subject.Load() != "hi" {
		t.Error("expected the email handler to run")
	}
}

func TestWorker_RecoverReenqueuesReadyExecutions(t *testing.T) {
	st := store.NewMemory()
	q := queue.NewMemoryQueue(10 * time.Millisecond)
	defer q.Close()

	registry := handler.NewRegistry()
	registry.Register(workflow.BlockEmail, handler.NewEmailHandler(nil))

	wf := workflow.Workflow{
		ID:    "wf-recover",
		Nodes: []workflow.Node{{ID: "a", BlockType: workflow.BlockEmail, Config: map[string]any{"to": "x@example.com", "subject": "s"}}},
	}
	if err := st.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatal(err)
	}
	// Simulate a crashed worker: a running execution with no queue entry.
	if err := st.CreateExecution(context.Background(), workflow.Execution{
		ID: "stranded", WorkflowID: wf.ID, Status: workflow.ExecutionRunning,
	}); err != nil {
		t.Fatal(err)
	}

	c := New(fastConfig(), st, registry, nil, q)
	w := NewWorker(DefaultWorkerConfig(), q, c, nil)
	if err := w.Recover(context.Background()); err != nil {
		t.Fatal(err)
	}

	msg, err := q.Dequeue(context.Background(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Payload) != "stranded" {
		t.Errorf("expected stranded execution re-enqueued, got %q", msg.Payload)
	}
}

// Package coord implements the Execution Coordinator: one lightweight
// task per in-flight execution, owning the full lifecycle from queue
// delivery through terminal status, plus the cancel/pause/resume control
// surface the HTTP API drives.
package coord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/emit"
	"github.com/flowruntime/engine/workflow/exec"
	"github.com/flowruntime/engine/workflow/handler"
	"github.com/flowruntime/engine/workflow/queue"
	"github.com/flowruntime/engine/workflow/schedule"
	"github.com/flowruntime/engine/workflow/store"
	"github.com/flowruntime/engine/workflow/validate"
)

// Config bundles the Coordinator's tunables.
type Config struct {
	Scheduler schedule.Config
	Executor  exec.Config
}

// DefaultConfig returns the engine defaults for both layers.
func DefaultConfig() Config {
	return Config{Scheduler: schedule.DefaultConfig(), Executor: exec.DefaultConfig()}
}

// Coordinator owns execution lifecycles. It is safe for concurrent use;
// each Run call drives one execution.
type Coordinator struct {
	cfg      Config
	store    store.Store
	registry *handler.Registry
	emitter  emit.Emitter
	queue    queue.Queue

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New returns a Coordinator. emitter may be nil (no extra observability
// backend beyond the store); q may be nil when the caller never uses
// Start/Resume/Retry re-enqueueing (tests driving Run directly).
func New(cfg Config, st store.Store, registry *handler.Registry, emitter emit.Emitter, q queue.Queue) *Coordinator {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Coordinator{
		cfg:      cfg,
		store:    st,
		registry: registry,
		emitter:  emitter,
		queue:    q,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start validates workflowID's graph, creates a pending Execution, and
// enqueues its id. Validation failures return the violations without
// creating an Execution row.
func (c *Coordinator) Start(ctx context.Context, workflowID, triggerSource, initiatorID string) (string, []workflow.Violation, error) {
	wf, err := c.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return "", nil, err
	}
	if violations := validate.Validate(wf, c.registry); len(violations) > 0 {
		return "", violations, nil
	}

	executionID := uuid.NewString()
	execution := workflow.Execution{
		ID:            executionID,
		WorkflowID:    workflowID,
		Status:        workflow.ExecutionPending,
		TriggerSource: triggerSource,
		InitiatorID:   initiatorID,
	}
	if err := c.store.CreateExecution(ctx, execution); err != nil {
		return "", nil, err
	}
	if c.queue != nil {
		if err := c.queue.Enqueue(ctx, []byte(executionID)); err != nil {
			return "", nil, err
		}
	}
	return executionID, nil, nil
}

// Run drives executionID to a terminal (or paused) state. It is
// idempotent on the input side: a redelivered id whose execution is
// already terminal is a no-op, which is what makes at-least-once queue
// delivery safe. A returned error means a lifecycle persistence write
// failed and the execution was abandoned for queue redelivery.
func (c *Coordinator) Run(ctx context.Context, executionID string) error {
	execution, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", executionID, err)
	}
	if execution.Status.Terminal() {
		return nil
	}

	wf, err := c.store.LoadWorkflow(ctx, execution.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", execution.WorkflowID, err)
	}

	// Revalidate: the graph may have been edited between enqueue and
	// delivery. Fails closed.
	if violations := validate.Validate(wf, c.registry); len(violations) > 0 {
		verr := workflow.NewError(workflow.KindValidation, "", fmt.Sprintf("workflow failed revalidation: %v", violations))
		if err := c.store.UpdateExecutionStatus(ctx, executionID, workflow.ExecutionFailed, verr); err != nil {
			return err
		}
		c.emitStatus(ctx, executionID, workflow.ExecutionFailed)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancels[executionID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, executionID)
		c.mu.Unlock()
	}()

	if err := c.store.UpdateExecutionStatus(ctx, executionID, workflow.ExecutionRunning, nil); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	c.emitStatus(ctx, executionID, workflow.ExecutionRunning)

	sink := &coordSink{store: c.store, emitter: c.emitter}
	executor := exec.New(c.cfg.Executor, c.registry, c.store, sink)
	scheduler := schedule.New(c.cfg.Scheduler, executor)

	result := scheduler.Run(runCtx, executionID, wf)

	// Finalize. The parent ctx (not runCtx) writes the terminal row, so a
	// cancelled execution still records its status.
	if result.Status == workflow.ExecutionCompleted {
		if err := c.store.SetExecutionResult(ctx, executionID, terminalOutputs(wf, result)); err != nil {
			return fmt.Errorf("set result: %w", err)
		}
	}
	if err := c.store.UpdateExecutionStatus(ctx, executionID, result.Status, result.Failed); err != nil {
		return fmt.Errorf("finalize status: %w", err)
	}
	c.emitStatus(ctx, executionID, result.Status)
	return nil
}

// Cancel sets the cooperative cancellation signal for an in-process
// execution. A pending execution not yet picked up is terminally
// cancelled directly.
func (c *Coordinator) Cancel(ctx context.Context, executionID string) error {
	c.mu.Lock()
	cancel, inFlight := c.cancels[executionID]
	c.mu.Unlock()
	if inFlight {
		cancel()
		return nil
	}

	execution, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if execution.Status.Terminal() {
		return nil
	}
	if err := c.store.UpdateExecutionStatus(ctx, executionID, workflow.ExecutionCancelled, nil); err != nil {
		return err
	}
	c.emitStatus(ctx, executionID, workflow.ExecutionCancelled)
	return nil
}

// Pause marks a pause record for nodeID (or the whole execution when
// nodeID is empty; the Node Executor's pause check treats an
// execution-wide record as covering every node).
func (c *Coordinator) Pause(ctx context.Context, executionID, nodeID string) error {
	return c.store.SetPause(ctx, workflow.Pause{
		ExecutionID: executionID,
		NodeID:      nodeID,
		CreatedAt:   time.Now().UTC(),
	})
}

// Resume clears the pause record and re-enqueues the execution so the
// Scheduler re-examines the ready set.
func (c *Coordinator) Resume(ctx context.Context, executionID, nodeID string) error {
	if err := c.store.ClearPause(ctx, executionID, nodeID); err != nil {
		return err
	}
	return c.reenqueue(ctx, executionID)
}

// Retry re-enqueues a terminal (completed, failed or cancelled)
// execution from the top; a non-terminal execution is refused.
// Succeeded nodes rerun; already-performed side effects are not
// compensated.
func (c *Coordinator) Retry(ctx context.Context, executionID string) error {
	execution, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if !execution.Status.Terminal() {
		return fmt.Errorf("execution %s is %s, not terminal", executionID, execution.Status)
	}
	if err := c.store.UpdateExecutionStatus(ctx, executionID, workflow.ExecutionPending, nil); err != nil {
		return err
	}
	return c.reenqueue(ctx, executionID)
}

func (c *Coordinator) reenqueue(ctx context.Context, executionID string) error {
	if c.queue == nil {
		return nil
	}
	return c.queue.Enqueue(ctx, []byte(executionID))
}

// emitStatus records a status transition as a LogEvent, feeding both the
// persisted log and any streaming emitter (the SSE surface subscribes to
// these).
func (c *Coordinator) emitStatus(ctx context.Context, executionID string, status workflow.ExecutionStatus) {
	event := workflow.LogEvent{
		ExecutionID: executionID,
		Level:       workflow.LevelInfo,
		Message:     "execution " + string(status),
		Data:        map[string]any{"status": string(status)},
		Timestamp:   time.Now().UTC(),
	}
	c.store.AppendLogEvent(ctx, event)
	c.emitter.Emit(event)
}

// terminalOutputs collects the outputs of the workflow's terminal nodes
// as the Execution's result.
func terminalOutputs(wf workflow.Workflow, result schedule.Result) map[string]any {
	out := make(map[string]any)
	for _, n := range wf.Nodes {
		if len(wf.Outgoing(n.ID)) == 0 {
			if o, ok := result.Outputs[n.ID]; ok {
				out[n.ID] = o
			}
		}
	}
	return out
}

// coordSink fans the Node Executor's side effects out to the store and
// the emitter.
type coordSink struct {
	store   store.Store
	emitter emit.Emitter
}

func (s *coordSink) NodeStarted(ctx context.Context, executionID, nodeID string, input map[string]any) error {
	_, existed, err := s.store.GetNodeExecution(ctx, executionID, nodeID)
	if err != nil {
		return err
	}
	if !existed {
		now := time.Now().UTC()
		return s.store.CreateNodeExecution(ctx, workflow.NodeExecution{
			ID:          executionID + "/" + nodeID,
			ExecutionID: executionID,
			NodeID:      nodeID,
			Status:      workflow.NodeRunning,
			StartedAt:   &now,
			Input:       input,
		})
	}
	return s.store.UpdateNodeExecutionStatus(ctx, executionID, nodeID, workflow.NodeRunning, 0)
}

func (s *coordSink) SetNodeExecutionStatus(ctx context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int, output map[string]any, execErr *workflow.Error) error {
	return s.store.SetNodeExecutionStatus(ctx, executionID, nodeID, status, attempts, output, execErr)
}

func (s *coordSink) AppendLogEvent(ctx context.Context, event workflow.LogEvent) {
	s.store.AppendLogEvent(ctx, event)
	s.emitter.Emit(event)
}

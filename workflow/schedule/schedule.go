// Package schedule implements the DAG runner: a ready-set/frontier
// scheduler that dispatches up to maxInFlight nodes
// concurrently, composing each node's input from its upstream outputs and
// advancing children only once every parent has completed.
package schedule

import (
	"container/heap"
	"context"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/exec"
)

// readyHeap is a min-heap of node ids, giving the scheduler's ready set
// a deterministic pop order (ascending id) so reruns dispatch in the
// same order.
type readyHeap []string

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h readyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x interface{}) { *h = append(*h, x.(string)) }
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Config tunes the scheduler.
type Config struct {
	MaxInFlight int
}

// DefaultConfig caps in-flight nodes at 4: enough for independent
// branches to run concurrently without unbounded fan-out on a single
// worker.
func DefaultConfig() Config {
	return Config{MaxInFlight: 4}
}

// Result is the outcome of driving one Workflow to completion for one
// Execution.
type Result struct {
	Outputs map[string]map[string]any // nodeID -> output
	Paused  map[string]bool           // nodeID -> true if the node hit a pause record
	Skipped map[string]bool           // nodeID -> true if never scheduled (paused ancestor)
	Failed  *workflow.Error           // first fatal error, nil on success
	Status  workflow.ExecutionStatus
}

// Scheduler drives one Workflow's nodes to completion via
// exec.Executor.
type Scheduler struct {
	cfg Config
	exc *exec.Executor
}

// New returns a Scheduler.
func New(cfg Config, executor *exec.Executor) *Scheduler {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &Scheduler{cfg: cfg, exc: executor}
}

// nodeState tracks one node's position in the DAG run.
type nodeState struct {
	node             workflow.Node
	remainingParents int
	incoming         []workflow.Edge
}

// completion is one finished dispatch, reported back to the run loop.
type completion struct {
	nodeID string
	output map[string]any
	err    error
}

// Run drives wf to completion for executionID, honoring ctx's
// cancellation at every dispatch and completion-wait boundary.
//
// The run loop owns the ready heap, the outputs map, and every
// nodeState; dispatched goroutines only execute the node and report a
// completion, so no cross-goroutine aliasing of scheduler state exists
// and output maps never alias between concurrent nodes.
func (s *Scheduler) Run(ctx context.Context, executionID string, wf workflow.Workflow) Result {
	states := make(map[string]*nodeState, len(wf.Nodes))
	for _, n := range wf.Nodes {
		states[n.ID] = &nodeState{node: n, incoming: wf.Incoming(n.ID)}
	}
	for _, e := range wf.Edges {
		states[e.Target].remainingParents++
	}

	ready := &readyHeap{}
	heap.Init(ready)
	for _, n := range wf.Nodes {
		if states[n.ID].remainingParents == 0 {
			heap.Push(ready, n.ID)
		}
	}

	outputs := make(map[string]map[string]any, len(wf.Nodes))
	paused := make(map[string]bool)
	skipped := make(map[string]bool)
	var firstFatal *workflow.Error

	comps := make(chan completion)
	inFlight := 0
	cancelled := false

	for {
		// Dispatch from the ready set up to the in-flight cap, unless a
		// fatal error or cancellation has stopped new dispatches.
		for !cancelled && firstFatal == nil && inFlight < s.cfg.MaxInFlight && ready.Len() > 0 {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			nodeID := heap.Pop(ready).(string)
			st := states[nodeID]
			input := composeInput(st, outputs)
			inFlight++
			go func(node workflow.Node, input map[string]any) {
				out, err := s.exc.Run(ctx, executionID, node, input)
				comps <- completion{nodeID: node.ID, output: out, err: err}
			}(st.node, input)
		}

		if inFlight == 0 {
			break
		}

		if cancelled || firstFatal != nil {
			// No new dispatches; just drain what's still running.
			c := <-comps
			inFlight--
			s.handleCompletion(ctx, c, wf, states, ready, outputs, paused, skipped, &firstFatal, cancelled)
			continue
		}

		select {
		case c := <-comps:
			inFlight--
			s.handleCompletion(ctx, c, wf, states, ready, outputs, paused, skipped, &firstFatal, cancelled)
		case <-ctx.Done():
			cancelled = true
		}
	}

	status := workflow.ExecutionCompleted
	switch {
	case cancelled:
		status = workflow.ExecutionCancelled
	case firstFatal != nil:
		status = workflow.ExecutionFailed
	case len(paused) > 0:
		status = workflow.ExecutionPaused
	}

	return Result{Outputs: outputs, Paused: paused, Skipped: skipped, Failed: firstFatal, Status: status}
}

// handleCompletion folds one finished dispatch back into the run loop's
// state: a success unlocks children, a pause strands the node's subtree,
// a failure records the first fatal error — ties between concurrent
// failures resolve by completion time, which is exactly arrival order on
// the completion channel.
func (s *Scheduler) handleCompletion(ctx context.Context, c completion, wf workflow.Workflow, states map[string]*nodeState, ready *readyHeap, outputs map[string]map[string]any, paused, skipped map[string]bool, firstFatal **workflow.Error, cancelled bool) {
	switch {
	case c.err == exec.ErrPaused:
		paused[c.nodeID] = true
		markDescendantsSkipped(c.nodeID, wf, skipped)
	case c.err != nil:
		engErr, ok := c.err.(*workflow.Error)
		if !ok {
			engErr = workflow.Wrap(workflow.KindExecution, c.nodeID, c.err)
		}
		// A node reporting CANCELLED because the execution itself is
		// being cancelled is part of the drain, not a fatal failure.
		if engErr.Kind == workflow.KindCancelled && (cancelled || ctx.Err() != nil) {
			return
		}
		if *firstFatal == nil {
			*firstFatal = engErr
		}
	default:
		outputs[c.nodeID] = c.output
		for _, e := range wf.Outgoing(c.nodeID) {
			child := states[e.Target]
			child.remainingParents--
			if child.remainingParents == 0 {
				heap.Push(ready, e.Target)
			}
		}
	}
}

// composeInput assembles a node's input map from the outputs already
// produced by its incoming edges.
func composeInput(st *nodeState, outputs map[string]map[string]any) map[string]any {
	input := make(map[string]any)
	for _, e := range st.incoming {
		upstream := outputs[e.Source]
		if upstream == nil {
			continue
		}
		if e.SourceHandle == "" {
			for k, v := range upstream {
				input[k] = v
			}
			continue
		}
		if v, ok := upstream[e.SourceHandle]; ok {
			key := e.TargetHandle
			if key == "" {
				key = e.SourceHandle
			}
			input[key] = v
		}
	}
	return input
}

// markDescendantsSkipped marks every node reachable from nodeID (exclusive)
// as skipped, since a paused node's children are never scheduled.
func markDescendantsSkipped(nodeID string, wf workflow.Workflow, skipped map[string]bool) {
	queue := []string{nodeID}
	visited := map[string]bool{nodeID: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range wf.Outgoing(cur) {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			skipped[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
}

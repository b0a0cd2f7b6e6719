// Package exec implements the Node Executor: the seven-step pipeline
// (pause check, template resolution, input validation, timeout-wrapped
// dispatch, retry with backoff, output validation, persistence) that runs
// for one (execution, node) pair.
package exec

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/handler"
	"github.com/flowruntime/engine/workflow/template"
)

// ErrPaused is returned by Run when step 1's pause check finds a pause
// record for the node; the Scheduler must treat this distinctly from
// both success and failure: a paused node strands only its own subtree
// while sibling branches continue.
var ErrPaused = errors.New("node is paused")

// recoverablePatterns is the case-insensitive substring list the retry
// classifier matches errors against.
var recoverablePatterns = []string{
	"timeout",
	"network error",
	"connection refused",
	"rate limit",
	"too many requests",
	"nonce too low",
	"replacement transaction underpriced",
	"already known",
	"gas price too low",
	"insufficient funds for gas",
	"connection reset",
	"not found",
	"gateway timeout",
	"unknown transaction",
}

// IsRecoverable reports whether err matches one of the recoverable
// substrings. CIRCUIT_OPEN errors are never recoverable: an open breaker
// means retrying cannot help until the cooldown elapses.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if engErr, ok := err.(*workflow.Error); ok && engErr.Kind == workflow.KindCircuitOpen {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range recoverablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryPolicy configures the retry step of the pipeline.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the engine defaults: 3 attempts, 1s base
// delay, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// computeBackoff returns min(baseDelay * 2^(attempt-1), maxDelay) with
// ±20% jitter.
func computeBackoff(attempt int, policy RetryPolicy, rng *rand.Rand) time.Duration {
	exp := policy.BaseDelay * (1 << uint(attempt-1))
	if policy.MaxDelay > 0 && exp > policy.MaxDelay {
		exp = policy.MaxDelay
	}
	jitterSpan := float64(exp) * 0.4 // ±20% == a 40%-wide window
	jitter := jitterSpan*rng.Float64() - jitterSpan/2
	result := time.Duration(float64(exp) + jitter)
	if result < 0 {
		result = 0
	}
	return result
}

// PauseChecker reports whether a pause record exists for (executionID,
// nodeID); checked before anything else runs for the node.
type PauseChecker interface {
	IsPaused(ctx context.Context, executionID, nodeID string) (bool, error)
}

// Sink receives the Node Executor's persistence and logging side effects.
// workflow/store.Store and workflow/emit.Emitter satisfy the respective
// halves; Coordinator wires both together when constructing an Executor.
type Sink interface {
	// NodeStarted records the row for (executionID, nodeID) as running
	// with its resolved input, creating the row on first dispatch.
	NodeStarted(ctx context.Context, executionID, nodeID string, input map[string]any) error
	SetNodeExecutionStatus(ctx context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int, output map[string]any, execErr *workflow.Error) error
	AppendLogEvent(ctx context.Context, event workflow.LogEvent)
}

// Config bundles the executor's tunables.
type Config struct {
	PerNodeTimeout time.Duration
	Retry          RetryPolicy
}

// DefaultConfig returns a 30s per-node timeout and the default retry
// policy.
func DefaultConfig() Config {
	return Config{PerNodeTimeout: 30 * time.Second, Retry: DefaultRetryPolicy()}
}

// Executor runs the Node Executor pipeline for one node at a time; it
// holds no per-execution state and is safe to share across concurrent
// Scheduler dispatches.
type Executor struct {
	cfg      Config
	registry *handler.Registry
	pauses   PauseChecker
	sink     Sink
	rngMu    sync.Mutex // guards rng across concurrent dispatches
	rng      *rand.Rand
}

// New returns an Executor.
func New(cfg Config, registry *handler.Registry, pauses PauseChecker, sink Sink) *Executor {
	return &Executor{
		cfg:      cfg,
		registry: registry,
		pauses:   pauses,
		sink:     sink,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes node within executionID against the assembled input map
// (already the composition of every incoming edge's source output),
// returning the node's produced output.
func (e *Executor) Run(ctx context.Context, executionID string, node workflow.Node, input map[string]any) (map[string]any, error) {
	// Step 1: pause check.
	if e.pauses != nil {
		paused, err := e.pauses.IsPaused(ctx, executionID, node.ID)
		if err != nil {
			return nil, workflow.Wrap(workflow.KindPersistence, node.ID, err)
		}
		if paused {
			_ = e.sink.SetNodeExecutionStatus(ctx, executionID, node.ID, workflow.NodePaused, 0, nil, nil)
			return nil, ErrPaused
		}
	}

	h := e.registry.Handler(node.BlockType)
	schema := h.Schema()

	// Step 2: template resolution over config merged with assembled input.
	resolvedConfig, _ := template.Render(node.Config, input).(map[string]any)
	resolvedInput := mergeMaps(input, resolvedConfig)

	// Step 3: input schema validation.
	if err := validateSchema(schema.Inputs, resolvedInput, node.ID); err != nil {
		_ = e.sink.SetNodeExecutionStatus(ctx, executionID, node.ID, workflow.NodeFailed, 1, nil, err)
		return nil, err
	}

	if err := e.sink.NodeStarted(ctx, executionID, node.ID, resolvedInput); err != nil {
		return nil, workflow.Wrap(workflow.KindPersistence, node.ID, err)
	}

	hctx := handler.Context{
		ExecutionID: executionID,
		NodeID:      node.ID,
		Logger: func(level workflow.LogLevel, message string, data map[string]any) {
			e.sink.AppendLogEvent(ctx, workflow.LogEvent{
				ExecutionID: executionID,
				NodeID:      node.ID,
				Level:       level,
				Message:     message,
				Data:        data,
				Timestamp:   time.Now(),
			})
		},
	}

	attempts := 0
	maxAttempts := e.cfg.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var output map[string]any
	var lastErr *workflow.Error

retryLoop:
	for {
		attempts++

		// Step 4: timeout-wrapped dispatch.
		dispatchCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.PerNodeTimeout > 0 {
			dispatchCtx, cancel = context.WithTimeout(ctx, e.cfg.PerNodeTimeout)
		}
		attemptCtx := hctx
		attemptCtx.Attempt = attempts
		out, execErr := h.Execute(dispatchCtx, attemptCtx, node, resolvedInput)
		if cancel != nil {
			cancel()
		}

		if execErr == nil {
			output = out
			lastErr = nil
			break
		}

		if ctx.Err() != nil {
			lastErr = workflow.NewError(workflow.KindCancelled, node.ID, "execution cancelled")
			break
		}
		if dispatchCtx.Err() == context.DeadlineExceeded {
			lastErr = workflow.NewError(workflow.KindTimeout, node.ID, fmt.Sprintf("node exceeded timeout of %s", e.cfg.PerNodeTimeout))
		} else if asErr, ok := execErr.(*workflow.Error); ok {
			lastErr = asErr
		} else {
			lastErr = workflow.Wrap(workflow.KindExecution, node.ID, execErr)
		}

		// Step 5: retry policy.
		if attempts >= maxAttempts || !IsRecoverable(lastErr) {
			break
		}
		e.rngMu.Lock()
		delay := computeBackoff(attempts, e.cfg.Retry, e.rng)
		e.rngMu.Unlock()
		e.sink.AppendLogEvent(ctx, workflow.LogEvent{
			ExecutionID: executionID,
			NodeID:      node.ID,
			Level:       workflow.LevelWarn,
			Message:     "retrying node after recoverable error",
			Data: map[string]any{
				"attempt":     attempts,
				"maxAttempts": maxAttempts,
				"backoffMs":   delay.Milliseconds(),
				"error":       lastErr.Message,
			},
			Timestamp: time.Now(),
		})
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			lastErr = workflow.NewError(workflow.KindCancelled, node.ID, "execution cancelled during retry backoff")
			break retryLoop
		}
	}

	if lastErr != nil {
		_ = e.sink.SetNodeExecutionStatus(ctx, executionID, node.ID, workflow.NodeFailed, attempts, nil, lastErr)
		return nil, lastErr
	}

	// Step 6: output validation.
	if err := validateSchema(schema.Outputs, output, node.ID); err != nil {
		_ = e.sink.SetNodeExecutionStatus(ctx, executionID, node.ID, workflow.NodeFailed, attempts, nil, err)
		return nil, err
	}

	// Step 7: success.
	if err := e.sink.SetNodeExecutionStatus(ctx, executionID, node.ID, workflow.NodeSucceeded, attempts, output, nil); err != nil {
		return nil, workflow.Wrap(workflow.KindPersistence, node.ID, err)
	}
	return output, nil
}

// mergeMaps layers override on top of base, returning a new map. override
// wins on key collision.
func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// validateSchema checks fields against values: required fields must be
// present, typed fields must match.
func validateSchema(fields []workflow.Field, values map[string]any, nodeID string) *workflow.Error {
	for _, field := range fields {
		value, present := values[field.Name]
		if !present {
			if field.Required {
				return workflow.NewError(workflow.KindConfig, nodeID, "missing required field "+field.Name)
			}
			continue
		}
		if !matchesKind(value, field.Kind) {
			return workflow.NewError(workflow.KindConfig, nodeID, "field "+field.Name+" does not match declared type "+string(field.Kind))
		}
	}
	return nil
}

func matchesKind(value any, kind workflow.FieldKind) bool {
	if kind == workflow.KindAny {
		return true
	}
	switch kind {
	case workflow.KindNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case workflow.KindString:
		_, ok := value.(string)
		return ok
	case workflow.KindBoolean:
		_, ok := value.(bool)
		return ok
	case workflow.KindObject:
		_, ok := value.(map[string]any)
		return ok
	case workflow.KindArray:
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowruntime/engine/workflow"
)

// BlockRecorder persists one row per handler invocation attempt.
// workflow/store.Store satisfies it with the block_executions table.
type BlockRecorder interface {
	RecordBlockExecution(ctx context.Context, be workflow.BlockExecution) error
}

// Metrics records handler duration and outcome under the "flowengine"
// namespace.
type Metrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	recorder BlockRecorder
}

// NewMetrics registers handler metrics with registry (use
// prometheus.DefaultRegisterer for the global registry). recorder may be
// nil, in which case no block_executions rows are written.
func NewMetrics(registry prometheus.Registerer, recorder BlockRecorder) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		recorder: recorder,
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowengine",
			Name:      "handler_duration_seconds",
			Help:      "Handler execution duration in seconds, by block type.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		}, []string{"block_type"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "handler_outcomes_total",
			Help:      "Handler invocations, by block type and result.",
		}, []string{"block_type", "result"}),
	}
}

// Decorate wraps h so every invocation records duration/outcome metrics
// and emits a LogEvent for the start and end of the call, independent of
// whatever the inner handler logs itself.
func (m *Metrics) Decorate(blockType workflow.BlockType, h Handler) Handler {
	return &decoratedHandler{metrics: m, blockType: blockType, inner: h}
}

type decoratedHandler struct {
	metrics   *Metrics
	blockType workflow.BlockType
	inner     Handler
}

func (d *decoratedHandler) Schema() workflow.Schema {
	return d.inner.Schema()
}

func (d *decoratedHandler) Execute(ctx context.Context, hctx Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	d.emit(hctx, workflow.LevelDebug, "handler started", nil)
	start := time.Now()

	output, err := d.inner.Execute(ctx, hctx, node, input)

	elapsed := time.Since(start)
	result := "success"
	if err != nil {
		result = "failure"
	}
	if d.metrics != nil {
		d.metrics.duration.WithLabelValues(string(d.blockType)).Observe(elapsed.Seconds())
		d.metrics.outcomes.WithLabelValues(string(d.blockType), result).Inc()
		if d.metrics.recorder != nil {
			// Best-effort, same policy as log writes: an attempt-ledger
			// write failure never blocks execution.
			_ = d.metrics.recorder.RecordBlockExecution(ctx, workflow.BlockExecution{
				ID:          uuid.NewString(),
				ExecutionID: hctx.ExecutionID,
				NodeID:      hctx.NodeID,
				Attempt:     hctx.Attempt,
				BlockType:   d.blockType,
				Result:      result,
				DurationMs:  elapsed.Milliseconds(),
				CreatedAt:   time.Now().UTC(),
			})
		}
	}

	data := map[string]any{"durationMs": elapsed.Milliseconds(), "result": result}
	level := workflow.LevelDebug
	if err != nil {
		level = workflow.LevelError
		data["error"] = err.Error()
	}
	d.emit(hctx, level, "handler finished", data)

	return output, err
}

func (d *decoratedHandler) emit(hctx Context, level workflow.LogLevel, message string, data map[string]any) {
	if hctx.Logger != nil {
		hctx.Logger(level, message, data)
	}
}

package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/flowruntime/engine/workflow"
)

func recordingTracer(t *testing.T) (*tracetest.InMemoryExporter, *OTelEmitter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, NewOTelEmitter(tp.Tracer("test"))
}

func TestOTelEmitter_EmitCreatesSpanWithAttributes(t *testing.T) {
	exporter, emitter := recordingTracer(t)

	emitter.Emit(workflow.LogEvent{
		ExecutionID: "exec-001",
		NodeID:      "nodeA",
		Level:       workflow.LevelInfo,
		Message:     "handler started",
		Data:        map[string]any{"attempt": 1},
		Timestamp:   time.Now(),
		Sequence:    3,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "handler started" {
		t.Errorf("span name = %q", span.Name)
	}

	attrs := make(map[string]any, len(span.Attributes))
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["execution_id"] != "exec-001" {
		t.Errorf("execution_id = %v", attrs["execution_id"])
	}
	if attrs["node_id"] != "nodeA" {
		t.Errorf("node_id = %v", attrs["node_id"])
	}
	if attrs["sequence"] != int64(3) {
		t.Errorf("sequence = %v", attrs["sequence"])
	}
	if attrs["data.attempt"] != int64(1) {
		t.Errorf("data.attempt = %v", attrs["data.attempt"])
	}
}

func TestOTelEmitter_ErrorLevelSetsSpanStatus(t *testing.T) {
	exporter, emitter := recordingTracer(t)

	emitter.Emit(workflow.LogEvent{
		ExecutionID: "exec-001",
		NodeID:      "nodeA",
		Level:       workflow.LevelError,
		Message:     "handler finished",
		Data:        map[string]any{"error": "connection refused"},
		Timestamp:   time.Now(),
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "connection refused" {
		t.Errorf("description = %q", spans[0].Status.Description)
	}
}

func TestOTelEmitter_EmitBatchPreservesOrder(t *testing.T) {
	exporter, emitter := recordingTracer(t)

	events := []workflow.LogEvent{
		{ExecutionID: "exec-001", Message: "first", Level: workflow.LevelInfo},
		{ExecutionID: "exec-001", Message: "second", Level: workflow.LevelInfo},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatal(err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 || spans[0].Name != "first" || spans[1].Name != "second" {
		t.Errorf("unexpected spans: %v", spans)
	}
}

package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowruntime/engine/workflow"
)

// OTelEmitter turns each LogEvent into an OpenTelemetry span. Spans are
// point-in-time (created and immediately ended) since a LogEvent
// represents a log line, not a duration; handler timing is reported
// separately by the metrics decorator.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an Emitter that records spans via tracer (e.g.
// otel.Tracer("flowruntime-engine")).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event workflow.LogEvent) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Message)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("execution_id", event.ExecutionID),
		attribute.String("level", string(event.Level)),
		attribute.Int("sequence", event.Sequence),
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("node_id", event.NodeID))
	}
	span.SetAttributes(attrs...)
	span.SetAttributes(dataAttributes(event.Data)...)

	if event.Level == workflow.LevelError {
		msg := event.Message
		if e, ok := event.Data["error"].(string); ok {
			msg = e
		}
		span.SetStatus(codes.Error, msg)
		span.RecordError(fmt.Errorf("%s", msg))
	}
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []workflow.LogEvent) error {
	for _, event := range events {
		o.Emit(event)
	}
	return ctx.Err()
}

// Flush is a no-op: span export is owned by the configured
// sdktrace.TracerProvider's span processor, not by this emitter.
func (o *OTelEmitter) Flush(context.Context) error { return nil }

func dataAttributes(data map[string]any) []attribute.KeyValue {
	if len(data) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case string:
			attrs = append(attrs, attribute.String("data."+k, t))
		case bool:
			attrs = append(attrs, attribute.Bool("data."+k, t))
		case int:
			attrs = append(attrs, attribute.Int("data."+k, t))
		case int64:
			attrs = append(attrs, attribute.Int64("data."+k, t))
		case float64:
			attrs = append(attrs, attribute.Float64("data."+k, t))
		default:
			attrs = append(attrs, attribute.String("data."+k, fmt.Sprintf("%v", t)))
		}
	}
	return attrs
}

package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/flowruntime/engine/workflow"
)

// LogEmitter writes structured log output to a writer, in either
// human-readable text (key=value pairs, one LogEvent per line) or
// machine-readable JSONL, adapted from graph/emit/log.go's dual-mode
// design.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter returns a LogEmitter writing to writer (os.Stdout if nil)
// in text mode, or JSONL when jsonMode is true.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(event workflow.LogEvent) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event workflow.LogEvent) {
	data, err := json.Marshal(struct {
		ExecutionID string         `json:"executionId"`
		NodeID      string         `json:"nodeId,omitempty"`
		Level       string         `json:"level"`
		Message     string         `json:"message"`
		Data        map[string]any `json:"data,omitempty"`
		Timestamp   string         `json:"timestamp"`
		Sequence    int            `json:"sequence"`
	}{
		ExecutionID: event.ExecutionID,
		NodeID:      event.NodeID,
		Level:       string(event.Level),
		Message:     event.Message,
		Data:        event.Data,
		Timestamp:   event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Sequence:    event.Sequence,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event workflow.LogEvent) {
	_, _ = fmt.Fprintf(l.writer, "[%s] executionID=%s nodeID=%s %s",
		event.Level, event.ExecutionID, event.NodeID, event.Message)
	if len(event.Data) > 0 {
		if dataJSON, err := json.Marshal(event.Data); err == nil {
			_, _ = fmt.Fprintf(l.writer, " data=%s", dataJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " data=%v", event.Data)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes every event in order. LogEmitter has no internal
// buffering, so this is equivalent to calling Emit in a loop.
func (l *LogEmitter) EmitBatch(_ context.Context, events []workflow.LogEvent) error {
	for _, event := range events {
		l.Emit(event)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously. Wrap writer in a
// bufio.Writer and flush that directly if buffering is needed.
func (l *LogEmitter) Flush(_ context.Context) error {
	return nil
}

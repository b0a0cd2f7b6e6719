package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowruntime/engine/workflow"
)

// ScheduleHandler computes the next fire time from a standard 5-field
// cron expression and emits it as output. It does not re-enqueue the
// execution itself; periodic triggering belongs to the queue adapter's
// caller.
type ScheduleHandler struct {
	now func() time.Time
}

// NewScheduleHandler returns a ScheduleHandler. now may be nil, in which
// case time.Now is used; tests inject a fixed clock.
func NewScheduleHandler(now func() time.Time) *ScheduleHandler {
	if now == nil {
		now = time.Now
	}
	return &ScheduleHandler{now: now}
}

func (h *ScheduleHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "cron", Kind: workflow.KindString, Required: true},
		},
		Outputs: []workflow.Field{
			{Name: "nextRunAt", Kind: workflow.KindString},
			{Name: "cron", Kind: workflow.KindString},
		},
	}
}

func (h *ScheduleHandler) Execute(_ context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	expr, _ := input["cron"].(string)
	spec, err := parseCron(expr)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindConfig, hctx.NodeID, err)
	}
	next := spec.next(h.now().UTC())
	return map[string]any{
		"nextRunAt": next.Format(time.RFC3339),
		"cron":      expr,
	}, nil
}

// cronSpec is a parsed 5-field cron expression: minute hour day-of-month
// month day-of-week. Each field is a set of permitted values.
type cronSpec struct {
	minute, hour, dom, month, dow map[int]bool
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = []cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// parseCron accepts the `* */n a-b a,b,c` subset of cron syntax, which
// covers every schedule the UI authors.
func parseCron(expr string) (*cronSpec, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(parts))
	}
	sets := make([]map[int]bool, 5)
	for i, part := range parts {
		set, err := parseCronField(part, cronFields[i])
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}
	return &cronSpec{minute: sets[0], hour: sets[1], dom: sets[2], month: sets[3], dow: sets[4]}, nil
}

func parseCronField(part string, field cronField) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, piece := range strings.Split(part, ",") {
		step := 1
		if slash := strings.IndexByte(piece, '/'); slash >= 0 {
			n, err := strconv.Atoi(piece[slash+1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad step in %s field %q", field.name, part)
			}
			step = n
			piece = piece[:slash]
		}
		lo, hi := field.min, field.max
		switch {
		case piece == "*":
			// full range
		case strings.Contains(piece, "-"):
			bounds := strings.SplitN(piece, "-", 2)
			a, errA := strconv.Atoi(bounds[0])
			b, errB := strconv.Atoi(bounds[1])
			if errA != nil || errB != nil || a > b {
				return nil, fmt.Errorf("bad range in %s field %q", field.name, part)
			}
			lo, hi = a, b
		default:
			n, err := strconv.Atoi(piece)
			if err != nil {
				return nil, fmt.Errorf("bad value in %s field %q", field.name, part)
			}
			lo, hi = n, n
		}
		if lo < field.min || hi > field.max {
			return nil, fmt.Errorf("%s field %q out of range %d-%d", field.name, part, field.min, field.max)
		}
		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}
	return set, nil
}

// next returns the first time strictly after from that matches the spec.
// Scanning minute-by-minute is bounded by the four-year worst case of a
// Feb-29 schedule, which is still instant at one comparison per minute.
func (s *cronSpec) next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(5, 0, 0)
	for t.Before(limit) {
		if s.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return t
}

func (s *cronSpec) matches(t time.Time) bool {
	return s.minute[t.Minute()] &&
		s.hour[t.Hour()] &&
		s.dom[t.Day()] &&
		s.month[int(t.Month())] &&
		s.dow[int(t.Weekday())]
}

// DelayHandler sleeps for the configured duration, honoring cancellation.
type DelayHandler struct{}

// NewDelayHandler returns a DelayHandler.
func NewDelayHandler() *DelayHandler { return &DelayHandler{} }

func (DelayHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "duration", Kind: workflow.KindString, Required: true},
		},
		Outputs: []workflow.Field{
			{Name: "waited", Kind: workflow.KindString},
		},
	}
}

func (DelayHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	raw, _ := input["duration"].(string)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindConfig, hctx.NodeID, err)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{"waited": d.String()}, nil
}

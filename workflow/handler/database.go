package handler

import (
	"context"
	"database/sql"

	"github.com/flowruntime/engine/workflow"
)

// DatabaseHandler executes a parameterized query against a configured
// database/sql handle. The handle's driver (sqlite, pgx, mysql) is the
// deployment's choice; the query is passed to the driver unchanged, so it
// must use that driver's own placeholder style.
type DatabaseHandler struct {
	db *sql.DB
}

// NewDatabaseHandler returns a DatabaseHandler over db. A nil db makes
// every execution fail with CONFIG, so a deployment without a database
// can still register the block type and get a clean per-node error.
func NewDatabaseHandler(db *sql.DB) *DatabaseHandler {
	return &DatabaseHandler{db: db}
}

func (h *DatabaseHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "query", Kind: workflow.KindString, Required: true},
			{Name: "args", Kind: workflow.KindArray},
		},
		Outputs: []workflow.Field{
			{Name: "rows", Kind: workflow.KindArray},
			{Name: "rowCount", Kind: workflow.KindNumber},
		},
	}
}

func (h *DatabaseHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	if h.db == nil {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "no database configured for DATABASE blocks")
	}
	query, _ := input["query"].(string)
	args, _ := input["args"].([]any)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}

	var result []any
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeSQLValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}

	return map[string]any{"rows": result, "rowCount": float64(len(result))}, nil
}

// normalizeSQLValue converts driver-specific scan results into the
// JSON-shaped values the rest of the pipeline (templates, schemas,
// persistence) expects.
func normalizeSQLValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/flowruntime/engine/workflow"
)

// sqlSchema is the canonical table layout, shared verbatim by the SQLite
// and Postgres stores (modernc.org/sqlite and jackc/pgx/v5/stdlib accept
// the same portable DDL; the schema is applied on open). MySQL uses its
// own mysqlSchema variant.
const sqlSchema = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	nodes TEXT NOT NULL,
	edges TEXT NOT NULL,
	metadata TEXT
);
CREATE TABLE IF NOT EXISTS workflow_executions (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at BIGINT,
	completed_at BIGINT,
	trigger_source TEXT,
	initiator_id TEXT,
	result TEXT,
	last_error_kind TEXT,
	last_error_node TEXT,
	last_error_message TEXT
);
CREATE TABLE IF NOT EXISTS node_executions (
	execution_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	started_at BIGINT,
	completed_at BIGINT,
	input TEXT,
	output TEXT,
	error_kind TEXT,
	error_message TEXT,
	PRIMARY KEY (execution_id, node_id)
);
CREATE TABLE IF NOT EXISTS execution_logs (
	seq BIGINT NOT NULL,
	execution_id TEXT NOT NULL,
	node_id TEXT,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	data TEXT,
	timestamp BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS workflow_pauses (
	execution_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (execution_id, node_id)
);
CREATE TABLE IF NOT EXISTS circuit_breaker_state (
	key TEXT PRIMARY KEY,
	system TEXT NOT NULL,
	principal TEXT NOT NULL,
	operation TEXT NOT NULL,
	state TEXT NOT NULL,
	consecutive_failures INTEGER NOT NULL,
	opened_at BIGINT,
	last_success_at BIGINT
);
CREATE TABLE IF NOT EXISTS block_executions (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	block_type TEXT NOT NULL,
	result TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at BIGINT NOT NULL
);
`

// sqlStore implements Store against any database/sql driver speaking the
// dialect above. sqlite.go, postgres.go and mysql.go each provide the
// Open logic, the placeholder style (sqlite and mysql accept "?"; pgx
// requires "$1, $2, ...") and, for mysql, a schema override, and
// otherwise share every query in this file.
type sqlStore struct {
	db     *sql.DB
	ph     func(n int) string // nth bind parameter, 1-indexed
	seq    int64              // in-process log sequence counter, breaking same-timestamp ties per emitter
	schema string             // dialect DDL override; empty means sqlSchema
}

func (s *sqlStore) q(query string, argc int) string {
	if s.ph == nil {
		return query
	}
	// query contains argc '?' placeholders in order; rewrite them using s.ph.
	out := make([]byte, 0, len(query)+argc*2)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, s.ph(n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func marshal(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalInto[T any](raw sql.NullString, out *T) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), out)
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNullable(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func (s *sqlStore) init(ctx context.Context) error {
	ddl := s.schema
	if ddl == "" {
		ddl = sqlSchema
	}
	// One statement per Exec: MySQL rejects multi-statement strings by
	// default, and SQLite/Postgres don't mind.
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) CreateWorkflow(ctx context.Context, wf workflow.Workflow) error {
	nodes, err := marshal(wf.Nodes)
	if err != nil {
		return err
	}
	edges, err := marshal(wf.Edges)
	if err != nil {
		return err
	}
	meta, err := marshal(wf.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO workflows (id, version, nodes, edges, metadata) VALUES (?, ?, ?, ?, ?)`, 5),
		wf.ID, wf.Version, nodes, edges, meta)
	return err
}

func (s *sqlStore) UpdateWorkflow(ctx context.Context, wf workflow.Workflow) error {
	nodes, err := marshal(wf.Nodes)
	if err != nil {
		return err
	}
	edges, err := marshal(wf.Edges)
	if err != nil {
		return err
	}
	meta, err := marshal(wf.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE workflows SET version = ?, nodes = ?, edges = ?, metadata = ? WHERE id = ?`, 5),
		wf.Version, nodes, edges, meta, wf.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM workflows WHERE id = ?`, 1), id)
	return err
}

func (s *sqlStore) LoadWorkflow(ctx context.Context, id string) (workflow.Workflow, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, version, nodes, edges, metadata FROM workflows WHERE id = ?`, 1), id)
	var wf workflow.Workflow
	var nodes, edges, meta sql.NullString
	if err := row.Scan(&wf.ID, &wf.Version, &nodes, &edges, &meta); err != nil {
		if err == sql.ErrNoRows {
			return workflow.Workflow{}, ErrNotFound
		}
		return workflow.Workflow{}, err
	}
	if err := unmarshalInto(nodes, &wf.Nodes); err != nil {
		return workflow.Workflow{}, err
	}
	if err := unmarshalInto(edges, &wf.Edges); err != nil {
		return workflow.Workflow{}, err
	}
	if err := unmarshalInto(meta, &wf.Metadata); err != nil {
		return workflow.Workflow{}, err
	}
	return wf, nil
}

func (s *sqlStore) CreateExecution(ctx context.Context, e workflow.Execution) error {
	result, err := marshal(e.Result)
	if err != nil {
		return err
	}
	var kind, node, msg string
	if e.LastError != nil {
		kind, node, msg = string(e.LastError.Kind), e.LastError.NodeID, e.LastError.Message
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO workflow_executions
		(id, workflow_id, status, started_at, completed_at, trigger_source, initiator_id, result, last_error_kind, last_error_node, last_error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, 11),
		e.ID, e.WorkflowID, string(e.Status), nullableTime(e.StartedAt), nullableTime(e.CompletedAt),
		e.TriggerSource, e.InitiatorID, result, kind, node, msg)
	return err
}

func (s *sqlStore) GetExecution(ctx context.Context, id string) (workflow.Execution, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, workflow_id, status, started_at, completed_at,
		trigger_source, initiator_id, result, last_error_kind, last_error_node, last_error_message
		FROM workflow_executions WHERE id = ?`, 1), id)
	var e workflow.Execution
	var status string
	var started, completed sql.NullInt64
	var result sql.NullString
	var errKind, errNode, errMsg sql.NullString
	if err := row.Scan(&e.ID, &e.WorkflowID, &status, &started, &completed, &e.TriggerSource,
		&e.InitiatorID, &result, &errKind, &errNode, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return workflow.Execution{}, ErrNotFound
		}
		return workflow.Execution{}, err
	}
	e.Status = workflow.ExecutionStatus(status)
	e.StartedAt = timeFromNullable(started)
	e.CompletedAt = timeFromNullable(completed)
	if err := unmarshalInto(result, &e.Result); err != nil {
		return workflow.Execution{}, err
	}
	if errKind.Valid && errKind.String != "" {
		e.LastError = &workflow.Error{Kind: workflow.ErrorKind(errKind.String), NodeID: errNode.String, Message: errMsg.String}
	}
	return e, nil
}

func (s *sqlStore) UpdateExecutionStatus(ctx context.Context, id string, status workflow.ExecutionStatus, lastErr *workflow.Error) error {
	existing, err := s.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	if status == workflow.ExecutionRunning && existing.StartedAt == nil {
		existing.StartedAt = &now
	}
	if status.Terminal() {
		existing.CompletedAt = &now
	}
	var kind, node, msg string
	if lastErr != nil {
		kind, node, msg = string(lastErr.Kind), lastErr.NodeID, lastErr.Message
	} else if existing.LastError != nil {
		kind, node, msg = string(existing.LastError.Kind), existing.LastError.NodeID, existing.LastError.Message
	}
	_, err = s.db.ExecContext(ctx, s.q(`UPDATE workflow_executions SET status = ?, started_at = ?,
		completed_at = ?, last_error_kind = ?, last_error_node = ?, last_error_message = ? WHERE id = ?`, 7),
		string(status), nullableTime(existing.StartedAt), nullableTime(existing.CompletedAt), kind, node, msg, id)
	return err
}

func (s *sqlStore) SetExecutionResult(ctx context.Context, id string, result map[string]any) error {
	encoded, err := marshal(result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE workflow_executions SET result = ? WHERE id = ?`, 2), encoded, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListReadyExecutions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id FROM workflow_executions WHERE status IN (?, ?) ORDER BY id`, 2),
		string(workflow.ExecutionPending), string(workflow.ExecutionRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) CreateNodeExecution(ctx context.Context, ne workflow.NodeExecution) error {
	input, err := marshal(ne.Input)
	if err != nil {
		return err
	}
	output, err := marshal(ne.Output)
	if err != nil {
		return err
	}
	var errKind, errMsg string
	if ne.Error != nil {
		errKind, errMsg = string(ne.Error.Kind), ne.Error.Message
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO node_executions
		(execution_id, node_id, status, attempts, started_at, completed_at, input, output, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, 10),
		ne.ExecutionID, ne.NodeID, string(ne.Status), ne.Attempts, nullableTime(ne.StartedAt),
		nullableTime(ne.CompletedAt), input, output, errKind, errMsg)
	return err
}

func (s *sqlStore) scanNodeExecution(row *sql.Row) (workflow.NodeExecution, bool, error) {
	var ne workflow.NodeExecution
	var status string
	var started, completed sql.NullInt64
	var input, output sql.NullString
	var errKind, errMsg sql.NullString
	if err := row.Scan(&ne.ExecutionID, &ne.NodeID, &status, &ne.Attempts, &started, &completed,
		&input, &output, &errKind, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return workflow.NodeExecution{}, false, nil
		}
		return workflow.NodeExecution{}, false, err
	}
	ne.ID = ne.ExecutionID + "/" + ne.NodeID
	ne.Status = workflow.NodeExecutionStatus(status)
	ne.StartedAt = timeFromNullable(started)
	ne.CompletedAt = timeFromNullable(completed)
	if err := unmarshalInto(input, &ne.Input); err != nil {
		return workflow.NodeExecution{}, false, err
	}
	if err := unmarshalInto(output, &ne.Output); err != nil {
		return workflow.NodeExecution{}, false, err
	}
	if errKind.Valid && errKind.String != "" {
		ne.Error = &workflow.Error{Kind: workflow.ErrorKind(errKind.String), NodeID: ne.NodeID, Message: errMsg.String}
	}
	return ne, true, nil
}

func (s *sqlStore) GetNodeExecution(ctx context.Context, executionID, nodeID string) (workflow.NodeExecution, bool, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT execution_id, node_id, status, attempts, started_at, completed_at,
		input, output, error_kind, error_message FROM node_executions WHERE execution_id = ? AND node_id = ?`, 2),
		executionID, nodeID)
	return s.scanNodeExecution(row)
}

func (s *sqlStore) ListNodeExecutions(ctx context.Context, executionID string) ([]workflow.NodeExecution, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT execution_id, node_id, status, attempts, started_at, completed_at,
		input, output, error_kind, error_message FROM node_executions WHERE execution_id = ? ORDER BY node_id`, 1), executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.NodeExecution
	for rows.Next() {
		var ne workflow.NodeExecution
		var status string
		var started, completed sql.NullInt64
		var input, output sql.NullString
		var errKind, errMsg sql.NullString
		if err := rows.Scan(&ne.ExecutionID, &ne.NodeID, &status, &ne.Attempts, &started, &completed,
			&input, &output, &errKind, &errMsg); err != nil {
			return nil, err
		}
		ne.ID = ne.ExecutionID + "/" + ne.NodeID
		ne.Status = workflow.NodeExecutionStatus(status)
		ne.StartedAt = timeFromNullable(started)
		ne.CompletedAt = timeFromNullable(completed)
		if err := unmarshalInto(input, &ne.Input); err != nil {
			return nil, err
		}
		if err := unmarshalInto(output, &ne.Output); err != nil {
			return nil, err
		}
		if errKind.Valid && errKind.String != "" {
			ne.Error = &workflow.Error{Kind: workflow.ErrorKind(errKind.String), NodeID: ne.NodeID, Message: errMsg.String}
		}
		out = append(out, ne)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpdateNodeExecutionStatus(ctx context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE node_executions SET status = ?, attempts = ? WHERE execution_id = ? AND node_id = ?`, 4),
		string(status), attempts, executionID, nodeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.CreateNodeExecution(ctx, workflow.NodeExecution{ExecutionID: executionID, NodeID: nodeID, Status: status, Attempts: attempts})
	}
	return nil
}

func (s *sqlStore) SetNodeExecutionOutput(ctx context.Context, executionID, nodeID string, output map[string]any, execErr *workflow.Error) error {
	encoded, err := marshal(output)
	if err != nil {
		return err
	}
	var errKind, errMsg string
	if execErr != nil {
		errKind, errMsg = string(execErr.Kind), execErr.Message
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE node_executions SET output = ?, error_kind = ?, error_message = ?
		WHERE execution_id = ? AND node_id = ?`, 5), encoded, errKind, errMsg, executionID, nodeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) SetNodeExecutionStatus(ctx context.Context, executionID, nodeID string, status workflow.NodeExecutionStatus, attempts int, output map[string]any, execErr *workflow.Error) error {
	_, existed, err := s.GetNodeExecution(ctx, executionID, nodeID)
	if err != nil {
		return err
	}
	now := time.Now()
	var completed *time.Time
	if status == workflow.NodeSucceeded || status == workflow.NodeFailed || status == workflow.NodeSkipped {
		completed = &now
	}
	encoded, err := marshal(output)
	if err != nil {
		return err
	}
	var errKind, errMsg string
	if execErr != nil {
		errKind, errMsg = string(execErr.Kind), execErr.Message
	}
	if !existed {
		return s.CreateNodeExecution(ctx, workflow.NodeExecution{
			ExecutionID: executionID, NodeID: nodeID, Status: status, Attempts: attempts,
			StartedAt: &now, CompletedAt: completed, Output: output, Error: execErr,
		})
	}
	_, err = s.db.ExecContext(ctx, s.q(`UPDATE node_executions SET status = ?, attempts = ?, completed_at = ?,
		output = ?, error_kind = ?, error_message = ? WHERE execution_id = ? AND node_id = ?`, 8),
		string(status), attempts, nullableTime(completed), encoded, errKind, errMsg, executionID, nodeID)
	return err
}

func (s *sqlStore) AppendLogEvent(ctx context.Context, event workflow.LogEvent) {
	data, err := marshal(event.Data)
	if err != nil {
		return
	}
	seq := atomic.AddInt64(&s.seq, 1)
	// Best-effort: a persistence failure on a log event never blocks
	// execution — the error is simply dropped here.
	_, _ = s.db.ExecContext(ctx, s.q(`INSERT INTO execution_logs (seq, execution_id, node_id, level, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, 7),
		seq, event.ExecutionID, event.NodeID, string(event.Level), event.Message, data, event.Timestamp.UnixNano())
}

func (s *sqlStore) ListLogEvents(ctx context.Context, executionID string) ([]workflow.LogEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT seq, execution_id, node_id, level, message, data, timestamp
		FROM execution_logs WHERE execution_id = ? ORDER BY timestamp, seq`, 1), executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogEvents(rows)
}

func (s *sqlStore) ListNodeLogEvents(ctx context.Context, executionID, nodeID string) ([]workflow.LogEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT seq, execution_id, node_id, level, message, data, timestamp
		FROM execution_logs WHERE execution_id = ? AND node_id = ? ORDER BY timestamp, seq`, 2), executionID, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogEvents(rows)
}

func scanLogEvents(rows *sql.Rows) ([]workflow.LogEvent, error) {
	var out []workflow.LogEvent
	for rows.Next() {
		var e workflow.LogEvent
		var node sql.NullString
		var level, message string
		var data sql.NullString
		var ts int64
		if err := rows.Scan(&e.Sequence, &e.ExecutionID, &node, &level, &message, &data, &ts); err != nil {
			return nil, err
		}
		e.NodeID = node.String
		e.Level = workflow.LogLevel(level)
		e.Message = message
		e.Timestamp = time.Unix(0, ts).UTC()
		if err := unmarshalInto(data, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetPause(ctx context.Context, executionID, nodeID string) (workflow.Pause, bool, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT execution_id, node_id, created_at FROM workflow_pauses
		WHERE execution_id = ? AND node_id = ?`, 2), executionID, nodeID)
	var p workflow.Pause
	var created int64
	if err := row.Scan(&p.ExecutionID, &p.NodeID, &created); err != nil {
		if err == sql.ErrNoRows {
			return workflow.Pause{}, false, nil
		}
		return workflow.Pause{}, false, err
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, true, nil
}

func (s *sqlStore) IsPaused(ctx context.Context, executionID, nodeID string) (bool, error) {
	// An execution-wide pause (empty node id) covers every node.
	if _, ok, err := s.GetPause(ctx, executionID, ""); ok || err != nil {
		return ok, err
	}
	_, ok, err := s.GetPause(ctx, executionID, nodeID)
	return ok, err
}

func (s *sqlStore) SetPause(ctx context.Context, pause workflow.Pause) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM workflow_pauses WHERE execution_id = ? AND node_id = ?`, 2),
		pause.ExecutionID, pause.NodeID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO workflow_pauses (execution_id, node_id, created_at) VALUES (?, ?, ?)`, 3),
		pause.ExecutionID, pause.NodeID, pause.CreatedAt.UnixNano())
	return err
}

func (s *sqlStore) ClearPause(ctx context.Context, executionID, nodeID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM workflow_pauses WHERE execution_id = ? AND node_id = ?`, 2), executionID, nodeID)
	return err
}

func (s *sqlStore) LoadCircuitState(ctx context.Context, key string) (workflow.CircuitState, bool, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT system, principal, operation, state, consecutive_failures,
		opened_at, last_success_at FROM circuit_breaker_state WHERE key = ?`, 1), key)
	var cs workflow.CircuitState
	var state string
	var opened, lastSuccess sql.NullInt64
	if err := row.Scan(&cs.Scope.System, &cs.Scope.Principal, &cs.Operation, &state, &cs.ConsecutiveFailures, &opened, &lastSuccess); err != nil {
		if err == sql.ErrNoRows {
			return workflow.CircuitState{}, false, nil
		}
		return workflow.CircuitState{}, false, err
	}
	cs.State = workflow.CircuitFSMState(state)
	cs.OpenedAt = timeFromNullable(opened)
	cs.LastSuccessAt = timeFromNullable(lastSuccess)
	return cs, true, nil
}

func (s *sqlStore) SaveCircuitState(ctx context.Context, state workflow.CircuitState) error {
	key := state.Scope.Key(state.Operation)
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM circuit_breaker_state WHERE key = ?`, 1), key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO circuit_breaker_state
		(key, system, principal, operation, state, consecutive_failures, opened_at, last_success_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, 8),
		key, state.Scope.System, state.Scope.Principal, state.Operation, string(state.State),
		state.ConsecutiveFailures, nullableTime(state.OpenedAt), nullableTime(state.LastSuccessAt))
	return err
}

// RecordBlockExecution inserts one row per handler invocation attempt
// into block_executions: the per-attempt ledger the metrics decorator
// writes to, distinct from the single node_executions row per
// (execution, node).
func (s *sqlStore) RecordBlockExecution(ctx context.Context, be workflow.BlockExecution) error {
	created := be.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO block_executions
		(id, execution_id, node_id, attempt, block_type, result, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, 8),
		be.ID, be.ExecutionID, be.NodeID, be.Attempt, string(be.BlockType), be.Result, be.DurationMs, created.UnixNano())
	return err
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

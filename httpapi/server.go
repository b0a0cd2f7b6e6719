// Package httpapi exposes the engine's incoming HTTP surface: workflow
// CRUD, execution control, log queries, and a server-sent event stream
// per execution.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/coord"
	"github.com/flowruntime/engine/workflow/store"
)

// Server wires the HTTP routes to the store and the Coordinator.
type Server struct {
	echo  *echo.Echo
	store store.Store
	coord *coord.Coordinator
	hub   *Hub
}

// New returns a Server. hub may be nil when streaming is not wired.
func New(st store.Store, c *coord.Coordinator, hub *Hub) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, store: st, coord: c, hub: hub}

	e.POST("/workflows", s.createWorkflow)
	e.GET("/workflows/:id", s.getWorkflow)
	e.PUT("/workflows/:id", s.updateWorkflow)
	e.DELETE("/workflows/:id", s.deleteWorkflow)
	e.POST("/workflows/:id/execute", s.executeWorkflow)

	e.GET("/executions/node-logs", s.nodeLogs)
	e.GET("/executions/node-logs-by-node", s.nodeLogsByNode)
	e.GET("/executions/:id", s.getExecution)
	e.POST("/executions/:id/cancel", s.controlExecution)
	e.POST("/executions/:id/pause", s.controlExecution)
	e.POST("/executions/:id/resume", s.controlExecution)
	e.POST("/executions/:id/retry", s.controlExecution)
	e.GET("/executions/:id/stream", s.streamExecution)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Echo exposes the underlying router, for tests and embedding.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) createWorkflow(c echo.Context) error {
	var dto workflowDTO
	if err := c.Bind(&dto); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow body").SetInternal(err)
	}
	wf := toWorkflow(dto)
	if wf.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow id is required")
	}
	if err := s.store.CreateWorkflow(c.Request().Context(), wf); err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusCreated, fromWorkflow(wf))
}

func (s *Server) getWorkflow(c echo.Context) error {
	wf, err := s.store.LoadWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, fromWorkflow(wf))
}

func (s *Server) updateWorkflow(c echo.Context) error {
	var dto workflowDTO
	if err := c.Bind(&dto); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow body").SetInternal(err)
	}
	wf := toWorkflow(dto)
	wf.ID = c.Param("id")
	if err := s.store.UpdateWorkflow(c.Request().Context(), wf); err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, fromWorkflow(wf))
}

func (s *Server) deleteWorkflow(c echo.Context) error {
	if err := s.store.DeleteWorkflow(c.Request().Context(), c.Param("id")); err != nil {
		return notFoundOr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) executeWorkflow(c echo.Context) error {
	var body struct {
		TriggerSource string `json:"triggerSource"`
		InitiatorID   string `json:"initiatorId"`
	}
	_ = c.Bind(&body) // both fields optional
	if body.TriggerSource == "" {
		body.TriggerSource = "api"
	}

	executionID, violations, err := s.coord.Start(c.Request().Context(), c.Param("id"), body.TriggerSource, body.InitiatorID)
	if err != nil {
		return notFoundOr(err)
	}
	if len(violations) > 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{"violations": fromViolations(violations)})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"executionId": executionID})
}

func (s *Server) getExecution(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	execution, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return notFoundOr(err)
	}
	dto := fromExecution(execution)

	nodes, err := s.store.ListNodeExecutions(ctx, id)
	if err != nil {
		return internalError(err)
	}
	for _, ne := range nodes {
		dto.NodeExecutions = append(dto.NodeExecutions, fromNodeExecution(ne))
	}

	logs, err := s.store.ListLogEvents(ctx, id)
	if err != nil {
		return internalError(err)
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Timestamp.Before(logs[j].Timestamp) })
	const recentLogLimit = 100
	if len(logs) > recentLogLimit {
		logs = logs[len(logs)-recentLogLimit:]
	}
	for _, e := range logs {
		dto.RecentLogs = append(dto.RecentLogs, fromLogEvent(e))
	}

	return c.JSON(http.StatusOK, dto)
}

func (s *Server) controlExecution(c echo.Context) error {
	var body struct {
		NodeID string `json:"nodeId"`
	}
	_ = c.Bind(&body)

	ctx := c.Request().Context()
	id := c.Param("id")
	action := c.Path()[strings.LastIndexByte(c.Path(), '/')+1:]

	var err error
	switch action {
	case "cancel":
		err = s.coord.Cancel(ctx, id)
	case "pause":
		err = s.coord.Pause(ctx, id, body.NodeID)
	case "resume":
		err = s.coord.Resume(ctx, id, body.NodeID)
	case "retry":
		err = s.coord.Retry(ctx, id)
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown action")
	}
	if err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) nodeLogs(c echo.Context) error {
	nodeExecutionID := c.QueryParam("nodeExecutionId")
	// Node execution ids are the canonical "executionId/nodeId" pair.
	executionID, nodeID, ok := strings.Cut(nodeExecutionID, "/")
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "nodeExecutionId is required")
	}
	return s.respondNodeLogs(c, executionID, nodeID)
}

func (s *Server) nodeLogsByNode(c echo.Context) error {
	executionID := c.QueryParam("executionId")
	nodeID := c.QueryParam("nodeId")
	if executionID == "" || nodeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "executionId and nodeId are required")
	}
	return s.respondNodeLogs(c, executionID, nodeID)
}

func (s *Server) respondNodeLogs(c echo.Context, executionID, nodeID string) error {
	logs, err := s.store.ListNodeLogEvents(c.Request().Context(), executionID, nodeID)
	if err != nil {
		return internalError(err)
	}
	out := make([]logEventDTO, 0, len(logs))
	for _, e := range logs {
		out = append(out, fromLogEvent(e))
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": out})
}

// streamExecution serves server-sent events: a replay of the execution's
// persisted log so far, then live events from the Hub until the client
// disconnects or the execution reaches a terminal state.
func (s *Server) streamExecution(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, err := s.store.GetExecution(ctx, id); err != nil {
		return notFoundOr(err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	var live <-chan workflow.LogEvent
	cancelSub := func() {}
	if s.hub != nil {
		live, cancelSub = s.hub.Subscribe(id)
	}
	defer cancelSub()

	// Replay after subscribing so no event falls between replay and live.
	replay, err := s.store.ListLogEvents(ctx, id)
	if err != nil {
		return internalError(err)
	}
	sort.SliceStable(replay, func(i, j int) bool { return replay[i].Timestamp.Before(replay[j].Timestamp) })
	seen := make(map[string]bool, len(replay))
	for _, e := range replay {
		writeSSE(resp, e)
		seen[eventKey(e)] = true
	}
	flusher.Flush()

	if live == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-live:
			if seen[eventKey(e)] {
				continue
			}
			writeSSE(resp, e)
			flusher.Flush()
			if terminalTransition(e) {
				return nil
			}
		}
	}
}

func eventKey(e workflow.LogEvent) string {
	return fmt.Sprintf("%s/%s/%d/%d/%s", e.ExecutionID, e.NodeID, e.Timestamp.UnixNano(), e.Sequence, e.Message)
}

func terminalTransition(e workflow.LogEvent) bool {
	status, _ := e.Data["status"].(string)
	return workflow.ExecutionStatus(status).Terminal()
}

func writeSSE(resp *echo.Response, e workflow.LogEvent) {
	payload, err := json.Marshal(fromLogEvent(e))
	if err != nil {
		return
	}
	fmt.Fprintf(resp, "data: %s\n\n", payload)
}

func notFoundOr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return internalError(err)
}

func internalError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

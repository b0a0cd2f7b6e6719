package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/flowruntime/engine/workflow"
)

// HTTPHandler issues the node's configured HTTP request:
// method/url/headers/body in, statusCode/headers/body out. The standard
// client is all this needs; per-call timeouts come from the Node
// Executor's context.
type HTTPHandler struct {
	client *http.Client
}

// NewHTTPHandler returns an HTTPHandler using client, or http.DefaultClient
// if client is nil. Per-call timeout is enforced by the Node Executor's
// context, not by the client itself.
func NewHTTPHandler(client *http.Client) *HTTPHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHandler{client: client}
}

func (h *HTTPHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "url", Kind: workflow.KindString, Required: true},
			{Name: "method", Kind: workflow.KindString},
			{Name: "headers", Kind: workflow.KindObject},
			{Name: "body", Kind: workflow.KindString},
		},
		Outputs: []workflow.Field{
			{Name: "statusCode", Kind: workflow.KindNumber},
			{Name: "headers", Kind: workflow.KindObject},
			{Name: "body", Kind: workflow.KindString},
		},
	}
}

func (h *HTTPHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	urlStr, _ := input["url"].(string)
	if urlStr == "" {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "url is required")
	}
	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if b, ok := input["body"].(string); ok && b != "" {
		body = bytes.NewBufferString(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"statusCode": float64(resp.StatusCode),
		"headers":    respHeaders,
		"body":       string(respBody),
	}, nil
}

// WebhookHandler POSTs a JSON payload to a configured URL — the same
// request shape as HTTPHandler, fixed to POST with a JSON content type,
// matching the WEBHOOK block type's narrower contract.
type WebhookHandler struct {
	client *http.Client
}

// NewWebhookHandler returns a WebhookHandler using client, or
// http.DefaultClient if nil.
func NewWebhookHandler(client *http.Client) *WebhookHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookHandler{client: client}
}

func (w *WebhookHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "url", Kind: workflow.KindString, Required: true},
			{Name: "payload", Kind: workflow.KindAny},
		},
		Outputs: []workflow.Field{
			{Name: "statusCode", Kind: workflow.KindNumber},
			{Name: "body", Kind: workflow.KindString},
		},
	}
}

func (w *WebhookHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	urlStr, _ := input["url"].(string)
	if urlStr == "" {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "url is required")
	}
	payload := encodeJSON(input["payload"])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewBufferString(payload))
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}

	return map[string]any{"statusCode": float64(resp.StatusCode), "body": string(body)}, nil
}

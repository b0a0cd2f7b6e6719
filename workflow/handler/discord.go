package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/flowruntime/engine/workflow"
)

// DiscordHandler POSTs a Discord webhook payload. Delivery is just an
// HTTP POST with Discord's `{content, username?, embeds?}` body shape;
// everything channel-specific lives behind the webhook URL.
type DiscordHandler struct {
	client *http.Client
}

// NewDiscordHandler returns a DiscordHandler using client, or
// http.DefaultClient if nil.
func NewDiscordHandler(client *http.Client) *DiscordHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &DiscordHandler{client: client}
}

func (h *DiscordHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "webhookUrl", Kind: workflow.KindString, Required: true},
			{Name: "content", Kind: workflow.KindString, Required: true},
			{Name: "username", Kind: workflow.KindString},
		},
		Outputs: []workflow.Field{
			{Name: "delivered", Kind: workflow.KindBoolean},
			{Name: "statusCode", Kind: workflow.KindNumber},
		},
	}
}

func (h *DiscordHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	webhookURL, _ := input["webhookUrl"].(string)
	payload := map[string]any{"content": input["content"]}
	if username, ok := input["username"].(string); ok && username != "" {
		payload["username"] = username
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBufferString(encodeJSON(payload)))
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Discord returns 204 on success; 429 carries "rate limit" semantics
	// the retry classifier recognizes.
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, workflow.NewError(workflow.KindExecution, hctx.NodeID, "discord webhook rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		return nil, workflow.NewError(workflow.KindExecution, hctx.NodeID, fmt.Sprintf("discord webhook returned status %d", resp.StatusCode))
	}

	return map[string]any{"delivered": true, "statusCode": float64(resp.StatusCode)}, nil
}

package handler

import (
	"context"

	"github.com/flowruntime/engine/workflow"
)

// ChatRole identifies who authored a chat message.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatModel abstracts an LLM chat provider for the LLM_PROMPT block.
// Implementations handle provider authentication and message-format
// conversion, respect ctx cancellation, and surface rate-limit errors
// with messages the retry classifier can pattern-match ("rate limit",
// "too many requests").
type ChatModel interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}

// ChatModelFunc adapts a function to the ChatModel interface, mostly for
// tests.
type ChatModelFunc func(ctx context.Context, messages []ChatMessage) (string, error)

func (f ChatModelFunc) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	return f(ctx, messages)
}

// LLMPromptHandler renders a prompt (already template-resolved by the
// Node Executor) and calls the configured ChatModel.
type LLMPromptHandler struct {
	model ChatModel
}

// NewLLMPromptHandler returns an LLMPromptHandler over model. A nil
// model makes every execution fail with CONFIG so deployments without an
// LLM provider still register the block type cleanly.
func NewLLMPromptHandler(model ChatModel) *LLMPromptHandler {
	return &LLMPromptHandler{model: model}
}

func (h *LLMPromptHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "prompt", Kind: workflow.KindString, Required: true},
			{Name: "system", Kind: workflow.KindString},
		},
		Outputs: []workflow.Field{
			{Name: "text", Kind: workflow.KindString},
		},
	}
}

func (h *LLMPromptHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	if h.model == nil {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "no LLM provider configured for LLM_PROMPT blocks")
	}
	prompt, _ := input["prompt"].(string)

	var messages []ChatMessage
	if system, ok := input["system"].(string); ok && system != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: system})
	}
	messages = append(messages, ChatMessage{Role: RoleUser, Content: prompt})

	text, err := h.model.Chat(ctx, messages)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	return map[string]any{"text": text}, nil
}

package handler

import (
	"context"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicModel implements ChatModel over Anthropic's Messages API.
// Anthropic takes the system prompt as a separate request parameter, not
// a message role, so it is extracted before conversion.
type AnthropicModel struct {
	client    anthropicsdk.Client
	modelName string
	maxTokens int64
}

// NewAnthropicModel returns an AnthropicModel for modelName, or a default
// model when modelName is empty.
func NewAnthropicModel(apiKey, modelName string) *AnthropicModel {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicModel{
		client:    anthropicsdk.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: 4096,
	}
}

func (m *AnthropicModel) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	var system string
	var converted []anthropicsdk.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case RoleAssistant:
			converted = append(converted, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content)))
		default:
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content)))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(m.modelName),
		Messages:  converted,
		MaxTokens: m.maxTokens,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("anthropic response contained no text block")
}

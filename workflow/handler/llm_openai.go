package handler

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIModel implements ChatModel over OpenAI's chat completions API.
type OpenAIModel struct {
	client    openaisdk.Client
	modelName string
}

// NewOpenAIModel returns an OpenAIModel for modelName, or a default model
// when modelName is empty.
func NewOpenAIModel(apiKey, modelName string) *OpenAIModel {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &OpenAIModel{
		client:    openaisdk.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

func (m *OpenAIModel) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	converted := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			converted[i] = openaisdk.SystemMessage(msg.Content)
		case RoleAssistant:
			converted[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			converted[i] = openaisdk.UserMessage(msg.Content)
		}
	}

	resp, err := m.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.modelName),
		Messages: converted,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

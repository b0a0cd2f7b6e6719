package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleModel implements ChatModel over Google's Gemini API. Gemini takes
// the system prompt as a model-level SystemInstruction rather than a
// message role.
type GoogleModel struct {
	apiKey    string
	modelName string
}

// NewGoogleModel returns a GoogleModel for modelName, or a default model
// when modelName is empty.
func NewGoogleModel(apiKey, modelName string) *GoogleModel {
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}
	return &GoogleModel{apiKey: apiKey, modelName: modelName}
}

func (m *GoogleModel) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return "", fmt.Errorf("google client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(m.modelName)

	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}}
			continue
		}
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}

	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				return string(text), nil
			}
		}
	}
	return "", errors.New("gemini response contained no text part")
}

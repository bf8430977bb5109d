package backend

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quarryhq/quarry/internal/model"
)

const defaultMaxTokens = 4096

// OpenAIAdapter talks to any OpenAI-protocol chat endpoint. With a BaseURL
// override it also serves Grok and Gemini, which expose compatible APIs.
type OpenAIAdapter struct {
	name      string
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates an OpenAI-protocol adapter
func NewOpenAI(cfg model.BackendConfig) (*OpenAIAdapter, error) {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingAPIKey)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = openai.GPT4o
	}

	return &OpenAIAdapter{
		name:      name,
		client:    openai.NewClientWithConfig(clientConfig),
		model:     chatModel,
		maxTokens: maxTokens,
	}, nil
}

// Name returns the backend name
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Research runs one research call through the Chat Completions API
func (a *OpenAIAdapter) Research(ctx context.Context, query string, sources []model.Source) (*Result, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: ResearchSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildUserMessage(query, sources),
			},
		},
		MaxTokens:   a.maxTokens,
		Temperature: 0.2,
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", a.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty response", a.name)
	}

	return ParseResult(resp.Choices[0].Message.Content), nil
}

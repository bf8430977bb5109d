package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quarryhq/quarry/internal/model"
)

// AnthropicAdapter talks to the Anthropic Messages API
type AnthropicAdapter struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropic creates an Anthropic adapter
func NewAnthropic(cfg model.BackendConfig) (*AnthropicAdapter, error) {
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = "claude-3-5-sonnet-20241022"
	}

	return &AnthropicAdapter{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      chatModel,
		maxTokens:  maxTokens,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the backend name
func (a *AnthropicAdapter) Name() string {
	return a.name
}

// Research runs one research call through the Messages API
func (a *AnthropicAdapter) Research(ctx context.Context, query string, sources []model.Source) (*Result, error) {
	apiReq := anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    ResearchSystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: BuildUserMessage(query, sources)},
		},
		Temperature: 0.2,
	}

	resp, err := a.makeRequest(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", a.name, err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("%s: empty response", a.name)
	}

	return ParseResult(resp.Content[0].Text), nil
}

// makeRequest makes an HTTP request to the Anthropic API
func (a *AnthropicAdapter) makeRequest(ctx context.Context, apiReq anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s - %s", httpResp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}

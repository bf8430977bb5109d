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

// OllamaAdapter talks to a local Ollama instance. No API key needed.
type OllamaAdapter struct {
	name       string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Ollama API structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllama creates an Ollama adapter
func NewOllama(cfg model.BackendConfig) (*OllamaAdapter, error) {
	name := cfg.Name
	if name == "" {
		name = "ollama"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model must be specified (e.g., llama3.1:8b, mistral)", name)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &OllamaAdapter{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      cfg.Model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the backend name
func (a *OllamaAdapter) Name() string {
	return a.name
}

// Research runs one research call against the local model
func (a *OllamaAdapter) Research(ctx context.Context, query string, sources []model.Source) (*Result, error) {
	apiReq := ollamaRequest{
		Model:  a.model,
		Prompt: BuildUserMessage(query, sources),
		Stream: false,
		System: ResearchSystemPrompt,
		Options: ollamaOptions{
			Temperature: 0.2,
			NumPredict:  a.maxTokens,
		},
	}

	resp, err := a.makeRequest(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", a.name, err)
	}

	return ParseResult(resp.Response), nil
}

// makeRequest makes an HTTP request to the Ollama API
func (a *OllamaAdapter) makeRequest(ctx context.Context, apiReq ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}

package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quarryhq/quarry/internal/model"
)

// ErrMissingAPIKey marks a backend that is configured but has no credential.
// Callers usually skip such backends rather than abort startup.
var ErrMissingAPIKey = errors.New("API key is required")

// Default endpoints for OpenAI-protocol providers
const (
	grokBaseURL   = "https://api.x.ai/v1"
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// New creates a research adapter based on configuration
func New(cfg model.BackendConfig) (Adapter, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAI(cfg)

	case "grok", "xai":
		if cfg.BaseURL == "" {
			cfg.BaseURL = grokBaseURL
		}
		return NewOpenAI(cfg)

	case "gemini", "google":
		if cfg.BaseURL == "" {
			cfg.BaseURL = geminiBaseURL
		}
		return NewOpenAI(cfg)

	case "anthropic", "claude":
		return NewAnthropic(cfg)

	case "ollama":
		return NewOllama(cfg)

	case "":
		// No provider configured - backend disabled
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown backend provider: %s (supported: openai, anthropic, grok, gemini, ollama)", cfg.Provider)
	}
}

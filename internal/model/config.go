package model

import "time"

// Config is the complete Quarry configuration
type Config struct {
	Backends []BackendConfig `yaml:"backends" json:"backends"`
	Dispatch DispatchConfig  `yaml:"dispatch" json:"dispatch"`
	Synth    SynthConfig     `yaml:"synth" json:"synth"`
	Cache    CacheConfig     `yaml:"cache" json:"cache"`
	Server   ServerConfig    `yaml:"server" json:"server"`
	Store    StoreConfig     `yaml:"store" json:"store"`
}

// BackendConfig configures one research backend
type BackendConfig struct {
	Name      string  `yaml:"name" json:"name"`                               // Unique backend name within a session
	Provider  string  `yaml:"provider" json:"provider"`                       // openai, anthropic, grok, gemini, ollama
	Model     string  `yaml:"model,omitempty" json:"model,omitempty"`         // Provider-specific model name
	APIKey    string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`     // Usually supplied via environment
	BaseURL   string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`   // Custom endpoint override
	MaxTokens int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	RPS       float64 `yaml:"rps,omitempty" json:"rps,omitempty"`             // Requests per second, 0 disables limiting
	Burst     int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// DispatchConfig configures the fan-out
type DispatchConfig struct {
	BackendTimeout time.Duration `yaml:"backend_timeout" json:"backend_timeout"` // Per-backend deadline within a round
}

// SynthConfig configures claim synthesis
type SynthConfig struct {
	DupThreshold      float64 `yaml:"dup_threshold" json:"dup_threshold"`           // Token overlap at or above which texts merge
	ConflictThreshold float64 `yaml:"conflict_threshold" json:"conflict_threshold"` // Masked overlap at or above which texts conflict
	MaxClaimChars     int     `yaml:"max_claim_chars" json:"max_claim_chars"`       // Drafts longer than this are dropped
}

// CacheConfig configures the backend result cache
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	TTL             time.Duration `yaml:"ttl" json:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// ServerConfig configures the HTTP/WebSocket server
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	AllowedOrigin   string        `yaml:"allowed_origin" json:"allowed_origin"`
}

// StoreConfig configures session persistence
type StoreConfig struct {
	DBPath string `yaml:"db_path" json:"db_path"` // SQLite file, empty disables persistence
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backends: []BackendConfig{
			{Name: "openai", Provider: "openai", Model: "gpt-4o"},
			{Name: "anthropic", Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"},
			{Name: "grok", Provider: "grok", Model: "grok-2-latest"},
			{Name: "gemini", Provider: "gemini", Model: "gemini-2.0-flash"},
		},
		Dispatch: DispatchConfig{
			BackendTimeout: 120 * time.Second,
		},
		Synth: SynthConfig{
			DupThreshold:      0.7,
			ConflictThreshold: 0.9,
			MaxClaimChars:     2000,
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             15 * time.Minute,
			CleanupInterval: 30 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigin:   "*",
		},
		Store: StoreConfig{
			DBPath: "",
		},
	}
}

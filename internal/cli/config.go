package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/quarryhq/quarry/internal/model"
)

// loadConfig assembles the effective configuration: defaults, then the
// config file if one was found, then provider credentials from the
// standard environment variables.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv fills backend credentials from the environment. Keys set in the
// config file win, so a key can be pinned per backend.
func applyEnv(cfg *model.Config) {
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		switch b.Provider {
		case "openai":
			if b.APIKey == "" {
				b.APIKey = os.Getenv("OPENAI_API_KEY")
			}
		case "anthropic", "claude":
			if b.APIKey == "" {
				b.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			}
		case "grok", "xai":
			if b.APIKey == "" {
				b.APIKey = os.Getenv("XAI_API_KEY")
			}
		case "gemini", "google":
			if b.APIKey == "" {
				b.APIKey = os.Getenv("GOOGLE_API_KEY")
			}
		case "ollama":
			if b.BaseURL == "" {
				b.BaseURL = os.Getenv("OLLAMA_BASE_URL")
			}
		}
	}
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Quarry configuration",
	Long: `Manage Quarry configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (QUARRY_*, provider API keys)
3. Config file (~/.quarry/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after applying the config file and environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if path := viper.ConfigFileUsed(); path != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		// Credentials never get printed
		for i := range cfg.Backends {
			if cfg.Backends[i].APIKey != "" {
				cfg.Backends[i].APIKey = "[set]"
			}
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Println(string(yamlData))

		fmt.Println("Configuration hierarchy (highest to lowest priority):")
		fmt.Println("  1. CLI flags")
		fmt.Println("  2. Environment variables (QUARRY_*, OPENAI_API_KEY, ANTHROPIC_API_KEY, XAI_API_KEY, GOOGLE_API_KEY)")
		fmt.Println("  3. Config file (~/.quarry/config.yaml)")
		fmt.Println("  4. Defaults")

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.quarry/config.yaml with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := home + "/.quarry"
		configPath := configDir + "/config.yaml"

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'quarry config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		yamlData, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		var buf bytes.Buffer
		buf.WriteString("# Quarry Configuration File\n")
		buf.WriteString("#\n")
		buf.WriteString("# Configuration hierarchy (highest to lowest priority):\n")
		buf.WriteString("#   1. CLI flags\n")
		buf.WriteString("#   2. Environment variables (QUARRY_*)\n")
		buf.WriteString("#   3. This config file\n")
		buf.WriteString("#   4. Built-in defaults\n\n")
		buf.Write(yamlData)
		buf.WriteString("\n# API keys (recommended to use environment variables instead):\n")
		buf.WriteString("#   export OPENAI_API_KEY=sk-...\n")
		buf.WriteString("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
		buf.WriteString("#   export XAI_API_KEY=xai-...\n")
		buf.WriteString("#   export GOOGLE_API_KEY=...\n")
		buf.WriteString("#   export OLLAMA_BASE_URL=http://localhost:11434\n")

		if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("error writing config file: %w", err)
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  quarry config show\n")
		fmt.Printf("\nTo customize, edit the file with your preferred editor:\n")
		fmt.Printf("  $EDITOR %s\n", configPath)
		fmt.Printf("\n")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

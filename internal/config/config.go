// Package config holds chartflow configuration from .chartflow/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default models used when neither config nor flags specify one.
//
// Supported models by provider:
//   - gemini:    gemini-2.5-flash (generation default), gemini-2.5-pro (reflection default)
//   - openai:    gpt-4o, gpt-4o-mini
//   - anthropic: claude-sonnet-4-5-20250514, claude-3-5-sonnet-20241022
const (
	DefaultGenerationModel = "gemini-2.5-flash"
	DefaultReflectionModel = "gemini-2.5-pro"
)

// UserConfig holds ALL chartflow configuration from .chartflow/config.json.
// This is the single source of truth for configuration; environment
// variables override file values (see ApplyEnvOverrides).
type UserConfig struct {
	// Provider selection (gemini, openai, anthropic). When empty the
	// provider is inferred from the model identifier.
	Provider string `json:"provider,omitempty"`

	// API keys for each provider
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`

	// Model overrides for the two workflow passes
	GenerationModel string `json:"generation_model,omitempty"`
	ReflectionModel string `json:"reflection_model,omitempty"`

	// Workflow settings
	OutputDir      string `json:"output_dir,omitempty"`       // default ./charts
	CallTimeoutSec int    `json:"call_timeout_sec,omitempty"` // per-model-call timeout, default 60
	MaxModelCalls  int    `json:"max_model_calls,omitempty"`  // concurrent model call bound, default 4

	// Logging configuration (consumed by internal/logging)
	Logging *LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
	JSONFormat bool            `json:"json_format,omitempty"`
}

// DefaultUserConfigPath returns the path to .chartflow/config.json,
// anchored at the workspace root.
func DefaultUserConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return filepath.Join(".chartflow", "config.json")
	}
	return filepath.Join(root, ".chartflow", "config.json")
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .chartflow directory or a go.mod file.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".chartflow")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// LoadUserConfig loads configuration from the given path.
// A missing file is not an error; it yields an empty config.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := &UserConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

// Save writes the config back to disk, creating the directory if needed.
func (c *UserConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides layers environment variables over file values.
// Env always wins so CI and one-off runs can redirect credentials.
func (c *UserConfig) ApplyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.GeminiAPIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.OpenAIAPIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.AnthropicAPIKey = key
	}
	if model := os.Getenv("CHARTFLOW_GENERATION_MODEL"); model != "" {
		c.GenerationModel = model
	}
	if model := os.Getenv("CHARTFLOW_REFLECTION_MODEL"); model != "" {
		c.ReflectionModel = model
	}
	if dir := os.Getenv("CHARTFLOW_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
}

// APIKeyFor returns the configured key for a provider name.
func (c *UserConfig) APIKeyFor(provider string) string {
	switch provider {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return ""
}

// GetActiveProvider resolves the provider and key to use.
// Explicit provider selection wins; otherwise keys are checked in
// priority order gemini > openai > anthropic.
func (c *UserConfig) GetActiveProvider() (provider string, apiKey string) {
	if c.Provider != "" {
		if key := c.APIKeyFor(c.Provider); key != "" {
			return c.Provider, key
		}
	}

	if c.GeminiAPIKey != "" {
		return "gemini", c.GeminiAPIKey
	}
	if c.OpenAIAPIKey != "" {
		return "openai", c.OpenAIAPIKey
	}
	if c.AnthropicAPIKey != "" {
		return "anthropic", c.AnthropicAPIKey
	}

	return "", ""
}

// HasAnyCredential reports whether at least one provider key is set.
func (c *UserConfig) HasAnyCredential() bool {
	_, key := c.GetActiveProvider()
	return key != ""
}

// CallTimeout returns the per-model-call timeout.
func (c *UserConfig) CallTimeout() time.Duration {
	if c.CallTimeoutSec > 0 {
		return time.Duration(c.CallTimeoutSec) * time.Second
	}
	return 60 * time.Second
}

// ModelCallBound returns the concurrent model call limit.
func (c *UserConfig) ModelCallBound() int {
	if c.MaxModelCalls > 0 {
		return c.MaxModelCalls
	}
	return 4
}

// GetLogging returns the logging config with defaults applied.
func (c *UserConfig) GetLogging() LoggingConfig {
	if c.Logging != nil {
		return *c.Logging
	}
	return LoggingConfig{Level: "info"}
}

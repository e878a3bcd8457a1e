// Package config loads and saves the user's persistent settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the user's persistent preferences.
type Config struct {
	Provider    string `json:"provider,omitempty"`     // openai, anthropic, ollama, ...
	APIKey      string `json:"api_key,omitempty"`      // API key for the selected provider
	Model       string `json:"model,omitempty"`        // default model name
	BaseURL     string `json:"base_url,omitempty"`     // optional API base URL override
	SandboxMode string `json:"sandbox_mode,omitempty"` // docker, host or auto
	MemoryDir   string `json:"memory_dir,omitempty"`   // override for the episode store location
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a manager rooted at the user config directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "tern")}, nil
}

// NewManagerAt creates a manager rooted at an explicit directory.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// Dir returns the config directory, which also roots the session record
// store and the default memory location.
func (m *Manager) Dir() string {
	return m.configDir
}

// ConfigPath returns the absolute path to config.json.
func (m *Manager) ConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk. A missing file yields an
// empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration with owner-only permissions, since it
// may carry an API key.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.ConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists reports whether a config file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.ConfigPath())
	return !os.IsNotExist(err)
}

// ApplyToEnv exports the saved preferences as the environment variables
// the provider factory and sandbox read, without clobbering values the
// user already set.
func (c *Config) ApplyToEnv() {
	setIfUnset := func(key, value string) {
		if value != "" && os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	setIfUnset("LLM_PROVIDER", c.Provider)
	setIfUnset("TERN_SANDBOX_MODE", c.SandboxMode)

	if c.Provider == "" {
		return
	}
	if c.Provider == "anthropic" {
		setIfUnset("ANTHROPIC_API_KEY", c.APIKey)
		setIfUnset("ANTHROPIC_MODEL", c.Model)
		return
	}

	prefix := strings.ToUpper(c.Provider)
	setIfUnset(prefix+"_API_KEY", c.APIKey)
	setIfUnset(prefix+"_MODEL", c.Model)
	setIfUnset(prefix+"_BASE_URL", c.BaseURL)
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Defaults match a locally running gollm backend.
const (
	DefaultBaseURL  = "http://localhost:8080"
	DefaultProvider = "ollama"
	DefaultModel    = "llama3"
)

// Config holds the user's persistent preferences for the chat client.
type Config struct {
	BaseURL        string `json:"base_url,omitempty"`        // gollm backend address
	Provider       string `json:"provider,omitempty"`        // default chat provider
	Model          string `json:"model,omitempty"`           // default chat model
	StatePath      string `json:"state_path,omitempty"`      // sqlite session state
	LogPath        string `json:"log_path,omitempty"`        // rotating log file
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // non-streaming request timeout
}

// ApplyEnv overrides file values from the environment. A set variable wins
// over the file; an unset one leaves the value alone.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GOLLM_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("GOLLM_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("GOLLM_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("GOLLM_STATE_PATH"); v != "" {
		c.StatePath = v
	}
	if v := os.Getenv("GOLLM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutSeconds = n
		}
	}
}

// applyDefaults fills anything still unset.
func (c *Config) applyDefaults(configDir string) {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.StatePath == "" {
		c.StatePath = filepath.Join(configDir, "state.db")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(configDir, "gollm-chat.log")
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 120
	}
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted in the user config dir.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "gollm-chat")}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Dir returns the directory state and logs default into.
func (m *Manager) Dir() string {
	return m.configDir
}

// Load reads the configuration from disk, applies environment overrides and
// fills defaults. A missing file yields the defaults with no error.
func (m *Manager) Load() (*Config, error) {
	var cfg Config

	path := m.GetConfigPath()
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config json: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.applyDefaults(m.configDir)
	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Package config loads and validates the notebridge.json configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config represents the notebridge.json configuration file
type Config struct {
	Version       string `json:"version"`
	WorkspaceRoot string `json:"workspace_root"`
	Agent         Agent  `json:"agent"`
	Limits        Limits `json:"limits"`
}

// Agent contains the connection settings for the agent service
type Agent struct {
	Endpoint string `json:"endpoint"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// TimeoutS bounds answer submission and feedback posts, in seconds.
	// The event stream itself is never bounded by it.
	TimeoutS int `json:"timeout_s,omitempty"`
}

// Limits contains payload and pacing bounds
type Limits struct {
	// OutputMaxChars caps the output field of ok feedback
	OutputMaxChars int `json:"output_max_chars"`
	// ErrorMaxChars caps the error field of error feedback
	ErrorMaxChars int `json:"error_max_chars"`
	// RunReadyDelayMs is the pause between block creation and the run signal
	RunReadyDelayMs int `json:"run_ready_delay_ms"`
	// MessageMaxBytes caps a single NDJSON record on the stream
	MessageMaxBytes int `json:"message_max_bytes"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version:       "1.0",
		WorkspaceRoot: ".",
		Agent: Agent{
			Endpoint: "http://localhost:8787",
			TimeoutS: 30,
		},
		Limits: Limits{
			OutputMaxChars:  500,
			ErrorMaxChars:   300,
			RunReadyDelayMs: 150,
			MessageMaxBytes: 262144,
		},
	}
}

// Timeout returns the request timeout as a duration
func (a Agent) Timeout() time.Duration {
	return time.Duration(a.TimeoutS) * time.Second
}

// RunReadyDelay returns the run-ready pause as a duration
func (l Limits) RunReadyDelay() time.Duration {
	return time.Duration(l.RunReadyDelayMs) * time.Millisecond
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.Agent.Endpoint == "" {
		return fmt.Errorf("configuration error: missing required field 'agent.endpoint'\n\nHint: Point it at your agent service:\n  \"agent\": {\n    \"endpoint\": \"http://localhost:8787\"\n  }")
	}

	if c.Agent.TimeoutS < 0 {
		return fmt.Errorf("configuration error: invalid 'agent.timeout_s' value: %d\n\nHint: Use a positive number of seconds, or omit it for the default", c.Agent.TimeoutS)
	}

	if c.Limits.OutputMaxChars < 0 || c.Limits.ErrorMaxChars < 0 {
		return fmt.Errorf("configuration error: feedback limits must not be negative\n\nHint: Omit 'limits' entirely to use the defaults")
	}

	if c.Limits.RunReadyDelayMs < 0 {
		return fmt.Errorf("configuration error: invalid 'limits.run_ready_delay_ms' value: %d\n\nHint: Use zero or a small positive delay in milliseconds", c.Limits.RunReadyDelayMs)
	}

	return nil
}

// LoadFromFile loads a configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	// Write with 0600 permissions (owner read/write only)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

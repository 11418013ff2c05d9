// Package config loads service configuration from YAML with environment
// variable expansion. Defaults are applied in code so a minimal config file
// (or none at all, with env vars) is enough to start the service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Port int `yaml:"port"`

	Auth struct {
		// AccessSecret is the HMAC secret shared between the token issuer
		// and verifier. Both services must agree on it.
		AccessSecret string `yaml:"access_secret"`
		// AccessExpire is the token lifetime in seconds.
		AccessExpire int64 `yaml:"access_expire"`
		// IssuerEnabled exposes POST /api/auth/token for local development.
		IssuerEnabled bool `yaml:"issuer_enabled"`
	} `yaml:"auth"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Provider struct {
		// Name selects the model provider: anthropic, openai or ollama.
		Name    string `yaml:"name"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
		// TimeoutSeconds bounds a single provider call.
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"provider"`

	Agent struct {
		// MaxIterations caps planning/tool-dispatch cycles per turn.
		MaxIterations int `yaml:"max_iterations"`
		// MaxContext is the number of history messages loaded per turn.
		MaxContext int `yaml:"max_context"`
		// ToolTimeoutSeconds bounds a single tool invocation.
		ToolTimeoutSeconds int `yaml:"tool_timeout_seconds"`
	} `yaml:"agent"`

	Retention struct {
		// WindowHours is how long an inactive conversation is kept.
		WindowHours int `yaml:"window_hours"`
		// SweepIntervalMinutes is how often the sweeper runs.
		SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
	} `yaml:"retention"`

	Server struct {
		ReadTimeoutSeconds int   `yaml:"read_timeout_seconds"`
		MaxRequestBodySize int64 `yaml:"max_request_body_size"`
	} `yaml:"server"`
}

// Load reads the config file at path, expands ${ENV} references, and applies
// defaults. An empty path yields a default config driven by environment
// variables alone.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		c, err = LoadFromBytes(data)
		if err != nil {
			return c, err
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

// LoadFromBytes parses YAML bytes with environment variable expansion.
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// applyEnv fills unset fields from well-known environment variables.
func (c *Config) applyEnv() {
	if c.Auth.AccessSecret == "" {
		c.Auth.AccessSecret = os.Getenv("AUTH_ACCESS_SECRET")
	}
	if c.Provider.APIKey == "" {
		switch c.Provider.Name {
		case "openai":
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "":
			// Empty means the default provider, which is anthropic.
			c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = os.Getenv("SQLITE_PATH")
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Auth.AccessExpire == 0 {
		c.Auth.AccessExpire = 3600
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "./data/todo.db"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "anthropic"
	}
	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = 120
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.MaxContext == 0 {
		c.Agent.MaxContext = 50
	}
	if c.Agent.ToolTimeoutSeconds == 0 {
		c.Agent.ToolTimeoutSeconds = 30
	}
	if c.Retention.WindowHours == 0 {
		c.Retention.WindowHours = 48
	}
	if c.Retention.SweepIntervalMinutes == 0 {
		c.Retention.SweepIntervalMinutes = 60
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	if c.Server.MaxRequestBodySize == 0 {
		c.Server.MaxRequestBodySize = 1 << 20
	}
}

// AccessExpireDuration returns the token lifetime as a duration.
func (c Config) AccessExpireDuration() time.Duration {
	return time.Duration(c.Auth.AccessExpire) * time.Second
}

// SweepInterval returns how often the retention sweep runs.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepIntervalMinutes) * time.Minute
}

// RetentionWindow returns the conversation retention window.
func (c Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.WindowHours) * time.Hour
}

// ProviderTimeout returns the per-call provider timeout.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// ToolTimeout returns the per-invocation tool timeout.
func (c Config) ToolTimeout() time.Duration {
	return time.Duration(c.Agent.ToolTimeoutSeconds) * time.Second
}

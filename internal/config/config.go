package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/nidhogg/nuka-context/internal/window"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Window    *WindowConfig   `json:"window,omitempty"`
	Database  DatabaseConfig  `json:"database"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// WindowConfig mirrors window.Limits. Leave the section out to use the defaults.
type WindowConfig struct {
	MaxTokens           int `json:"max_tokens"`
	SoftLimitTokens     int `json:"soft_limit_tokens"`
	MinRetainedMessages int `json:"min_retained_messages"`
	MaxRetainedMessages int `json:"max_retained_messages"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// TelemetryConfig selects the Redis stream for retention events; empty uses telemetry.DefaultStream.
type TelemetryConfig struct {
	Stream string `json:"stream"`
}

// WindowLimits returns the configured limits, or nil when the window section is absent.
// The limits are not validated here; window.NewManager does that.
func (c *Config) WindowLimits() *window.Limits {
	if c.Window == nil {
		return nil
	}
	return &window.Limits{
		MaxTokens:           c.Window.MaxTokens,
		SoftLimitTokens:     c.Window.SoftLimitTokens,
		MinRetainedMessages: c.Window.MinRetainedMessages,
		MaxRetainedMessages: c.Window.MaxRetainedMessages,
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes JSON config bytes after environment substitution.
func Parse(data []byte) (*Config, error) {
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

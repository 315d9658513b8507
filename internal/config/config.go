// Package config provides configuration loading and structs for AutoScan.
//
// The file format is the JSON config.json of the browser UI; YAML is
// accepted as well since the parser is yaml.v3.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/notion"
	"gopkg.in/yaml.v3"
)

// ErrNotConfigured is returned when a service lacks usable credentials.
var ErrNotConfigured = errors.New("service not configured")

// Config holds all configuration for the application.
type Config struct {
	Debug  bool           `yaml:"debug"`
	Server ServerConfig   `yaml:"server"`
	Gemini ProviderConfig `yaml:"gemini"`
	OpenAI ProviderConfig `yaml:"openai"`
	Notion NotionConfig   `yaml:"notion"`
	Vertex VertexConfig   `yaml:"vertex"`
	LLM    LLMConfig      `yaml:"llm"`
	Watch  WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"staticDir"`
}

// Addr is host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProviderConfig is the credential block of one LLM provider.
type ProviderConfig struct {
	APIKey string    `yaml:"apiKey"`
	Model  string    `yaml:"model"`
	Agents AgentList `yaml:"agents"`
}

// NotionConfig identifies the target database.
type NotionConfig struct {
	Token         string               `yaml:"token"`
	DatabaseID    string               `yaml:"databaseId"`
	TitleProperty string               `yaml:"titleProperty"`
	Properties    notion.PropertyNames `yaml:"properties"`
}

// VertexConfig addresses the Discovery Engine agent.
type VertexConfig = llm.VertexConfig

// LLMConfig holds call defaults shared by every provider.
type LLMConfig struct {
	RetryAttempts  int           `yaml:"retryAttempts"`
	RetryBackoff   time.Duration `yaml:"retryBackoff"`
	Timeout        time.Duration `yaml:"timeout"`
	Temperature    *float64      `yaml:"temperature"`
	MaxTokens      int           `yaml:"maxTokens"`
	TargetLanguage string        `yaml:"targetLanguage"`
}

// WatchConfig holds inbox directory settings for "autoscan watch".
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Provider    string   `yaml:"provider"`
	Agent       string   `yaml:"agent"`
	Upload      bool     `yaml:"upload"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Parse decodes a JSON or YAML document and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	if cfg.Server.StaticDir != "" {
		cfg.Server.StaticDir = expandPath(cfg.Server.StaticDir, configDir)
	}
	if cfg.Vertex.CredentialsFile != "" {
		cfg.Vertex.CredentialsFile = expandPath(cfg.Vertex.CredentialsFile, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	return cfg, nil
}

// Save writes the config to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. "~/" paths are relative to the
// home directory; other relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}

func placeholder(v string) bool {
	return strings.TrimSpace(v) == "" || strings.Contains(v, "YOUR_")
}

// IsConfigured reports whether service ("gemini", "openai", "notion",
// "vertex") has real credentials. Keys still holding a YOUR_ placeholder
// count as missing.
func (c *Config) IsConfigured(service string) bool {
	switch service {
	case "gemini":
		return !placeholder(c.Gemini.APIKey) || c.Gemini.Agents.hasKey()
	case "openai":
		return !placeholder(c.OpenAI.APIKey) || c.OpenAI.Agents.hasKey()
	case "notion":
		return !placeholder(c.Notion.Token) && !placeholder(c.Notion.DatabaseID)
	case "vertex":
		return c.Vertex.Configured()
	}
	return false
}

// Require returns ErrNotConfigured wrapped with the service name when
// IsConfigured is false.
func (c *Config) Require(service string) error {
	if c.IsConfigured(service) {
		return nil
	}
	return fmt.Errorf("%s: %w", service, ErrNotConfigured)
}

// Provider returns the block for an LLM provider name.
func (c *Config) Provider(name llm.Provider) (ProviderConfig, bool) {
	switch name {
	case llm.ProviderGemini:
		return c.Gemini, true
	case llm.ProviderOpenAI:
		return c.OpenAI, true
	}
	return ProviderConfig{}, false
}

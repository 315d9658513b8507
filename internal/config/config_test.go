package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/autoscan/internal/llm"
)

const browserConfig = `{
  "gemini": {"apiKey": "g-key", "model": "gemini-1.5-pro"},
  "openai": {
    "apiKey": "YOUR_OPENAI_KEY",
    "agents": {
      "meeting": {"label": "AutoScan Meeting", "assistantId": "asst_123", "apiKey": "sk-agent"},
      "plain": {"label": "Chat"}
    }
  },
  "notion": {"token": "secret_abc", "databaseId": "db-1"}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_browserJSON(t *testing.T) {
	cfg, err := Load(writeFile(t, t.TempDir(), "config.json", browserConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gemini.APIKey != "g-key" || cfg.Gemini.Model != "gemini-1.5-pro" {
		t.Errorf("gemini = %+v", cfg.Gemini)
	}
	if cfg.Notion.DatabaseID != "db-1" {
		t.Errorf("notion = %+v", cfg.Notion)
	}
	if len(cfg.OpenAI.Agents) != 2 {
		t.Fatalf("agents = %+v", cfg.OpenAI.Agents)
	}
	a, ok := cfg.OpenAI.Agents.Find("meeting")
	if !ok || a.AssistantID != "asst_123" || !a.Structured() {
		t.Errorf("meeting agent = %+v, %v", a, ok)
	}
	if _, ok := cfg.OpenAI.Agents.Find("asst_123"); !ok {
		t.Error("agent should match by assistant id")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_yamlAgentList(t *testing.T) {
	content := `
gemini:
  apiKey: k
  agents:
    - agentKey: notes
      label: AutoScan Notes
      model: gemini-2.0-flash-exp
llm:
  timeout: 30s
  retryAttempts: 3
server:
  port: 9000
  staticDir: ./public
`
	dir := t.TempDir()
	cfg, err := Load(writeFile(t, dir, "config.yaml", content))
	if err != nil {
		t.Fatal(err)
	}
	if a, ok := cfg.Gemini.Agents.Find("notes"); !ok || a.Model != "gemini-2.0-flash-exp" {
		t.Errorf("agent = %+v, %v", a, ok)
	}
	if cfg.LLM.Timeout != 30*time.Second || cfg.LLM.RetryAttempts != 3 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Host != "localhost" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if want := filepath.Join(dir, "public"); cfg.Server.StaticDir != want {
		t.Errorf("staticDir = %q, want %q", cfg.Server.StaticDir, want)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.LLM.RetryAttempts != llm.DefaultRetryAttempts || cfg.LLM.RetryBackoff != llm.DefaultRetryBackoff {
		t.Errorf("retry = %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxTokens != 8192 || cfg.LLM.TargetLanguage != "zh-TW" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Notion.Properties.Status == "" || cfg.Notion.Properties.Title != "" {
		t.Errorf("properties = %+v", cfg.Notion.Properties)
	}
	if cfg.Watch.Recursive != nil {
		t.Error("recursive should stay nil without directories")
	}
	if cfg.Server.StaticDir != "." {
		t.Errorf("staticDir = %q, want .", cfg.Server.StaticDir)
	}
}

func TestParse_explicitZeroTemperature(t *testing.T) {
	cfg, err := Parse([]byte(`{"llm":{"temperature":0}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", cfg.LLM.Temperature)
	}
}

func TestIsConfigured(t *testing.T) {
	cfg, err := Parse([]byte(browserConfig))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		service string
		want    bool
	}{
		{"gemini", true},
		{"openai", true},
		{"notion", true},
		{"vertex", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			if got := cfg.IsConfigured(tt.service); got != tt.want {
				t.Errorf("IsConfigured(%q) = %v, want %v", tt.service, got, tt.want)
			}
		})
	}

	cfg.OpenAI.Agents = nil
	if err := cfg.Require("openai"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Require(openai) = %v, want ErrNotConfigured", err)
	}
}

func TestResolveAPIKey(t *testing.T) {
	cfg, err := Parse([]byte(browserConfig))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.OpenAI.ResolveAPIKey("meeting"); got != "sk-agent" {
		t.Errorf("agent key = %q", got)
	}
	if got := cfg.OpenAI.ResolveAPIKey("plain"); got != "" {
		t.Errorf("placeholder provider key should resolve empty, got %q", got)
	}
	if got := cfg.Gemini.ResolveAPIKey(""); got != "g-key" {
		t.Errorf("provider key = %q", got)
	}
}

func TestLoader_priority(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache", "config.yaml")
	filePath := writeFile(t, dir, "config.json", browserConfig)
	env := map[string]string{EnvVar: `{"gemini": {"apiKey": "from-env"}}`}
	l := &Loader{Path: filePath, CachePath: cachePath, Getenv: func(k string) string { return env[k] }}

	cfg, src, _, err := l.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if src != SourceEnv || cfg.Gemini.APIKey != "from-env" {
		t.Errorf("source = %s, key = %q", src, cfg.Gemini.APIKey)
	}

	delete(env, EnvVar)
	cfg, src, where, err := l.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if src != SourceFile || where != filePath || cfg.Gemini.APIKey != "g-key" {
		t.Errorf("source = %s (%s), key = %q", src, where, cfg.Gemini.APIKey)
	}

	l.Path = filepath.Join(dir, "missing.json")
	if _, _, _, err := l.Resolve(); err == nil {
		t.Error("explicit missing path should fail")
	}

	l.Path = ""
	wd, _ := os.Getwd()
	empty := t.TempDir()
	if err := os.Chdir(empty); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	cfg, src, _, err = l.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if src != SourceCache || cfg.Gemini.APIKey != "g-key" {
		t.Errorf("source = %s, key = %q", src, cfg.Gemini.APIKey)
	}

	l.CachePath = filepath.Join(dir, "none.yaml")
	if _, _, _, err := l.Resolve(); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	cfg, src, _, err = l.ResolveOrDefault()
	if err != nil {
		t.Fatalf("ResolveOrDefault: %v", err)
	}
	if src != SourceDefault || cfg.Server.Port != 3000 || cfg.Server.StaticDir != "." {
		t.Errorf("source = %s, server = %+v", src, cfg.Server)
	}

	l.Path = filepath.Join(dir, "missing.json")
	if _, _, _, err := l.ResolveOrDefault(); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("explicit missing path should still fail, got %v", err)
	}
}

func TestHolder(t *testing.T) {
	a, b := &Config{Debug: true}, &Config{}
	h := NewHolder(a)
	if h.Get() != a {
		t.Fatal("Get should return initial config")
	}
	h.Set(b)
	if h.Get() != b {
		t.Fatal("Get should return replaced config")
	}
}

package config

import (
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/notion"
)

// Default returns a config holding only default values.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = "."
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = llm.DefaultGeminiModel
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = llm.DefaultOpenAIModel
	}

	names := notion.DefaultPropertyNames()
	p := &cfg.Notion.Properties
	if p.Category == "" {
		p.Category = names.Category
	}
	if p.Project == "" {
		p.Project = names.Project
	}
	if p.Status == "" {
		p.Status = names.Status
	}
	if p.DueDate == "" {
		p.DueDate = names.DueDate
	}
	if p.CreatedAt == "" {
		p.CreatedAt = names.CreatedAt
	}
	// An empty title name means "detect from the database schema".
	if p.Title == "" {
		p.Title = cfg.Notion.TitleProperty
	}

	if cfg.Vertex.Location == "" {
		cfg.Vertex.Location = "global"
	}

	if cfg.LLM.RetryAttempts == 0 {
		cfg.LLM.RetryAttempts = llm.DefaultRetryAttempts
	}
	if cfg.LLM.RetryBackoff == 0 {
		cfg.LLM.RetryBackoff = llm.DefaultRetryBackoff
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = llm.DefaultTimeout
	}
	// Nil means unset; an explicit 0 is kept.
	if cfg.LLM.Temperature == nil {
		t := llm.DefaultTemperature
		cfg.LLM.Temperature = &t
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = llm.DefaultMaxTokens
	}
	if cfg.LLM.TargetLanguage == "" {
		cfg.LLM.TargetLanguage = llm.DefaultLanguage
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Watch.Provider == "" {
		cfg.Watch.Provider = string(llm.ProviderGemini)
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

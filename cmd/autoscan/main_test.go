package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/analysis"
	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/extract"
	"github.com/hyperjump/autoscan/internal/llm"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after file are moved first",
			args:     []string{"minutes.docx", "-output", "json"},
			expected: []string{"-output", "json", "minutes.docx"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "minutes.docx"},
			expected: []string{"-output", "json", "minutes.docx"},
		},
		{
			name:     "stdin dash is positional",
			args:     []string{"-"},
			expected: []string{"-"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"a", "b", "-upload"},
			expected: []string{"-upload", "a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReadItems(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"array", `["a", {"ToDo": "b"}]`, 2},
		{"report", `{"id": "r1", "items": [{"operation": "CREATE", "properties": {"ToDo": "c"}}]}`, 1},
		{"empty array", `[]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := readItems(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("readItems: %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("len = %d, want %d", len(items), tt.want)
			}
		})
	}
	if _, err := readItems(strings.NewReader("not json")); err == nil {
		t.Error("expected error for invalid input")
	}
}

type stubCaller struct {
	text string
}

func (s *stubCaller) Call(_ context.Context, _ string, opts llm.CallOptions) (*llm.Result, error) {
	return &llm.Result{Text: s.text, Model: opts.Model}, nil
}

func newTestComponents(t *testing.T, raw string, caller analysis.Caller) *Components {
	t.Helper()
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	holder := config.NewHolder(cfg)
	return &Components{
		Config:    holder,
		Analyzer:  analysis.NewService(holder, caller),
		Extractor: extract.NewExtractor(),
		Logger:    zap.NewNop(),
	}
}

func TestInboxProcessor(t *testing.T) {
	caller := &stubCaller{text: `[{"operation":"CREATE","properties":{"ToDo":"準備Q4簡報","狀態":"進行中"}}]`}
	c := newTestComponents(t, `{"gemini":{"apiKey":"g-key"}}`, caller)

	dir := t.TempDir()
	path := filepath.Join(dir, "minutes.txt")
	if err := os.WriteFile(path, []byte("會議紀錄：Amy 準備 Q4 簡報"), 0644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := c.inboxProcessor(&out)(context.Background(), path); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(out.String(), "[進行中] 準備Q4簡報") {
		t.Errorf("output = %q", out.String())
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.inboxProcessor(&out)(context.Background(), empty); err != nil {
		t.Errorf("empty file should be skipped, got %v", err)
	}
}

func TestUploadRequiresNotion(t *testing.T) {
	c := newTestComponents(t, `{"gemini":{"apiKey":"g-key"}}`, &stubCaller{})
	if _, err := c.upload(context.Background(), nil); err == nil {
		t.Error("expected not configured error")
	}
}

func TestReloader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":4000}}`), 0644); err != nil {
		t.Fatal(err)
	}
	loader := &config.Loader{Path: path, Getenv: func(string) string { return "" }}
	cfg, _, _, err := loader.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	holder := config.NewHolder(cfg)

	if err := os.WriteFile(path, []byte(`{"server":{"port":4001}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := reloader(loader, holder, zap.NewNop())(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := holder.Get().Server.Port; got != 4001 {
		t.Errorf("port = %d, want 4001", got)
	}
}

func TestNewLLMClient(t *testing.T) {
	cfg, err := config.Parse([]byte(`{"llm":{"retryAttempts":3}}`))
	if err != nil {
		t.Fatal(err)
	}
	if newLLMClient(cfg, zap.NewNop()) == nil {
		t.Fatal("nil client")
	}
}

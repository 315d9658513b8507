package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/models"
	"github.com/hyperjump/autoscan/internal/parser"
)

type fakeCaller struct {
	text  string
	err   error
	input string
	opts  llm.CallOptions
}

func (f *fakeCaller) Call(_ context.Context, text string, opts llm.CallOptions) (*llm.Result, error) {
	f.input, f.opts = text, opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Text: f.text, Provider: opts.Provider, Model: opts.Model, Usage: llm.Usage{TotalTokens: 42}}, nil
}

type fakeAgent struct {
	answer string
	query  llm.VertexQuery
}

func (f *fakeAgent) Query(_ context.Context, q llm.VertexQuery) (*llm.VertexAnswer, error) {
	f.query = q
	return &llm.VertexAnswer{Answer: f.answer}, nil
}

const testConfig = `{
  "gemini": {
    "apiKey": "g-key",
    "agents": [{"agentKey": "notes", "label": "AutoScan Notes", "model": "gemini-1.5-pro"}]
  },
  "openai": {
    "apiKey": "sk-main",
    "agents": {"meeting": {"label": "Meeting", "assistantId": "asst_9", "apiKey": "sk-agent"}}
  }
}`

var fixedNow = time.Date(2024, 10, 1, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T, caller Caller, opts ...Option) *Service {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(config.NewHolder(cfg), caller, opts...)
}

func TestAnalyze_structuredAgent(t *testing.T) {
	caller := &fakeCaller{text: "```json\n[{\"operation\":\"CREATE\",\"properties\":{\"ToDo\":\"準備Q4簡報\",\"狀態\":\"進行中\"}}]\n```"}
	s := newService(t, caller)

	rep, err := s.Analyze(context.Background(), Request{Text: "會議紀錄", Provider: llm.ProviderGemini, Agent: "notes"})
	require.NoError(t, err)
	require.Equal(t, ModeStructured, rep.Mode)
	require.Equal(t, parser.StageDirect, rep.Stage)
	require.Len(t, rep.Items, 1)
	require.True(t, rep.Items[0].IsStructured())
	require.Equal(t, "準備Q4簡報", rep.Items[0].Title())
	require.Equal(t, models.StatusInProgress, rep.Items[0].Fields.Status)
	require.NotEmpty(t, rep.ID)
	require.Equal(t, 42, rep.Usage.TotalTokens)

	require.Equal(t, "會議紀錄", caller.input)
	require.Equal(t, "gemini-1.5-pro", caller.opts.Model)
	require.Equal(t, "g-key", caller.opts.APIKey)
	require.Contains(t, caller.opts.SystemInstruction, "2024-10-01 09:30:00")
	require.Contains(t, caller.opts.SystemInstruction, "繁體中文")
}

func TestAnalyze_simple(t *testing.T) {
	caller := &fakeCaller{text: "1. 確認預算\n2. 寄送紀錄"}
	s := newService(t, caller)

	rep, err := s.Analyze(context.Background(), Request{Text: "notes", Provider: llm.ProviderGemini, TargetLanguage: "en"})
	require.NoError(t, err)
	require.Equal(t, ModeSimple, rep.Mode)
	require.Equal(t, parser.StageText, rep.Stage)
	require.Len(t, rep.Items, 2)
	require.Equal(t, "確認預算", rep.Items[0].Title())
	require.Empty(t, caller.opts.SystemInstruction)
	require.True(t, strings.HasSuffix(caller.input, "\n\nnotes"))
	require.Equal(t, llm.DefaultGeminiModel, caller.opts.Model)
}

func TestAnalyze_assistantAgent(t *testing.T) {
	caller := &fakeCaller{text: `[{"operation":"CREATE","properties":{"ToDo":"A"}}]`}
	s := newService(t, caller)

	rep, err := s.Analyze(context.Background(), Request{Text: "x", Provider: llm.ProviderOpenAI, Agent: "meeting"})
	require.NoError(t, err)
	require.Equal(t, ModeStructured, rep.Mode)
	require.True(t, caller.opts.UseAgent)
	require.Equal(t, "asst_9", caller.opts.AssistantID)
	require.Equal(t, "sk-agent", caller.opts.APIKey)
}

func TestAnalyze_errors(t *testing.T) {
	s := newService(t, &fakeCaller{})
	_, err := s.Analyze(context.Background(), Request{Text: "  ", Provider: llm.ProviderGemini})
	require.ErrorIs(t, err, ErrEmptyText)

	_, err = s.Analyze(context.Background(), Request{Text: "x", Provider: "claude"})
	require.True(t, llm.IsConfig(err))

	_, err = s.Analyze(context.Background(), Request{Text: "x", Provider: llm.ProviderVertex})
	require.True(t, llm.IsConfig(err))

	upstream := &llm.Error{Provider: "gemini", Kind: llm.KindPermanent, StatusCode: 400, Message: "bad"}
	s = newService(t, &fakeCaller{err: upstream})
	_, err = s.Analyze(context.Background(), Request{Text: "x", Provider: llm.ProviderGemini})
	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	require.Equal(t, 400, llmErr.StatusCode)
}

func TestAnalyze_vertexAgent(t *testing.T) {
	agent := &fakeAgent{answer: "請在週五前完成預算審核"}
	s := newService(t, &fakeCaller{}, WithAgent(agent))

	rep, err := s.Analyze(context.Background(), Request{Text: "預算?", Provider: llm.ProviderVertex})
	require.NoError(t, err)
	require.Equal(t, ModeAgent, rep.Mode)
	require.Equal(t, "預算?", agent.query.Query)
	require.Len(t, rep.Items, 1)
	f := rep.Items[0].Fields
	require.Equal(t, "請在週五前完成預算審核", f.Description)
	require.Equal(t, models.StatusNotStarted, f.Status)
	require.Equal(t, "2024-10-01 09:30:00", f.CreatedAt)
}

func TestSession(t *testing.T) {
	s := NewSession()
	s.SetTranscript("notes")
	s.Apply(&Report{ID: "r1", Items: []models.ActionItem{models.NewSimple("a")}})

	snap := s.Snapshot()
	require.Equal(t, "notes", snap.Transcript)
	require.Equal(t, "r1", snap.ReportID)
	require.Len(t, snap.Items, 1)

	snap.Items[0] = models.NewSimple("changed")
	require.Equal(t, "a", s.Snapshot().Items[0].Title())

	s.SetItems(nil)
	require.Empty(t, s.Snapshot().Items)
	s.SetTranscript("next")
	require.Empty(t, s.Snapshot().ReportID)
}

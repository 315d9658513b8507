// Package analysis runs one document through a model and the output parser.
package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/metrics"
	"github.com/hyperjump/autoscan/internal/models"
	"github.com/hyperjump/autoscan/internal/parser"
)

// ErrEmptyText is returned when there is nothing to analyze.
var ErrEmptyText = errors.New("text is empty")

// Mode is how the model output was requested and parsed.
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeSimple     Mode = "simple"
	ModeAgent      Mode = "agent"
)

// Caller sends a prompt to a chat provider.
type Caller interface {
	Call(ctx context.Context, text string, opts llm.CallOptions) (*llm.Result, error)
}

// AgentQuerier asks the hosted search agent.
type AgentQuerier interface {
	Query(ctx context.Context, q llm.VertexQuery) (*llm.VertexAnswer, error)
}

// Request is one analysis job. Agent names an entry of the provider's
// agents block; Model overrides the agent and provider model.
type Request struct {
	Text           string       `json:"text"`
	Provider       llm.Provider `json:"provider"`
	Agent          string       `json:"agent,omitempty"`
	Model          string       `json:"model,omitempty"`
	TargetLanguage string       `json:"targetLanguage,omitempty"`
	Structured     bool         `json:"structured,omitempty"`
	UseAgent       bool         `json:"useAgent,omitempty"`
}

// Report is the outcome of Analyze.
type Report struct {
	ID       string              `json:"id"`
	Provider llm.Provider        `json:"provider"`
	Model    string              `json:"model,omitempty"`
	Mode     Mode                `json:"mode"`
	Stage    parser.Stage        `json:"stage"`
	Items    []models.ActionItem `json:"items"`
	Usage    llm.Usage           `json:"usage"`
	Raw      string              `json:"raw,omitempty"`
}

// Service resolves providers and agents from config and parses the output.
type Service struct {
	config *config.Holder
	caller Caller
	agent  AgentQuerier
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAgent sets the Vertex agent; without it vertex requests fail as
// not configured.
func WithAgent(a AgentQuerier) Option {
	return func(s *Service) { s.agent = a }
}

// WithClock replaces time.Now for created-at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service reading the live config from holder.
func NewService(holder *config.Holder, caller Caller, opts ...Option) *Service {
	s := &Service{config: holder, caller: caller, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notConfigured(provider llm.Provider, msg string) error {
	return &llm.Error{Provider: string(provider), Kind: llm.KindConfig, Message: msg}
}

// Analyze sends req.Text to the selected provider and parses the reply.
// Structured mode is chosen by req.Structured or by an agent labelled
// AutoScan; OpenAI agents with an assistant id run through Assistants.
func (s *Service) Analyze(ctx context.Context, req Request) (*Report, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	cfg := s.config.Get()
	lang := req.TargetLanguage
	if lang == "" {
		lang = cfg.LLM.TargetLanguage
	}
	if req.Provider == "" {
		req.Provider = llm.ProviderGemini
	}
	if req.Provider == llm.ProviderVertex {
		return s.askAgent(ctx, req)
	}

	pc, ok := cfg.Provider(req.Provider)
	if !ok {
		return nil, notConfigured(req.Provider, "unsupported provider")
	}
	agent, hasAgent := pc.Agents.Find(req.Agent)
	opts := llm.CallOptions{
		Provider:       req.Provider,
		Model:          firstNonEmpty(req.Model, agent.Model, pc.Model),
		APIKey:         pc.ResolveAPIKey(req.Agent),
		TargetLanguage: lang,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
	}
	if req.Provider == llm.ProviderOpenAI && (req.UseAgent || agent.AssistantID != "") {
		opts.UseAgent = true
		opts.AssistantID = firstNonEmpty(agent.AssistantID, req.Agent)
	}

	mode := ModeSimple
	if req.Structured || (hasAgent && agent.Structured()) || opts.UseAgent {
		mode = ModeStructured
	}
	input := req.Text
	if mode == ModeStructured {
		opts.SystemInstruction = llm.StructuringInstruction(lang, s.now())
	} else {
		input = llm.SimplePrompt(req.Text, lang)
	}

	res, err := s.caller.Call(ctx, input, opts)
	if err != nil {
		return nil, err
	}
	var parsed parser.Result
	if mode == ModeStructured {
		parsed = parser.ParseStructuredOutput(res.Text)
	} else {
		parsed = parser.ParseSimpleOutput(res.Text)
	}
	return s.report(req.Provider, res.Model, mode, parsed, res.Usage), nil
}

func (s *Service) askAgent(ctx context.Context, req Request) (*Report, error) {
	if s.agent == nil {
		return nil, notConfigured(llm.ProviderVertex, "vertex agent is not configured")
	}
	ans, err := s.agent.Query(ctx, llm.VertexQuery{Query: req.Text})
	if err != nil {
		return nil, err
	}
	parsed := parser.ParseAgentAnswer(ans.Answer, s.now())
	return s.report(llm.ProviderVertex, "", ModeAgent, parsed, llm.Usage{}), nil
}

func (s *Service) report(provider llm.Provider, model string, mode Mode, parsed parser.Result, usage llm.Usage) *Report {
	metrics.IncrementParseStage(string(parsed.Stage))
	s.logger.Debug("parsed model output",
		zap.String("provider", string(provider)),
		zap.String("mode", string(mode)),
		zap.String("stage", string(parsed.Stage)),
		zap.Int("items", len(parsed.Items)),
		zap.Int("structured", models.CountStructured(parsed.Items)))
	items := parsed.Items
	if items == nil {
		items = []models.ActionItem{}
	}
	return &Report{
		ID:       uuid.NewString(),
		Provider: provider,
		Model:    model,
		Mode:     mode,
		Stage:    parsed.Stage,
		Items:    items,
		Usage:    usage,
		Raw:      parsed.Raw,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

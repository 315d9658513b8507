// Package llm calls the language model providers: Gemini, OpenAI chat
// completions and the OpenAI Assistants API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/metrics"
)

// Provider identifies a model vendor.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

const (
	DefaultGeminiModel = "gemini-2.0-flash-exp"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 8192
	DefaultTimeout     = 60 * time.Second

	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultOpenAIBaseURL = "https://api.openai.com"
)

// CallOptions selects the provider and model for one call.
type CallOptions struct {
	Provider          Provider
	Model             string
	APIKey            string
	SystemInstruction string
	TargetLanguage    string
	// Temperature is sent as is when set, including 0.
	Temperature *float64
	MaxTokens   int
	// UseAgent routes OpenAI calls through the Assistants API with AssistantID.
	UseAgent    bool
	AssistantID string
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the text a provider produced.
type Result struct {
	Text     string          `json:"text"`
	Usage    Usage           `json:"usage"`
	Provider Provider        `json:"provider"`
	Model    string          `json:"model"`
	Raw      json.RawMessage `json:"-"`
}

// Client sends prompts to the configured providers.
type Client struct {
	httpClient    *http.Client
	geminiBaseURL string
	openAIBaseURL string
	timeout       time.Duration
	retrier       *Retrier
	poller        Poller
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithGeminiBaseURL overrides the Gemini endpoint root.
func WithGeminiBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.geminiBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithOpenAIBaseURL overrides the OpenAI endpoint root.
func WithOpenAIBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.openAIBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetrier replaces the default retry policy.
func WithRetrier(r *Retrier) Option {
	return func(c *Client) {
		if r != nil {
			c.retrier = r
		}
	}
}

// WithPoller replaces the Assistants run poller.
func WithPoller(p Poller) Option {
	return func(c *Client) { c.poller = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a Client with the default endpoints, a 60s request
// timeout and two attempts per call.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{},
		geminiBaseURL: DefaultGeminiBaseURL,
		openAIBaseURL: DefaultOpenAIBaseURL,
		timeout:       DefaultTimeout,
		poller:        NewPoller(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		c.retrier = NewRetrier(c.logger)
	}
	return c
}

// Call sends text to the provider in opts and returns the model output.
func (c *Client) Call(ctx context.Context, text string, opts CallOptions) (*Result, error) {
	provider := string(opts.Provider)
	if provider == "" {
		return nil, configError("llm", "provider is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, configError(provider, "API key is not configured")
	}
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	opts.Temperature = &temperature
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	var call func(ctx context.Context) (*Result, error)
	switch opts.Provider {
	case ProviderGemini:
		if opts.Model == "" {
			opts.Model = DefaultGeminiModel
		}
		call = func(ctx context.Context) (*Result, error) { return c.callGemini(ctx, text, opts) }
	case ProviderOpenAI:
		if opts.UseAgent {
			if opts.AssistantID == "" {
				return nil, configError(provider, "assistant id is not configured")
			}
			call = func(ctx context.Context) (*Result, error) { return c.callAssistant(ctx, text, opts) }
			break
		}
		if opts.Model == "" {
			opts.Model = DefaultOpenAIModel
		}
		call = func(ctx context.Context) (*Result, error) { return c.callChat(ctx, text, opts) }
	default:
		return nil, configError(provider, "unsupported provider")
	}

	var res *Result
	err := c.retrier.Do(ctx, provider, func(ctx context.Context) error {
		r, err := call(ctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		c.logger.Error("model call failed", zap.String("provider", provider), zap.String("model", opts.Model), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("model call finished",
		zap.String("provider", provider),
		zap.String("model", res.Model),
		zap.Int("total_tokens", res.Usage.TotalTokens))
	return res, nil
}

// request describes one JSON exchange with a provider.
type request struct {
	provider string
	method   string
	url      string
	header   http.Header
	payload  any
}

// send performs req under the client timeout, classifies failures and
// returns the raw response body.
func (c *Client) send(ctx context.Context, req request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.payload != nil {
		buf, err := json.Marshal(req.payload)
		if err != nil {
			return nil, &Error{Provider: req.provider, Kind: KindPermanent, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(buf)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, &Error{Provider: req.provider, Kind: KindPermanent, Message: "build request", Err: err}
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordUpstreamRequest(req.provider, "error", time.Since(start))
		return nil, transportError(req.provider, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	metrics.RecordUpstreamRequest(req.provider, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, transportError(req.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(req.provider, resp.StatusCode, data)
	}
	return data, nil
}

func decode(provider string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Provider: provider, Kind: KindPermanent, Message: "decode response", Body: string(data), Err: err}
	}
	return nil
}

// upstreamMessage pulls a readable message out of a provider error body.
func upstreamMessage(body []byte, fallback string) string {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if len(parsed.Error) > 0 {
			if json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var s string
			if json.Unmarshal(parsed.Error, &s) == nil && s != "" {
				return s
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if fallback == "" {
		return "request failed"
	}
	return fmt.Sprintf("request failed: %s", fallback)
}

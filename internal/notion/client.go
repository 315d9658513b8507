// Package notion talks to the Notion API and decides whether an incoming
// action item updates an existing page or creates a new one.
package notion

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

const (
	// Version is sent as the Notion-Version header on every request.
	Version        = "2022-06-28"
	DefaultBaseURL = "https://api.notion.com"
	// DefaultTitleProperty is used when the database schema cannot be read.
	DefaultTitleProperty = "Name"
)

// APIError is a non-2xx Notion response. Body holds the raw payload.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("notion: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("notion: request failed (status %d)", e.StatusCode)
}

// Properties is an outgoing property set keyed by property name.
type Properties map[string]any

// Page is a Notion page as returned by query, create and update.
type Page struct {
	ID          string                     `json:"id"`
	URL         string                     `json:"url,omitempty"`
	CreatedTime string                     `json:"created_time,omitempty"`
	Properties  map[string]json.RawMessage `json:"properties,omitempty"`
	Raw         json.RawMessage            `json:"-"`
}

// PropertySchema is one column of a database.
type PropertySchema struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Database is the schema of a Notion database.
type Database struct {
	ID         string                    `json:"id"`
	Properties map[string]PropertySchema `json:"properties"`
	Raw        json.RawMessage           `json:"-"`
}

// Client is a minimal Notion REST client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client for token. A leading "Bearer " is accepted.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode notion request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", Version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("notion", "error", time.Since(start))
		return nil, fmt.Errorf("notion %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	metrics.RecordUpstreamRequest("notion", strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read notion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: data}
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &parsed) == nil {
			apiErr.Code, apiErr.Message = parsed.Code, parsed.Message
		}
		return nil, apiErr
	}
	return data, nil
}

func decodePage(data []byte) (*Page, error) {
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode notion page: %w", err)
	}
	p.Raw = json.RawMessage(data)
	return &p, nil
}

// GetDatabase reads the database schema.
func (c *Client) GetDatabase(ctx context.Context, databaseID string) (*Database, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/databases/"+databaseID, nil)
	if err != nil {
		return nil, err
	}
	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("decode notion database: %w", err)
	}
	db.Raw = json.RawMessage(data)
	return &db, nil
}

// TitlePropertyName returns the name of the title column of the database.
func (c *Client) TitlePropertyName(ctx context.Context, databaseID string) (string, error) {
	db, err := c.GetDatabase(ctx, databaseID)
	if err != nil {
		return "", err
	}
	for name, p := range db.Properties {
		if p.Type == "title" {
			return name, nil
		}
	}
	return DefaultTitleProperty, nil
}

// QueryRecent returns up to limit pages, newest first.
func (c *Client) QueryRecent(ctx context.Context, databaseID string, limit int) ([]Page, error) {
	payload := map[string]any{
		"page_size": limit,
		"sorts":     []map[string]string{{"timestamp": "created_time", "direction": "descending"}},
	}
	data, err := c.do(ctx, http.MethodPost, "/v1/databases/"+databaseID+"/query", payload)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Results []Page `json:"results"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode notion query: %w", err)
	}
	return parsed.Results, nil
}

// CreatePage inserts a page into the database. children may be nil.
func (c *Client) CreatePage(ctx context.Context, databaseID string, props Properties, children []json.RawMessage) (*Page, error) {
	payload := map[string]any{
		"parent":     map[string]string{"database_id": databaseID},
		"properties": props,
	}
	if len(children) > 0 {
		payload["children"] = children
	}
	data, err := c.do(ctx, http.MethodPost, "/v1/pages", payload)
	if err != nil {
		return nil, err
	}
	return decodePage(data)
}

// UpdatePage replaces the given properties of an existing page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, props Properties) (*Page, error) {
	data, err := c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, map[string]any{"properties": props})
	if err != nil {
		return nil, err
	}
	return decodePage(data)
}

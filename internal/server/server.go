// Package server provides the HTTP API and browser proxy for AutoScan.
package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/analysis"
	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/extract"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/notion"
)

// Analyzer runs the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Report, error)
}

// VertexAgent is the hosted agent behind /api/vertex-agent.
type VertexAgent interface {
	Query(ctx context.Context, q llm.VertexQuery) (*llm.VertexAnswer, error)
	Health(ctx context.Context) llm.VertexHealth
}

// NotionAPI is the Notion surface the handlers use.
type NotionAPI interface {
	notion.API
	GetDatabase(ctx context.Context, databaseID string) (*notion.Database, error)
}

// NotionFactory returns a client authorized with token.
type NotionFactory func(token string) NotionAPI

// Server is the HTTP server for AutoScan.
type Server struct {
	config    *config.Holder
	analyzer  Analyzer
	extractor *extract.Extractor
	agent     VertexAgent
	notion    NotionFactory
	openAI    *url.URL
	gemini    *url.URL
	logger    *zap.Logger
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVertexAgent enables the /api/vertex-agent routes.
func WithVertexAgent(a VertexAgent) Option {
	return func(s *Server) { s.agent = a }
}

// WithNotionFactory replaces how Notion clients are built.
func WithNotionFactory(f NotionFactory) Option {
	return func(s *Server) { s.notion = f }
}

// WithExtractor replaces the document extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(s *Server) { s.extractor = e }
}

// WithUpstreams points the vendor proxies at other base URLs.
func WithUpstreams(openAI, gemini string) Option {
	return func(s *Server) {
		if u, err := url.Parse(openAI); err == nil && openAI != "" {
			s.openAI = u
		}
		if u, err := url.Parse(gemini); err == nil && gemini != "" {
			s.gemini = u
		}
	}
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// NewServer creates a server reading the live config from holder.
func NewServer(holder *config.Holder, analyzer Analyzer, opts ...Option) *Server {
	s := &Server{
		config:    holder,
		analyzer:  analyzer,
		extractor: extract.NewExtractor(),
		openAI:    mustParse(llm.DefaultOpenAIBaseURL),
		gemini:    mustParse(llm.DefaultGeminiBaseURL),
		logger:    zap.NewNop(),
	}
	s.notion = func(token string) NotionAPI {
		return notion.NewClient(token, notion.WithLogger(s.logger))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Vendor responses are streamed through untouched.
	r.Group(func(r chi.Router) {
		openAI := s.vendorProxy("openai", s.openAI, s.injectOpenAIKey)
		r.Post("/api/openai/*", openAI)
		r.Get("/api/openai/*", openAI)
		r.Post("/api/gemini/*", s.vendorProxy("gemini", s.gemini, s.injectGeminiKey))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())

		r.Post("/api/analyze", s.handleAnalyze)
		r.Post("/api/extract", s.handleExtract)
		r.Post("/api/insights", s.handleInsights)

		r.Get("/api/notion/database/{id}", s.handleNotionDatabase)
		r.Post("/api/notion", s.handleNotionPage)
		r.Post("/api/notion/structured", s.handleNotionStructured)
		r.Post("/api/notion/upload", s.handleNotionUpload)

		r.Post("/api/vertex-agent/query", s.handleVertexQuery)
		r.Get("/api/vertex-agent/health", s.handleVertexHealth)

		if dir := s.config.Get().Server.StaticDir; dir != "" {
			r.Handle("/*", staticFiles(dir))
		}
	})
	return r
}

// staticFiles serves the browser app, config.json included, from dir.
// Dotfiles and dot directories are not served.
func staticFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, part := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(part, ".") {
				http.NotFound(w, r)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	cfg := s.config.Get().Server
	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server",
		zap.String("addr", cfg.Addr()),
		zap.String("url", "http://"+cfg.Addr()),
		zap.String("static_dir", cfg.StaticDir))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/analysis"
	"github.com/hyperjump/autoscan/internal/cli"
	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/extract"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/models"
	"github.com/hyperjump/autoscan/internal/notion"
	"github.com/hyperjump/autoscan/internal/watcher"
)

// Components holds the services shared by the commands.
type Components struct {
	Config    *config.Holder
	Client    *llm.Client
	Agent     *llm.VertexAgent
	Analyzer  *analysis.Service
	Extractor *extract.Extractor
	Logger    *zap.Logger
}

func newLLMClient(cfg *config.Config, logger *zap.Logger) *llm.Client {
	retrier := llm.NewRetrier(logger)
	if cfg.LLM.RetryAttempts > 0 {
		retrier.Attempts = cfg.LLM.RetryAttempts
	}
	if cfg.LLM.RetryBackoff > 0 {
		retrier.Backoff = cfg.LLM.RetryBackoff
	}
	return llm.NewClient(
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithRetrier(retrier),
		llm.WithLogger(logger),
	)
}

// initializeComponents builds the LLM client, the optional Vertex agent and
// the analysis service. A Vertex agent that cannot load credentials is
// logged and left out.
func initializeComponents(ctx context.Context, holder *config.Holder, logger *zap.Logger) *Components {
	cfg := holder.Get()
	c := &Components{
		Config:    holder,
		Client:    newLLMClient(cfg, logger),
		Extractor: extract.NewExtractor(),
		Logger:    logger,
	}
	opts := []analysis.Option{analysis.WithLogger(logger)}
	if cfg.IsConfigured("vertex") {
		agent, err := llm.NewVertexAgent(ctx, cfg.Vertex, llm.WithVertexLogger(logger))
		if err != nil {
			logger.Warn("vertex agent disabled", zap.Error(err))
		} else {
			c.Agent = agent
			opts = append(opts, analysis.WithAgent(agent))
		}
	}
	c.Analyzer = analysis.NewService(holder, c.Client, opts...)
	return c
}

// readInput returns the text of path, or of stdin when path is "-".
func (c *Components) readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		doc, err := c.Extractor.ExtractReader(stdin, "stdin.txt")
		if err != nil {
			return "", err
		}
		return doc.Text, nil
	}
	doc, err := c.Extractor.Extract(path)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

// uploader returns a Notion uploader for the configured database.
func (c *Components) uploader() (*notion.Uploader, error) {
	cfg := c.Config.Get()
	if err := cfg.Require("notion"); err != nil {
		return nil, err
	}
	client := notion.NewClient(cfg.Notion.Token, notion.WithLogger(c.Logger))
	return notion.NewUploader(client, cfg.Notion.DatabaseID, cfg.Notion.Properties, c.Logger), nil
}

// upload writes items to Notion. A partial failure is reported, not returned.
func (c *Components) upload(ctx context.Context, items []models.ActionItem) (*notion.BatchResult, error) {
	up, err := c.uploader()
	if err != nil {
		return nil, err
	}
	res, err := up.Upload(ctx, items)
	if err != nil && res == nil {
		return nil, err
	}
	if err != nil {
		return res, fmt.Errorf("notion upload: %s", strings.Join(res.Errors, "; "))
	}
	return res, nil
}

// readItems decodes a JSON array of action items, or an analyze report
// holding one under "items".
func readItems(r io.Reader) ([]models.ActionItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var items []models.ActionItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var report struct {
		Items []models.ActionItem `json:"items"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return report.Items, nil
}

// inboxProcessor analyzes one settled file and, when upload is set,
// sends the items to Notion.
func (c *Components) inboxProcessor(out io.Writer) watcher.Processor {
	return func(ctx context.Context, path string) error {
		cfg := c.Config.Get()
		text, err := c.readInput(path, nil)
		if err != nil {
			return err
		}
		report, err := c.Analyzer.Analyze(ctx, analysis.Request{
			Text:       text,
			Provider:   llm.Provider(cfg.Watch.Provider),
			Agent:      cfg.Watch.Agent,
			Structured: true,
		})
		if errors.Is(err, analysis.ErrEmptyText) {
			c.Logger.Info("inbox file has no text", zap.String("path", path))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n== %s (%s)\n", path, time.Now().Format(time.RFC3339))
		if err := cli.WriteItems(out, report.Items, cli.OutputText); err != nil {
			return err
		}
		if !cfg.Watch.Upload || len(report.Items) == 0 {
			return nil
		}
		res, err := c.upload(ctx, report.Items)
		if res != nil {
			_ = cli.WriteBatchResult(out, res, cli.OutputText)
		}
		return err
	}
}

// startInbox watches the configured directories until ctx is done. It
// returns nil when no directory is configured.
func (c *Components) startInbox(ctx context.Context, dirs []string, out io.Writer) (*watcher.Watcher, error) {
	cfg := c.Config.Get()
	if len(dirs) == 0 {
		dirs = cfg.Watch.Directories
	}
	if len(dirs) == 0 {
		return nil, nil
	}
	inbox := watcher.NewInbox(ctx, c.inboxProcessor(out), c.Logger)
	w := watcher.NewWatcher(dirs, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(), inbox.Handle, watcher.WithLogger(c.Logger))
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	w.SyncExistingFiles()
	c.Logger.Info("watching inbox", zap.Strings("directories", dirs), zap.Bool("upload", cfg.Watch.Upload))
	return w, nil
}

// reloader re-resolves the config into holder.
func reloader(loader *config.Loader, holder *config.Holder, logger *zap.Logger) func() error {
	return func() error {
		cfg, _, path, err := loader.Resolve()
		if err != nil {
			return err
		}
		holder.Set(cfg)
		logger.Info("config reloaded", zap.String("path", path))
		return nil
	}
}

func exitOnError(logger *zap.Logger, msg string, err error) {
	if err == nil {
		return
	}
	if logger != nil {
		logger.Error(msg, zap.Error(err))
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

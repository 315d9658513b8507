// Package main is the AutoScan CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/analysis"
	"github.com/hyperjump/autoscan/internal/cli"
	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/insight"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/server"
	"github.com/hyperjump/autoscan/internal/watcher"
	"github.com/hyperjump/autoscan/pkg/utils"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "analyze":
		runAnalyze()
	case "upload":
		runUpload()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("autoscan version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup resolves the config and builds the logger. debug forces debug
// logging on top of the config flag. With allowMissing set, a missing
// config falls back to defaults. The returned path is the file or
// variable the config was read from.
func setup(configPath string, debug, allowMissing bool) (*config.Loader, *config.Holder, config.Source, string, *zap.Logger) {
	boot, err := utils.NewLogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	loader := config.NewLoader(configPath, boot)
	resolve := loader.Resolve
	if allowMissing {
		resolve = loader.ResolveOrDefault
	}
	cfg, source, path, err := resolve()
	exitOnError(boot, "Failed to load config", err)

	logger := boot
	if cfg.Debug && !debug {
		if logger, err = utils.NewLogger(true); err != nil {
			logger = boot
		}
		loader.Logger = logger
	}
	logger.Info("config loaded",
		zap.String("source", string(source)),
		zap.String("path", path),
		zap.Bool("debug", cfg.Debug || debug))
	return loader, config.NewHolder(cfg), source, path, logger
}

// argsReorder moves flags that follow the positional arguments to the
// front so that flag.Parse sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default: config.json or config.yaml in the working directory)")
	debug := fs.Bool("debug", false, "enable debug logging")
	port := fs.Int("port", 0, "override the configured port")
	_ = fs.Parse(os.Args[2:])

	loader, holder, source, path, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	if *port > 0 {
		cfg := *holder.Get()
		cfg.Server.Port = *port
		holder.Set(&cfg)
	}

	ctx, stop := signalContext()
	defer stop()

	components := initializeComponents(ctx, holder, logger)
	opts := []server.Option{server.WithLogger(logger), server.WithExtractor(components.Extractor)}
	if components.Agent != nil {
		opts = append(opts, server.WithVertexAgent(components.Agent))
	}
	srv := server.NewServer(holder, components.Analyzer, opts...)

	if source == config.SourceFile {
		reload := reloader(loader, holder, logger)
		cw, err := watcher.WatchConfig(ctx, path, reload, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			defer cw.Stop()
		}
	}
	inbox, err := components.startInbox(ctx, nil, os.Stdout)
	if err != nil {
		logger.Warn("inbox watcher disabled", zap.Error(err))
	} else if inbox != nil {
		defer inbox.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	provider := fs.String("provider", "gemini", "provider: gemini, openai, or vertex")
	agent := fs.String("agent", "", "agent key from the provider's agents block")
	model := fs.String("model", "", "override the model")
	lang := fs.String("lang", "", "target language code (default from config)")
	structured := fs.Bool("structured", true, "request structured items")
	useAgent := fs.Bool("assistant", false, "run OpenAI requests through Assistants")
	upload := fs.Bool("upload", false, "upload the items to Notion")
	summary := fs.Bool("summary", false, "print counts by status, project, owner and keyword")
	output := fs.String("output", "text", "output format: text, json, or xlsx")
	outFile := fs.String("out", "", "write output to this file instead of stdout")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: autoscan analyze [flags] <file|->")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*output)
	exitOnError(nil, "Invalid output", err)
	if format == cli.OutputXLSX && *outFile == "" {
		exitOnError(nil, "Invalid output", errors.New("xlsx output needs --out"))
	}

	_, holder, _, _, logger := setup(*configPath, *debug, false)
	defer logger.Sync()
	ctx, stop := signalContext()
	defer stop()
	components := initializeComponents(ctx, holder, logger)

	text, err := components.readInput(fs.Arg(0), os.Stdin)
	exitOnError(logger, "Failed to read input", err)

	session := analysis.NewSession()
	session.SetTranscript(text)
	report, err := components.Analyzer.Analyze(ctx, analysis.Request{
		Text:           text,
		Provider:       llm.Provider(strings.ToLower(*provider)),
		Agent:          *agent,
		Model:          *model,
		TargetLanguage: *lang,
		Structured:     *structured,
		UseAgent:       *useAgent,
	})
	exitOnError(logger, "Analysis failed", err)
	session.Apply(report)
	state := session.Snapshot()
	logger.Info("analysis complete",
		zap.String("report_id", state.ReportID),
		zap.String("stage", string(report.Stage)),
		zap.Int("items", len(state.Items)))

	out := os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		exitOnError(logger, "Failed to create output", err)
		defer f.Close()
		out = f
	}
	exitOnError(logger, "Output failed", cli.WriteItems(out, state.Items, format))
	if *summary && format != cli.OutputXLSX {
		exitOnError(logger, "Output failed", cli.WriteSummary(out, insight.Summarize(state.Items), format))
	}

	if *upload && len(state.Items) > 0 {
		res, err := components.upload(ctx, state.Items)
		if res != nil {
			_ = cli.WriteBatchResult(os.Stderr, res, cli.OutputText)
		}
		exitOnError(logger, "Upload failed", err)
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: autoscan upload [flags] <items.json|->")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*output)
	exitOnError(nil, "Invalid output", err)

	_, holder, _, _, logger := setup(*configPath, *debug, false)
	defer logger.Sync()
	ctx, stop := signalContext()
	defer stop()

	in := os.Stdin
	if fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		exitOnError(logger, "Failed to open items", err)
		defer f.Close()
		in = f
	}
	items, err := readItems(in)
	exitOnError(logger, "Failed to read items", err)

	components := initializeComponents(ctx, holder, logger)
	res, err := components.upload(ctx, items)
	if res != nil {
		_ = cli.WriteBatchResult(os.Stdout, res, format)
	}
	exitOnError(logger, "Upload failed", err)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	upload := fs.Bool("upload", false, "upload items to Notion (overrides watch.upload)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	loader, holder, source, path, logger := setup(*configPath, *debug, false)
	defer logger.Sync()
	if *upload {
		cfg := *holder.Get()
		cfg.Watch.Upload = true
		holder.Set(&cfg)
	}

	ctx, stop := signalContext()
	defer stop()
	components := initializeComponents(ctx, holder, logger)

	w, err := components.startInbox(ctx, fs.Args(), os.Stdout)
	exitOnError(logger, "Failed to start watcher", err)
	if w == nil {
		fmt.Println("Usage: autoscan watch [flags] <dir>...  (or set watch.directories in the config)")
		os.Exit(1)
	}
	defer w.Stop()

	if source == config.SourceFile {
		if cw, err := watcher.WatchConfig(ctx, path, reloader(loader, holder, logger), logger); err == nil {
			defer cw.Stop()
		}
	}
	<-ctx.Done()
	logger.Info("Shutting down...")
}

func printUsage() {
	fmt.Println(`autoscan - Meeting notes to action items

Usage:
  autoscan server [flags]              Start the HTTP server and browser proxy
  autoscan analyze [flags] <file|->    Extract action items from a document
  autoscan upload [flags] <items.json> Upload action items to Notion
  autoscan watch [flags] [dir...]      Analyze files dropped into inbox directories
  autoscan version                     Show version
  autoscan help                        Show this help

Common Flags:
  --config string    Config file path (default: config.json or config.yaml in the
                     working directory, then $AUTOSCAN_CONFIG, then the cached copy)
  --debug            Enable debug logging

Server Flags:
  --port int         Override the configured port

Analyze Flags:
  --provider string  gemini, openai, or vertex (default: gemini)
  --agent string     Agent key from the provider's agents block
  --model string     Override the model
  --lang string      Target language code, e.g. zh-TW, en, ja
  --structured       Request structured items (default: true)
  --assistant        Run OpenAI requests through Assistants
  --upload           Upload the items to Notion
  --summary          Print counts by status, project, owner and keyword
  --output string    text, json, or xlsx (default: text)
  --out string       Write output to a file (required for xlsx)

Watch Flags:
  --upload           Upload items to Notion (overrides watch.upload)

Examples:
  autoscan server
  autoscan analyze minutes.docx
  autoscan analyze --provider openai --agent notes --output json minutes.pdf
  autoscan analyze --output xlsx --out items.xlsx minutes.txt
  cat notes.md | autoscan analyze --structured=false -
  autoscan upload items.json
  autoscan watch --upload ~/Inbox`)
}

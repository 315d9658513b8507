package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Processor handles one settled inbox file.
type Processor func(ctx context.Context, path string) error

// Inbox runs a Processor for files reported by a Watcher, one at a time.
// A file is processed again only after its modification time changes; a
// failed file is retried on its next change.
type Inbox struct {
	ctx     context.Context
	process Processor
	logger  *zap.Logger

	run  sync.Mutex
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewInbox returns an Inbox whose processor runs under ctx.
func NewInbox(ctx context.Context, process Processor, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{ctx: ctx, process: process, logger: logger, seen: make(map[string]time.Time)}
}

// Handle processes path unless this version was already handled. It is
// meant to be passed to NewWatcher as onFile.
func (in *Inbox) Handle(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	path = filepath.Clean(path)
	mod := info.ModTime()

	in.run.Lock()
	defer in.run.Unlock()
	if in.ctx.Err() != nil {
		return
	}
	in.mu.Lock()
	last, ok := in.seen[path]
	in.mu.Unlock()
	if ok && last.Equal(mod) {
		return
	}

	start := time.Now()
	if err := in.process(in.ctx, path); err != nil {
		in.logger.Error("Inbox file failed", zap.String("path", path), zap.Error(err))
		return
	}
	in.mu.Lock()
	in.seen[path] = mod
	in.mu.Unlock()
	in.logger.Info("Inbox file processed", zap.String("path", path), zap.Duration("took", time.Since(start)))
}

// Processed reports whether path's current version has been handled.
func (in *Inbox) Processed(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	last, ok := in.seen[filepath.Clean(path)]
	return ok && last.Equal(info.ModTime())
}

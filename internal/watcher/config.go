package watcher

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"
)

// WatchConfig calls reload whenever the file at path is written or
// replaced. The parent directory is watched so editors that save by
// renaming a temp file are seen too.
func WatchConfig(ctx context.Context, path string, reload func() error, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	onFile := func(p string) {
		if err := reload(); err != nil {
			logger.Warn("Config reload failed; keeping previous config", zap.String("path", p), zap.Error(err))
			return
		}
		logger.Info("Config reloaded", zap.String("path", p))
	}
	w := NewWatcher([]string{filepath.Dir(abs)}, nil, false, onFile,
		WithLogger(logger),
		WithFilter(func(p string) bool { return filepath.Clean(p) == abs }),
	)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

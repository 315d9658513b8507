package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// EnvVar holds an inline JSON or YAML config and takes priority over files.
const EnvVar = "AUTOSCAN_CONFIG"

// DefaultFiles are tried in the working directory when no path is given.
var DefaultFiles = []string{"config.json", "config.yaml"}

// ErrNotFound is returned when no source yields a config.
var ErrNotFound = errors.New("no configuration found; create config.json or set " + EnvVar)

// Source tells where a config came from.
type Source string

const (
	SourceEnv   Source = "env"
	SourceFile  Source = "file"
	SourceCache Source = "cache"
	// SourceDefault means no source was found and only defaults apply.
	SourceDefault Source = "default"
)

// Loader resolves configuration from its sources in priority order:
// the EnvVar, a config file, then the cached copy of the last good load.
type Loader struct {
	Path      string
	CachePath string
	Getenv    func(string) string
	Logger    *zap.Logger
}

// DefaultCachePath is <user cache dir>/autoscan/config.yaml.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "autoscan", "config.yaml")
}

// NewLoader returns a loader for path (may be empty) using the process
// environment and the default cache location.
func NewLoader(path string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{Path: path, CachePath: DefaultCachePath(), Getenv: os.Getenv, Logger: logger}
}

// Resolve loads the config. A config from the environment or a file is
// written to the cache; cache write failures are logged only.
func (l *Loader) Resolve() (*Config, Source, string, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if inline := strings.TrimSpace(getenv(EnvVar)); inline != "" {
		cfg, err := Parse([]byte(inline))
		if err != nil {
			return nil, "", "", fmt.Errorf("%s: %w", EnvVar, err)
		}
		l.cache(cfg)
		return cfg, SourceEnv, EnvVar, nil
	}

	if path := l.filePath(); path != "" {
		cfg, err := Load(path)
		if err != nil {
			return nil, "", "", err
		}
		l.cache(cfg)
		return cfg, SourceFile, path, nil
	}

	if l.CachePath != "" {
		if _, err := os.Stat(l.CachePath); err == nil {
			cfg, err := Load(l.CachePath)
			if err != nil {
				return nil, "", "", fmt.Errorf("cached config: %w", err)
			}
			l.logger().Info("Configuration restored from cache", zap.String("path", l.CachePath))
			return cfg, SourceCache, l.CachePath, nil
		}
	}
	return nil, "", "", ErrNotFound
}

// ResolveOrDefault is Resolve, except that finding no source at all yields
// the default config instead of ErrNotFound. Broken sources still fail.
func (l *Loader) ResolveOrDefault() (*Config, Source, string, error) {
	cfg, source, path, err := l.Resolve()
	if errors.Is(err, ErrNotFound) {
		l.logger().Warn("No configuration found, using defaults", zap.Error(err))
		return Default(), SourceDefault, "", nil
	}
	return cfg, source, path, err
}

// filePath returns the explicit path, or the first default file that
// exists in the working directory.
func (l *Loader) filePath() string {
	if l.Path != "" {
		return l.Path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range DefaultFiles {
		p := filepath.Join(cwd, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *Loader) cache(cfg *Config) {
	if l.CachePath == "" {
		return
	}
	if err := Save(l.CachePath, cfg); err != nil {
		l.logger().Warn("Failed to cache config", zap.String("path", l.CachePath), zap.Error(err))
	}
}

// Holder shares the current config between the server and the reload
// watcher.
type Holder struct {
	v atomic.Pointer[Config]
}

// NewHolder returns a holder set to cfg.
func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.v.Store(cfg)
	return h
}

// Get returns the current config.
func (h *Holder) Get() *Config {
	return h.v.Load()
}

// Set replaces the current config.
func (h *Holder) Set(cfg *Config) {
	h.v.Store(cfg)
}

package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc receives each newly loaded config together with its [Diff]
// against the previous one.
type ReloadFunc func(next *Config, d ConfigDiff)

// Watcher polls a config file and hands valid, materially changed versions
// to a [ReloadFunc]. A broken edit is logged once and the last good config
// stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc
	env      LookupFunc

	mu      sync.Mutex
	current *Config
	seen    fileStamp
}

// fileStamp identifies one version of the file.
type fileStamp struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnv applies environment fallbacks through lookup to every load.
func WithEnv(lookup LookupFunc) WatcherOption {
	return func(w *Watcher) { w.env = lookup }
}

// NewWatcher loads path once and returns a watcher for it. onReload may be
// nil. Polling starts with [Watcher.Run].
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, onReload: onReload}
	for _, opt := range opts {
		opt(w)
	}
	cfg, stamp, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, stamp
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx ends and then returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.Poll()
		}
	}
}

// Poll checks the file once and reports whether a new config was adopted.
func (w *Watcher) Poll() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watched file unavailable", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if same {
		return false
	}

	cfg, stamp, err := w.load()
	if err != nil {
		slog.Warn("config: keeping previous config", "path", w.path, "err", err)
		// Do not re-parse the broken file until it is touched again.
		w.mu.Lock()
		w.seen.mtime = info.ModTime()
		w.mu.Unlock()
		return false
	}

	w.mu.Lock()
	if stamp.sum == w.seen.sum {
		w.seen = stamp
		w.mu.Unlock()
		return false
	}
	prev := w.current
	w.current, w.seen = cfg, stamp
	w.mu.Unlock()

	d := Diff(prev, cfg)
	slog.Info("config: reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onReload != nil && d.Changed() {
		w.onReload(cfg, d)
	}
	return true
}

func (w *Watcher) load() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	if w.env != nil {
		if err := ApplyEnv(cfg, w.env); err != nil {
			return nil, fileStamp{}, err
		}
	}
	return cfg, fileStamp{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}

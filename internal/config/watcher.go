package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] looks at its file.
const DefaultWatchInterval = 5 * time.Second

// Reload describes a validated edit of the config file.
type Reload struct {
	Previous *Config
	Current  *Config
	Diff     ConfigDiff
}

// Watcher polls a config file and hands validated edits to a callback.
//
// An edit that fails to parse or validate is logged and skipped; the previous
// config stays current. An edit that changes no setting, such as a new
// comment, replaces the current config without a callback.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)

	mu      sync.Mutex
	current *Config
	seen    fileStamp

	recheck  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp identifies one version of the config file. Size and mtime are
// compared first; the content hash settles whether a touched file changed.
type fileStamp struct {
	size  int64
	mtime time.Time
	sum   [sha256.Size]byte
}

func (s fileStamp) matches(info os.FileInfo) bool {
	return s.size == info.Size() && s.mtime.Equal(info.ModTime())
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts watching it in a background
// goroutine. onReload may be nil.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		recheck:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, stamp

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Recheck asks the watcher to re-read the file now, even when its size and
// modification time look unchanged. It does not block.
func (w *Watcher) Recheck() {
	select {
	case w.recheck <- struct{}{}:
	default:
	}
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check(false)
		case <-w.recheck:
			w.check(true)
		}
	}
}

func (w *Watcher) check(force bool) {
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
			return
		}
		w.mu.Lock()
		unchanged := w.seen.matches(info)
		w.mu.Unlock()
		if unchanged {
			return
		}
	}

	cfg, stamp, err := w.read()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if stamp.sum == w.seen.sum {
		w.seen = stamp
		w.mu.Unlock()
		return
	}
	r := Reload{Previous: w.current, Current: cfg, Diff: Diff(w.current, cfg)}
	w.current, w.seen = cfg, stamp
	w.mu.Unlock()

	if r.Diff.IsZero() {
		slog.Debug("config watcher: file edited, no setting changed", "path", w.path)
		return
	}
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"analysis", r.Diff.AnalysisFields,
		"restart_required", r.Diff.RestartRequired,
	)

	// Outside the lock so the callback may call Current.
	if w.onReload != nil {
		w.onReload(r)
	}
}

// read loads and validates the file and stamps the bytes it read.
func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{size: info.Size(), mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// ConfigWatcher polls the config file for changes and reloads the service
// when it settles. The poll-debounce-reload shape means editors that write
// in several bursts trigger one reload, not five.
type ConfigWatcher struct {
	path string
	opts WatchOptions

	// token is the last observed file version (mtime + size fold).
	token atomic.Int64

	checks  atomic.Int64
	reloads atomic.Int64
	errs    atomic.Int64
}

// WatchOptions tunes the config watcher.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 2s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the reload fires.
	// More changes during the window reset the timer. 0 fires immediately.
	Debounce time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// WatchStats are point-in-time counters.
type WatchStats struct {
	Checks  int64 `json:"checks"`
	Reloads int64 `json:"reloads"`
	Errors  int64 `json:"errors"`
}

// NewConfigWatcher creates a watcher for the config file at path. Call
// OnChange to start the loop.
func NewConfigWatcher(path string, opts WatchOptions) *ConfigWatcher {
	opts.defaults()
	return &ConfigWatcher{path: path, opts: opts}
}

// Stats returns the current counters.
func (w *ConfigWatcher) Stats() WatchStats {
	return WatchStats{
		Checks:  w.checks.Load(),
		Reloads: w.reloads.Load(),
		Errors:  w.errs.Load(),
	}
}

// fileToken folds the file's mtime and size into one comparable value. Two
// different tokens mean the file changed; equal tokens after an edit are
// theoretically possible but need a same-size write within the mtime
// granularity, which the debounce window papers over.
func (w *ConfigWatcher) fileToken() (int64, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return 0, err
	}
	return fi.ModTime().UnixNano() ^ fi.Size(), nil
}

// OnChange blocks until ctx is cancelled, polling at the configured
// interval. When the file token changes and the debounce window passes
// without further edits, action runs.
//
// If action returns an error the token is NOT advanced, so the reload is
// retried on the next poll cycle.
func (w *ConfigWatcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if tok, err := w.fileToken(); err != nil {
		log.Warn("config watch: initial stat failed", "path", w.path, "error", err)
	} else {
		w.token.Store(tok)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(0)
	havePending := false

	log.Info("config watch: started", "path", w.path,
		"interval", w.opts.Interval, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("config watch: stopped")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			w.checks.Add(1)
			tok, err := w.fileToken()
			if err != nil {
				w.errs.Add(1)
				log.Warn("config watch: stat failed", "error", err)
				continue
			}
			if tok != w.token.Load() && (!havePending || tok != pending) {
				pending = tok
				havePending = true

				if w.opts.Debounce <= 0 {
					w.fire(log, action, pending)
					havePending = false
				} else {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.NewTimer(w.opts.Debounce)
					debounceCh = debounceTimer.C
					log.Debug("config watch: change detected, debouncing")
				}
			}

		case <-debounceCh:
			debounceCh = nil
			if havePending {
				w.fire(log, action, pending)
				havePending = false
			}
		}
	}
}

func (w *ConfigWatcher) fire(log *slog.Logger, action func() error, tok int64) {
	start := time.Now()
	if err := action(); err != nil {
		w.errs.Add(1)
		log.Error("config watch: reload failed", "error", err)
		return
	}
	w.reloads.Add(1)
	w.token.Store(tok)
	log.Info("config watch: reload complete", "duration", time.Since(start))
}

// Reload swaps in a new validated config. The scheduler, if running, is
// stopped and restarted over the new site list; failure counts for sites
// that disappeared are dropped.
func (s *Service) Reload(cfg *Config) error {
	if cfg == nil {
		return errors.New("monitor: nil config")
	}
	cfg.defaults()

	s.mu.Lock()
	restart := s.cron != nil
	s.mu.Unlock()
	if restart {
		s.Stop()
	}

	s.mu.Lock()
	s.config = cfg
	keep := make(map[string]bool, len(cfg.Sites))
	for _, site := range cfg.Sites {
		keep[site.ID] = true
	}
	for id := range s.failures {
		if !keep[id] {
			delete(s.failures, id)
		}
	}
	s.mu.Unlock()

	s.logger.Info("monitor: config reloaded", "sites", len(cfg.Sites))

	if restart {
		if err := s.Start(); err != nil {
			return fmt.Errorf("restart scheduler: %w", err)
		}
	}
	return nil
}

package merge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when WatcherConfig.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the directory to watch. Subdirectories are not watched.
	Dir string

	// Prefix selects the legacy file names that trigger a run.
	Prefix string

	// Debounce is how long the directory must stay quiet before the
	// callback runs.
	Debounce time.Duration
}

// Watcher triggers a callback when legacy snapshots are created or written.
// Bursts of events are collapsed by a Debouncer.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	config   WatcherConfig
	pattern  *regexp.Regexp
	debounce *Debouncer

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher. Watching starts with Watch.
func NewWatcher(cfg WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		logger:   logger.With("component", "merge.watcher"),
		config:   cfg,
		pattern:  legacyPattern(cfg.Prefix),
		debounce: NewDebouncer(cfg.Debounce),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, running onChange
// after each debounced burst of matching events. Callback errors are logged.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context) error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.config.Dir, err)
	}

	w.logger.Info("legacy config watcher started",
		"dir", w.config.Dir,
		"prefix", w.config.Prefix,
		"debounce_ms", w.config.Debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("legacy config watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("legacy config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			w.logger.Debug("legacy config file event", "path", event.Name, "op", event.Op.String())

			w.debounce.Trigger(func() {
				w.logger.Info("legacy config files changed, running merge")
				if err := onChange(ctx); err != nil {
					w.logger.Error("merge triggered by watcher failed", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("legacy config watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and cancels any pending callback. It is safe to
// call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.RLock()
		running := w.running
		w.mu.RUnlock()

		close(w.stopCh)
		if running {
			<-w.doneCh
		}
		w.debounce.Stop()

		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
	})
	return err
}

func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return w.pattern.MatchString(filepath.Base(event.Name))
}

// Debouncer runs the most recent callback once events stop arriving for the
// configured interval.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Trigger records callback and restarts the quiet-period timer.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.stopCh:
		return
	default:
	}

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.mu.Lock()
		cb := d.callback
		d.callback = nil
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}

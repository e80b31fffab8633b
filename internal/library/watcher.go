package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/registry"
)

// Connector is the part of the registry the watcher drives.
type Connector interface {
	Connect(ctx context.Context, name string) error
	Disconnect(name string) error
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Settle is how long a new file must stay quiet before it is connected.
	// Defaults to 500ms.
	Settle time.Duration

	// OnChange runs after the catalog changed.
	OnChange func()

	Logger *zap.Logger
}

// WatcherStats counts handled events.
type WatcherStats struct {
	Connected    int
	Disconnected int
	Failed       int
	Errors       int
}

// Watcher follows the library directory. New shard files are added to the
// catalog and connected once they stop changing; removed or renamed files
// are dropped from the catalog and disconnected at once.
type Watcher struct {
	fs       *fsnotify.Watcher
	catalog  *Catalog
	shards   Connector
	settle   time.Duration
	onChange func()
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time // file name → last create/write event
	stats   WatcherStats
}

// NewWatcher creates a watcher for the catalog's root.
func NewWatcher(catalog *Catalog, shards Connector, opts WatcherOptions) (*Watcher, error) {
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create library watcher: %w", err)
	}
	return &Watcher{
		fs:       fw,
		catalog:  catalog,
		shards:   shards,
		settle:   opts.Settle,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is cancelled. It closes the underlying watcher
// before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	if err := w.fs.Add(w.catalog.Root()); err != nil {
		return fmt.Errorf("watch library %s: %w", w.catalog.Root(), err)
	}
	w.logger.Info("watching library", zap.String("root", w.catalog.Root()))

	tick := w.settle / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("library watcher stopped")
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("library watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.connectSettled(ctx)
		}
	}
}

// Stats returns a snapshot of the event counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if !strings.HasSuffix(base, w.catalog.Extension()) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.mu.Lock()
		w.pending[base] = time.Now()
		w.mu.Unlock()

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.pending, base)
		w.mu.Unlock()
		w.drop(base)
	}
}

// connectSettled connects files whose last event is older than the settle
// window.
func (w *Watcher) connectSettled(ctx context.Context) {
	now := time.Now()
	var ready []string

	w.mu.Lock()
	for base, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, base)
			delete(w.pending, base)
		}
	}
	w.mu.Unlock()

	for _, base := range ready {
		w.add(ctx, base)
	}
}

func (w *Watcher) add(ctx context.Context, base string) {
	info, err := os.Stat(filepath.Join(w.catalog.Root(), base))
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	w.catalog.Add(base)
	err = w.shards.Connect(ctx, base)
	switch {
	case err == nil:
		w.logger.Info("shard file appeared, connected", zap.String("file", base))
		w.mu.Lock()
		w.stats.Connected++
		w.mu.Unlock()
	case errors.Is(err, registry.ErrAlreadyConnected):
		w.logger.Debug("connected shard file changed", zap.String("file", base))
	default:
		w.logger.Warn("shard file appeared but could not be connected",
			zap.String("file", base), zap.Error(err))
		w.mu.Lock()
		w.stats.Failed++
		w.mu.Unlock()
	}

	// Rewrites of a connected file change its rows too.
	if w.onChange != nil {
		w.onChange()
	}
}

func (w *Watcher) drop(base string) {
	removed := w.catalog.Remove(base)
	if err := w.shards.Disconnect(base); err == nil {
		w.logger.Info("shard file removed, disconnected", zap.String("file", base))
		w.mu.Lock()
		w.stats.Disconnected++
		w.mu.Unlock()
	}
	if removed && w.onChange != nil {
		w.onChange()
	}
}

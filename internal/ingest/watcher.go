package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions controls a Watcher
type WatchOptions struct {
	Extensions []string
	Recursive  bool
	Debounce   time.Duration
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithClock sets the clock used for debouncing
func WithClock(clock clockwork.Clock) WatcherOption {
	return func(w *Watcher) {
		w.clock = clock
	}
}

// WithIngestHook is called after every ingest attempt with its outcome
func WithIngestHook(hook func(path string, res *Result, err error)) WatcherOption {
	return func(w *Watcher) {
		w.hook = hook
	}
}

// Watcher ingests files as they are created or modified under a directory.
// A modified file is re-ingested as a new document and the document from its
// previous version is deleted.
type Watcher struct {
	service *Service
	root    string
	opts    WatchOptions
	clock   clockwork.Clock
	logger  *slog.Logger
	hook    func(string, *Result, error)

	mu      sync.Mutex
	closed  bool
	pending map[string]clockwork.Timer
	docs    map[string]int64
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for root. It does nothing until Run.
func (s *Service) NewWatcher(root string, opts WatchOptions, options ...WatcherOption) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w := &Watcher{
		service: s,
		root:    root,
		opts:    opts,
		clock:   clockwork.NewRealClock(),
		logger:  s.logger.With("watch", root),
		pending: make(map[string]clockwork.Timer),
		docs:    make(map[string]int64),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled, then waits for in-flight ingests
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addDirs(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching for documents", "recursive", w.opts.Recursive)

	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// addDirs registers dir, and its subdirectories when recursive
func (w *Watcher) addDirs(fsw *fsnotify.Watcher, dir string) error {
	if !w.opts.Recursive {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		return nil
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) && w.opts.Recursive && !strings.HasPrefix(info.Name(), ".") {
				if err := w.addDirs(fsw, event.Name); err != nil {
					w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
				}
			}
			return
		}
		if strings.HasPrefix(info.Name(), ".") || !hasExtension(event.Name, w.opts.Extensions) {
			return
		}
		w.schedule(ctx, event.Name)

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.mu.Lock()
		if t, ok := w.pending[event.Name]; ok {
			t.Stop()
			delete(w.pending, event.Name)
		}
		w.mu.Unlock()
	}
}

// schedule (re)starts the debounce timer for path
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = w.clock.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.wg.Add(1)
		w.mu.Unlock()

		defer w.wg.Done()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	res, err := w.service.IngestFile(ctx, path)
	if w.hook != nil {
		defer w.hook(path, res, err)
	}

	if err != nil && !errors.Is(err, ErrPartialIngest) {
		w.logger.Warn("watched file ingest failed", "path", path, "error", err)
		return
	}

	w.mu.Lock()
	previous, replaced := w.docs[path]
	w.docs[path] = res.DocumentID
	w.mu.Unlock()

	if replaced {
		if err := w.service.Delete(ctx, previous); err != nil {
			w.logger.Warn("failed to delete previous version", "path", path, "document_id", previous, "error", err)
		}
	}

	w.logger.Info("watched file ingested", "path", path, "document_id", res.DocumentID, "replaced", replaced)
}

// shutdown stops pending timers and waits for running ingests
func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("stopped watching")
}

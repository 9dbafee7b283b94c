// Package inbox feeds image files dropped into a watched folder to a batch
// session.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nguyennamkkb/Simpleverse-home/core"
)

// DefaultDebounce is how long a file must stay quiet before it is added.
const DefaultDebounce = 300 * time.Millisecond

// Adder accepts new files.  *batch.Coordinator satisfies it.
type Adder interface {
	Add(ctx context.Context, sources ...core.Source) ([]string, error)
}

// Event reports the outcome of one ingested file.
type Event struct {
	Path string
	IDs  []string
	Err  error
}

// Watcher monitors one directory.
type Watcher struct {
	dir      string
	target   Adder
	log      core.Logger
	debounce time.Duration

	fs     *fsnotify.Watcher
	events chan Event
	ctx    context.Context
	loop   sync.WaitGroup
	inflt  sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	seen    map[string]time.Time
	stopped bool
}

// Option customises a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher for dir.  Call Start to begin.
func New(dir string, target Adder, log core.Logger, opts ...Option) (*Watcher, error) {
	if log == nil {
		log = core.NopLogger{}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox: %s is not a directory", dir)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("inbox: create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		dir:      dir,
		target:   target,
		log:      log,
		debounce: DefaultDebounce,
		fs:       fsw,
		events:   make(chan Event, 64),
		timers:   make(map[string]*time.Timer),
		seen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the directory and queues the images already in it.  ctx
// bounds every Add call.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx
	if err := w.fs.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	w.log.Info("inbox.watch", "dir", w.dir)

	w.loop.Add(1)
	go w.processEvents()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: list %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

// Events reports ingested files.  Events are dropped when nobody reads them.
func (w *Watcher) Events() <-chan Event { return w.events }

// Stop ends watching, waits for in-flight adds and closes Events.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.fs.Close()
	w.loop.Wait()
	w.inflt.Wait()
	close(w.events)
	return err
}

func (w *Watcher) processEvents() {
	defer w.loop.Done()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("inbox.watch.error", "error", err)
		}
	}
}

// accepts reports whether path looks like an image we can add.
func accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	f := core.ParseFormat(filepath.Ext(base))
	return f != core.FormatUnknown && !f.OutputOnly()
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	if !accepts(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.inflt.Add(1)
		w.mu.Unlock()
		defer w.inflt.Done()
		w.ingest(path)
	})
}

func (w *Watcher) ingest(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		// gone or replaced before it settled
		return
	}

	w.mu.Lock()
	if mt, ok := w.seen[path]; ok && mt.Equal(info.ModTime()) {
		w.mu.Unlock()
		return
	}
	w.seen[path] = info.ModTime()
	w.mu.Unlock()

	ev := Event{Path: path}
	f, err := os.Open(path)
	if err != nil {
		ev.Err = fmt.Errorf("inbox: open %s: %w", path, err)
	} else {
		ev.IDs, ev.Err = w.target.Add(w.ctx, core.Source{
			Reader: f,
			Name:   filepath.Base(path),
			Size:   info.Size(),
		})
		f.Close()
	}

	if ev.Err != nil {
		w.log.Warn("inbox.add.failed", "path", path, "error", ev.Err)
	} else {
		w.log.Info("inbox.added", "path", path, "ids", ev.IDs)
	}

	select {
	case w.events <- ev:
	default:
		w.log.Debug("inbox.event.dropped", "path", path)
	}
}

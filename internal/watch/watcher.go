// Package watch provides debounced filesystem watching for the watch
// command: it observes a config file or a directory of source documents and
// invokes callbacks when something relevant changes.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/ro"
)

// Callback is invoked with the path that changed, after debouncing.
// Errors are logged and otherwise ignored; the watcher keeps running.
type Callback func(path string) error

// ErrWatcherClosed is returned when an operation is attempted on a closed watcher.
var ErrWatcherClosed = errors.New("watch: watcher already closed")

// eventBuffer bounds pending change events between the fsnotify loop and the
// buffering stream.
const eventBuffer = 64

// Watcher monitors a file or directory for changes and triggers callbacks.
// It debounces rapid change bursts per path (common with editors and
// still-downloading files) and watches the parent directory of a single
// file target to properly detect atomic writes (temp file + rename).
type Watcher struct {
	ctx           context.Context
	cancel        context.CancelFunc
	fsWatcher     *fsnotify.Watcher
	filter        func(string) bool
	path          string
	callbacks     []Callback
	debounceDelay time.Duration
	mu            sync.RWMutex
	watchDir      bool
	closed        bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceDelay sets the debounce delay for change events.
// Default is 250ms.
func WithDebounceDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithFilter restricts directory watching to paths the predicate accepts.
// Ignored when watching a single file.
func WithFilter(filter func(path string) bool) Option {
	return func(w *Watcher) {
		w.filter = filter
	}
}

// New creates a watcher for the given path. A directory target reports
// changes to files inside it; a file target reports changes to that file
// only, detected via its parent directory.
func New(path string, opts ...Option) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		ctx:           ctx,
		cancel:        cancel,
		fsWatcher:     fsWatcher,
		path:          absPath,
		watchDir:      info.IsDir(),
		debounceDelay: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}

	watchTarget := absPath
	if !w.watchDir {
		// Watch the parent directory to catch atomic writes (temp + rename)
		watchTarget = filepath.Dir(absPath)
	}
	if err := fsWatcher.Add(watchTarget); err != nil {
		cancel()
		if closeErr := fsWatcher.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close watcher after add failure")
		}
		return nil, err
	}

	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// OnChange registers a callback invoked for each debounced change.
// Multiple callbacks are called in registration order.
func (w *Watcher) OnChange(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Watch starts watching. It blocks until the context is canceled. Accepted
// events flow through a reactive stream that buffers them over the debounce
// window; duplicate paths within a window collapse to a single callback. Only
// Write and Create events are processed (Chmod from indexers and antivirus is
// ignored). Returns nil when the context ends.
func (w *Watcher) Watch(ctx context.Context) error {
	paths := make(chan string, eventBuffer)
	done := make(chan struct{})

	batches := ro.Pipe1(
		ro.FromChannel(paths),
		ro.BufferWithTime[string](w.debounceDelay),
	)
	go func() {
		defer close(done)
		batches.Subscribe(ro.NewObserver(
			func(batch []string) { w.dispatch(batch) },
			func(err error) { log.Error().Err(err).Msg("watch stream error") },
			func() {},
		))
	}()
	defer func() {
		close(paths)
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if w.shouldProcess(event) {
				select {
				case paths <- event.Name:
				default:
					log.Warn().Str("path", event.Name).Msg("event buffer full, dropping change")
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

// dispatch invokes callbacks once per distinct path in a buffered batch.
func (w *Watcher) dispatch(batch []string) {
	for _, path := range lo.Uniq(batch) {
		// A batch may be delivered after Close; don't invoke callbacks then.
		select {
		case <-w.ctx.Done():
			return
		default:
		}
		w.invokeCallbacks(path)
	}
}

// shouldProcess determines whether an fsnotify event is relevant.
func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if w.watchDir {
		return w.filter == nil || w.filter(event.Name)
	}
	return filepath.Base(event.Name) == filepath.Base(w.path)
}

// invokeCallbacks calls all registered callbacks with the changed path.
func (w *Watcher) invokeCallbacks(path string) {
	w.mu.RLock()
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	log.Debug().Str("path", path).Msg("change detected")
	for _, cb := range callbacks {
		if err := cb(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("watch callback error")
		}
	}
}

// Close stops watching and releases resources.
// Returns ErrWatcherClosed if already closed.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true

	// Cancel first so a batch in flight cannot fire callbacks.
	w.cancel()
	return w.fsWatcher.Close()
}

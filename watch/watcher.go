// Package watch turns raw filesystem notifications into a debounced stream of
// file events for the vault.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Kind indicates the type of file change.
type Kind string

// KindCreated and KindModified enumerate the emitted event kinds.
const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
)

// Event is one debounced file change. It is consumed once and not persisted.
type Event struct {
	// Path is the absolute path of the changed file.
	Path string

	// Kind is the type of change.
	Kind Kind

	// ObservedAt is when the debounce window closed.
	ObservedAt time.Time
}

// Callback receives debounced events. Callbacks run on debounce-timer
// goroutines and must not block; consumers that do real work should enqueue.
type Callback func(Event)

// Config configures the watcher.
type Config struct {
	// Root is the vault directory to watch recursively.
	Root string

	// Debounce is how long a path must stay quiet before its event fires.
	Debounce time.Duration

	// FileExtensions lists watched extensions (e.g., [".md"]).
	FileExtensions []string

	// ExcludeDirs lists directory names to skip entirely.
	ExcludeDirs []string

	// ExcludeGlobs lists doublestar patterns matched against root-relative paths.
	ExcludeGlobs []string

	// Logger for logging events.
	Logger *slog.Logger
}

// pendingEmission is a per-path debounce timer. Every raw notification for the
// path resets the timer; only a full quiet period lets it fire.
type pendingEmission struct {
	timer *time.Timer
	kind  Kind
}

// Watcher watches the vault and emits one Event per path per quiet period.
type Watcher struct {
	config     Config
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
	extensions map[string]bool
	excludes   map[string]bool

	callbacksMu sync.Mutex
	callbacks   []Callback

	pendingMu sync.Mutex
	pending   map[string]*pendingEmission

	done     chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
	stopOnce sync.Once
}

// New creates a watcher for the configured vault root.
func New(config Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.Debounce <= 0 {
		config.Debounce = 5 * time.Second
	}

	extensions := make(map[string]bool)
	if len(config.FileExtensions) == 0 {
		extensions[".md"] = true
	} else {
		for _, ext := range config.FileExtensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			extensions[ext] = true
		}
	}

	excludes := make(map[string]bool)
	for _, dir := range config.ExcludeDirs {
		excludes[dir] = true
	}

	return &Watcher{
		config:     config,
		watcher:    fsw,
		logger:     logger,
		extensions: extensions,
		excludes:   excludes,
		pending:    make(map[string]*pendingEmission),
		done:       make(chan struct{}),
	}, nil
}

// RegisterCallback subscribes a consumer to debounced events. Multiple
// callbacks are allowed; each receives every event.
func (w *Watcher) RegisterCallback(fn Callback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Running reports whether the watch loop is active.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// PendingCount returns the number of paths currently inside a debounce window.
func (w *Watcher) PendingCount() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}

// Start begins watching the vault for changes.
func (w *Watcher) Start() error {
	if err := w.addWatchesRecursive(w.config.Root); err != nil {
		return err
	}

	w.running.Store(true)
	w.wg.Add(1)
	go w.processEvents()

	w.logger.Info("Vault watcher started",
		"root", w.config.Root,
		"debounce", w.config.Debounce)

	return nil
}

// Stop cancels all pending debounce timers and joins the watch loop before
// returning. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()

		w.pendingMu.Lock()
		for path, p := range w.pending {
			p.timer.Stop()
			delete(w.pending, path)
		}
		w.pendingMu.Unlock()

		w.running.Store(false)
		w.logger.Info("Vault watcher stopped")
	})
	return err
}

// addWatchesRecursive adds watches to all non-excluded directories.
// A watch-API error for one directory logs and continues; it never
// terminates the whole watcher.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("Walk error while adding watches", "path", path, "error", err)
			return nil
		}

		if !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if path != root && (w.excludes[base] || strings.HasPrefix(base, ".")) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}

		return nil
	})
}

// processEvents consumes raw fsnotify events until the watcher stops.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFSEvent processes a single raw fsnotify event.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if !w.extensions[filepath.Ext(path)] {
		// Handle directory creation so new subdirectories get watched.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	if w.isExcluded(path) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.cancelPending(path)
		return
	}

	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
		w.scheduleEmission(path, event.Has(fsnotify.Create))
		w.logger.Debug("File change detected", "path", path, "op", event.Op.String())
	}
}

// isExcluded checks the path against excluded directory names and glob patterns.
func (w *Watcher) isExcluded(path string) bool {
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, part := range strings.Split(rel, "/") {
		if w.excludes[part] || strings.HasPrefix(part, ".") {
			return true
		}
	}

	for _, pattern := range w.config.ExcludeGlobs {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}

	return false
}

// handleNewDirectory adds a watch to a newly created directory.
func (w *Watcher) handleNewDirectory(path string) {
	base := filepath.Base(path)
	if w.excludes[base] || strings.HasPrefix(base, ".") {
		return
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
	} else {
		w.logger.Debug("Added watch for new directory", "path", path)
	}
}

// scheduleEmission starts or resets the debounce timer for a path. The kind
// sticks to created once seen: rapid create-then-write bursts are one creation.
func (w *Watcher) scheduleEmission(path string, created bool) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if p, ok := w.pending[path]; ok {
		if created {
			p.kind = KindCreated
		}
		p.timer.Reset(w.config.Debounce)
		return
	}

	kind := KindModified
	if created {
		kind = KindCreated
	}

	p := &pendingEmission{kind: kind}
	p.timer = time.AfterFunc(w.config.Debounce, func() {
		w.fire(path)
	})
	w.pending[path] = p
}

// cancelPending drops the pending emission for a path, if any.
func (w *Watcher) cancelPending(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
		w.logger.Debug("Cancelled pending emission", "path", path)
	}
}

// fire emits the debounced event for a path after its quiet period.
func (w *Watcher) fire(path string) {
	select {
	case <-w.done:
		return
	default:
	}

	w.pendingMu.Lock()
	p, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	w.pendingMu.Unlock()
	if !ok {
		return
	}

	// Deletion during the debounce window: drop the emission.
	if _, err := os.Stat(path); err != nil {
		w.logger.Debug("Path gone before emission, dropping", "path", path)
		return
	}

	event := Event{
		Path:       path,
		Kind:       p.kind,
		ObservedAt: time.Now(),
	}

	w.callbacksMu.Lock()
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.Unlock()

	for _, fn := range callbacks {
		fn(event)
	}

	w.logger.Debug("Emitted event", "path", path, "kind", p.kind)
}

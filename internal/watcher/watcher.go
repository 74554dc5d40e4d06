package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchSubscription means the root could not be watched. Scanning and
// serving are unaffected.
var ErrWatchSubscription = errors.New("watch subscription failed")

// DefaultDebounce is how long a path must stay quiet before it is ingested.
const DefaultDebounce = 10 * time.Second

// Catalog is what the watcher reads and writes. Ingests and removals use it
// from different goroutines, so it must be safe for concurrent use;
// *database.Database is.
type Catalog interface {
	indexer.Catalog
	FindFolder(ctx context.Context, absDir string) (*database.Folder, error)
	RemoveByPath(ctx context.Context, sourcePath string) (*database.Removal, error)
}

// Config configures a Watcher.
type Config struct {
	Root       string
	Extensions mediatypes.ExtensionSet
	Debounce   time.Duration

	// SkipHidden ignores dotfiles and dot-directories, matching the scan.
	SkipHidden bool
}

// Watcher applies filesystem changes under the root to the catalog as they
// happen: created or modified files are ingested once quiet, removed or
// renamed ones are dropped from the catalog immediately.
type Watcher struct {
	config   Config
	catalog  Catalog
	ingester *indexer.Ingester

	mu         sync.Mutex
	watching   bool
	fsw        *fsnotify.Watcher
	pending    map[string]*pendingEvent
	ready      chan string
	stopping   chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
	watchCount int
}

type pendingEvent struct {
	timer *time.Timer
}

// New creates an idle Watcher.
func New(catalog Catalog, ingester *indexer.Ingester, config Config) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	return &Watcher{config: config, catalog: catalog, ingester: ingester}
}

// Start subscribes to the root and every directory below it, hidden ones
// only when SkipHidden is off, and begins processing events. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return fmt.Errorf("%w: %v", ErrWatchSubscription, err)
	}
	if err := fsw.Add(w.config.Root); err != nil {
		metrics.WatcherErrors.Inc()
		if closeErr := fsw.Close(); closeErr != nil {
			logging.Warn("Failed to close file watcher: %v", closeErr)
		}
		return fmt.Errorf("%w: %s: %v", ErrWatchSubscription, w.config.Root, err)
	}

	w.fsw = fsw
	w.watchCount = 1 + w.addDirectories(w.config.Root, false)
	metrics.WatcherWatchedDirectories.Set(float64(w.watchCount))

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.pending = make(map[string]*pendingEvent)
	w.ready = make(chan string, 64)
	w.stopping = make(chan struct{})
	w.done = make(chan struct{})
	w.watching = true

	go w.loop(loopCtx, fsw, w.ready, w.done)

	logging.Info("File watcher started, watching %d directories (debounce %v)", w.watchCount, w.config.Debounce)
	return nil
}

// Stop cancels pending debounce timers, closes the subscription and waits for
// the event loop to exit. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return
	}
	w.watching = false
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	metrics.WatcherPendingDebounce.Set(0)
	close(w.stopping)
	w.cancel()
	fsw, done := w.fsw, w.done
	w.mu.Unlock()

	if err := fsw.Close(); err != nil {
		logging.Warn("Failed to close file watcher: %v", err)
	}
	<-done
	metrics.WatcherWatchedDirectories.Set(0)
	logging.Info("File watcher stopped")
}

// IsWatching reports whether the watcher is running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Pending returns the number of paths waiting for their debounce timer.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// addDirectories watches every directory below dir, and dir itself when
// includeSelf is set. Callers hold w.mu.
func (w *Watcher) addDirectories(dir string, includeSelf bool) int {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Cannot watch %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path == dir && !includeSelf {
			return nil
		}
		if w.config.SkipHidden && strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logging.Warn("Failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		logging.Error("Failed to walk %s for watcher: %v", dir, err)
		metrics.WatcherErrors.Inc()
	}
	return added
}

// loop handles subscription events. Quiet paths are ingested on a goroutine
// of their own so that a slow ingest never holds up a removal.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, ready <-chan string, done chan<- struct{}) {
	ingesting := make(chan struct{})
	go w.ingestLoop(ctx, ready, ingesting)
	defer func() {
		<-ingesting
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) ingestLoop(ctx context.Context, ready <-chan string, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-ready:
			w.ingest(ctx, path)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if w.isHidden(event.Name) {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if !w.config.Extensions.Matches(event.Name) {
			return
		}
		w.cancelPending(event.Name)
		w.remove(ctx, event.Name)

	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Op&fsnotify.Create != 0 {
				w.watchNewDirectory(event.Name)
			}
			return
		}
		if !w.config.Extensions.Matches(event.Name) {
			return
		}
		w.schedule(event.Name)
	}
}

func (w *Watcher) watchNewDirectory(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}
	added := w.addDirectories(dir, true)
	w.watchCount += added
	metrics.WatcherWatchedDirectories.Set(float64(w.watchCount))
	logging.Debug("Added %d new directories to watcher under %s", added, dir)
}

// schedule starts or restarts the debounce timer of path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	p := &pendingEvent{}
	p.timer = time.AfterFunc(w.config.Debounce, func() { w.fire(path, p) })
	w.pending[path] = p
	metrics.WatcherPendingDebounce.Set(float64(len(w.pending)))
}

// fire hands a quiet path to the event loop unless its timer was replaced or
// cancelled in the meantime.
func (w *Watcher) fire(path string, p *pendingEvent) {
	w.mu.Lock()
	if !w.watching || w.pending[path] != p {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	metrics.WatcherPendingDebounce.Set(float64(len(w.pending)))
	ready, stopping := w.ready, w.stopping
	w.mu.Unlock()

	select {
	case ready <- path:
	case <-stopping:
	}
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
		metrics.WatcherPendingDebounce.Set(float64(len(w.pending)))
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		logging.Debug("Dropping %s, gone before ingest: %v", path, err)
		metrics.WatcherDropped.WithLabelValues("vanished").Inc()
		return
	}

	folder, err := w.catalog.FindFolder(ctx, filepath.Dir(path))
	if err != nil {
		if errors.Is(err, database.ErrFolderNotFound) {
			logging.Debug("Dropping %s, folder not cataloged", path)
			metrics.WatcherDropped.WithLabelValues("no_folder").Inc()
			return
		}
		logging.Warn("Dropping %s: %v", path, err)
		metrics.WatcherDropped.WithLabelValues("folder_error").Inc()
		return
	}

	outcome, err := w.ingester.Ingest(context.WithoutCancel(ctx), w.catalog, indexer.WorkItem{Path: path, FolderID: folder.ID})
	metrics.IngestItemsTotal.WithLabelValues("watch", outcome.String()).Inc()
	if err != nil {
		logging.Warn("Failed to ingest %s: %v", path, err)
		return
	}
	logging.Debug("Watcher ingested %s (%s)", path, outcome)

	// A removal handled while the ingest ran found no row to delete.
	if outcome == indexer.OutcomeInserted {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logging.Debug("%s vanished during ingest", path)
			w.remove(ctx, path)
		}
	}
}

func (w *Watcher) remove(ctx context.Context, path string) {
	removal, err := w.catalog.RemoveByPath(context.WithoutCancel(ctx), path)
	if err != nil {
		logging.Error("Failed to remove %s from catalog: %v", path, err)
		return
	}
	if !removal.Removed {
		return
	}

	for _, f := range removal.OrphanedFiles {
		err := os.Remove(f)
		switch {
		case err == nil:
			metrics.OrphanFilesRemoved.WithLabelValues("removed").Inc()
		case errors.Is(err, os.ErrNotExist):
			metrics.OrphanFilesRemoved.WithLabelValues("missing").Inc()
		default:
			metrics.OrphanFilesRemoved.WithLabelValues("error").Inc()
			logging.Warn("Failed to remove derivative %s: %v", f, err)
		}
	}
	logging.Info("Removed %s from catalog", path)
}

// isHidden reports whether SkipHidden is set and any component of path below
// the root starts with a dot.
func (w *Watcher) isHidden(path string) bool {
	if !w.config.SkipHidden {
		return false
	}
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// eventType returns a string representation of the fsnotify operation
func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}

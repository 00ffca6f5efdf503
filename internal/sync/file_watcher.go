package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultIgnoreTimeout   = 2 * time.Second
	DefaultSettleTimeout   = 500 * time.Millisecond
	eventBufferSize        = 256
	defaultCleanupInterval = 15 * time.Second
)

// FilterCallback returns true for paths the watcher should drop
type FilterCallback func(path string) bool

// FileWatcher watches a directory tree and emits batches of changed paths
// once the tree has been quiet for the settle timeout.
type FileWatcher struct {
	watchDir      string
	settleTimeout time.Duration
	rawEvents     chan notify.EventInfo
	batches       chan []string
	done          chan struct{}
	wg            sync.WaitGroup

	ignore   map[string]time.Time
	ignoreMu sync.Mutex

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	filter FilterCallback
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:      watchDir,
		settleTimeout: DefaultSettleTimeout,
		done:          make(chan struct{}),
		ignore:        make(map[string]time.Time),
		pending:       make(map[string]struct{}),
	}
}

// SetSettleTimeout sets how long the tree must be quiet before a batch is emitted
func (fw *FileWatcher) SetSettleTimeout(timeout time.Duration) {
	fw.settleTimeout = timeout
}

// FilterPaths drops raw events before they are batched
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.filter = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.batches = make(chan []string, 1)

	recursive := filepath.Join(fw.watchDir, "...")
	if err := notify.Watch(recursive, fw.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(2)
	go fw.collect(ctx)
	go fw.cleanupExpired(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()

	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	slog.Info("file watcher stopped")
}

// Batches delivers the changed paths of each quiet period
func (fw *FileWatcher) Batches() <-chan []string {
	return fw.batches
}

// Ignore drops the events for path until DefaultIgnoreTimeout has passed.
// Used for writes made by the sync itself.
func (fw *FileWatcher) Ignore(path string) {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.ignore[path] = time.Now().Add(DefaultIgnoreTimeout)
}

func (fw *FileWatcher) ignored(path string) bool {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()

	expiry, ok := fw.ignore[path]
	return ok && time.Now().Before(expiry)
}

func (fw *FileWatcher) collect(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			path := event.Path()
			if fw.filter != nil && fw.filter(path) {
				continue
			}
			if fw.ignored(path) {
				slog.Debug("file watcher ignored", "path", path)
				continue
			}
			fw.add(path)
		}
	}
}

func (fw *FileWatcher) add(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.pending[path] = struct{}{}
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.settleTimeout, fw.flush)
}

func (fw *FileWatcher) flush() {
	fw.mu.Lock()
	if len(fw.pending) == 0 {
		fw.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(fw.pending))
	for p := range fw.pending {
		paths = append(paths, p)
	}
	fw.pending = make(map[string]struct{})
	fw.timer = nil
	fw.mu.Unlock()

	slices.Sort(paths)

	select {
	case fw.batches <- paths:
		slog.Debug("file watcher batch", "paths", len(paths))
	case <-fw.done:
	default:
		// a batch is already waiting, the next run will pick these up too
		slog.Debug("file watcher batch coalesced", "paths", len(paths))
	}
}

func (fw *FileWatcher) cleanupExpired(ctx context.Context) {
	defer fw.wg.Done()

	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case <-ticker.C:
			now := time.Now()
			fw.ignoreMu.Lock()
			for path, expiry := range fw.ignore {
				if now.After(expiry) {
					delete(fw.ignore, path)
				}
			}
			fw.ignoreMu.Unlock()
		}
	}
}

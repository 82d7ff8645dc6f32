package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher re-ingests source files when they are created or written.
type Watcher struct {
	ingester *Ingester
	dir      string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time

	// OnIngest, when set, is called after each re-ingest attempt.
	OnIngest func(path string, chunks int, err error)
}

// NewWatcher creates a Watcher for dir.
func NewWatcher(ingester *Ingester, dir string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		ingester: ingester,
		dir:      dir,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
		logger:   logger,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run processes events until ctx is done, then closes the watcher. A file
// is re-ingested once it has been quiet for the debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	w.logger.Info("watching for document changes", zap.String("dir", w.dir))

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if w.ingester.Supported(event.Name) {
				w.touch(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.reingest(ctx, path)
			}
		}
	}
}

func (w *Watcher) reingest(ctx context.Context, path string) {
	n, err := w.ingester.IngestFile(ctx, path)
	if err != nil {
		w.logger.Warn("re-ingest failed", zap.String("path", path), zap.Error(err))
	} else {
		w.logger.Info("re-ingested document", zap.String("path", path), zap.Int("chunks", n))
	}
	if w.OnIngest != nil {
		w.OnIngest(path, n, err)
	}
}

func (w *Watcher) touch(path string) {
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// settled removes and returns the paths quiet for at least the debounce window.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}

// SetDebounce changes the quiet period before a changed file is re-ingested.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

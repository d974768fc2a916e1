// 定义目录变更监听器实现。
//
// 以轮询方式比较目录内文件的修改时间与大小，
// 合并防抖窗口内的变更后批量触发回调。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file change event
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval sets how often the directory is scanned.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounceDelay sets the quiet period after the last change before
// callbacks run.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithExtensions limits the watch to files with these extensions.
func WithExtensions(exts ...string) WatcherOption {
	return func(w *FileWatcher) { w.exts = exts }
}

// FileWatcher polls a directory and reports batches of changed files.
type FileWatcher struct {
	dir      string
	interval time.Duration
	debounce time.Duration
	exts     []string
	logger   *zap.Logger

	mu        sync.Mutex
	callbacks []func([]FileEvent)
	state     map[string]fileStamp
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewFileWatcher creates a watcher for dir. It watches definition files
// (.yaml, .yml, .json) unless WithExtensions says otherwise.
func NewFileWatcher(dir string, opts ...WatcherOption) *FileWatcher {
	w := &FileWatcher{
		dir:      dir,
		interval: time.Second,
		debounce: 200 * time.Millisecond,
		exts:     []string{".yaml", ".yml", ".json"},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "definitions_watcher"), zap.String("dir", dir))
	return w
}

// OnChange registers a callback for change batches. Callbacks run on the
// watcher goroutine, one batch at a time.
func (w *FileWatcher) OnChange(callback func([]FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start records the current directory state and begins polling.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("watcher already running")
	}

	state, err := w.scan()
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	w.state = state

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	w.logger.Info("definitions watcher started",
		zap.Duration("interval", w.interval),
		zap.Duration("debounce", w.debounce),
		zap.Int("files", len(state)))
	return nil
}

// Stop halts polling and waits for an in-progress callback to return.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("definitions watcher stopped")
}

// IsRunning returns whether the watcher is running
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *FileWatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	pending := make(map[string]FileEvent)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events := w.poll()
			if len(events) == 0 {
				continue
			}
			for _, e := range events {
				pending[e.Path] = e
			}
			debounce.Reset(w.debounce)
		case <-debounce.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]FileEvent, 0, len(pending))
			for _, e := range pending {
				batch = append(batch, e)
			}
			slices.SortFunc(batch, func(a, b FileEvent) int { return strings.Compare(a.Path, b.Path) })
			clear(pending)
			w.dispatch(batch)
		}
	}
}

func (w *FileWatcher) poll() []FileEvent {
	next, err := w.scan()
	if err != nil {
		w.logger.Warn("definitions scan failed", zap.Error(err))
		return nil
	}

	w.mu.Lock()
	prev := w.state
	w.state = next
	w.mu.Unlock()

	return diffStates(prev, next, time.Now())
}

func (w *FileWatcher) dispatch(batch []FileEvent) {
	w.mu.Lock()
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()

	w.logger.Debug("dispatching definition changes", zap.Int("events", len(batch)))
	for _, cb := range callbacks {
		cb(batch)
	}
}

// scan stats every watched file in the directory. A missing directory reads
// as empty so that it can be created later.
func (w *FileWatcher) scan() (map[string]fileStamp, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]fileStamp{}, nil
		}
		return nil, err
	}
	out := make(map[string]fileStamp, len(entries))
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(w.exts, filepath.Ext(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[filepath.Join(w.dir, e.Name())] = fileStamp{modTime: info.ModTime(), size: info.Size()}
	}
	return out, nil
}

func diffStates(prev, next map[string]fileStamp, now time.Time) []FileEvent {
	var events []FileEvent
	for path, stamp := range next {
		old, ok := prev[path]
		switch {
		case !ok:
			events = append(events, FileEvent{Path: path, Op: FileOpCreate, Timestamp: now})
		case !stamp.modTime.Equal(old.modTime) || stamp.size != old.size:
			events = append(events, FileEvent{Path: path, Op: FileOpWrite, Timestamp: now})
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			events = append(events, FileEvent{Path: path, Op: FileOpRemove, Timestamp: now})
		}
	}
	return events
}

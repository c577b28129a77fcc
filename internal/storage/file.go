package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// DefaultWatchDebounce coalesces bursts of filesystem events before the
// file store re-reads its document.
const DefaultWatchDebounce = 300 * time.Millisecond

// File persists the task list as a delimited markdown block embedded inside
// a larger text file, preserving all content outside the block. External
// edits to the file are detected via fsnotify, debounced, and surfaced to
// subscribers only when the parsed content actually differs from the last
// known state.
type File struct {
	path     string
	debounce time.Duration
	logger   pslog.Logger

	mu     sync.Mutex
	last   todo.TaskList
	closed bool

	hub     subscriberHub
	watcher *fsnotify.Watcher
	timerMu sync.Mutex
	timer   *time.Timer
	done    chan struct{}
}

var _ Store = (*File)(nil)

// FileOption tunes file store construction.
type FileOption func(*File)

// WithWatchDebounce overrides the external-edit debounce window.
func WithWatchDebounce(d time.Duration) FileOption {
	return func(f *File) {
		if d > 0 {
			f.debounce = d
		}
	}
}

// NewFile opens (or prepares to create) the document at path and starts the
// filesystem watcher. The parent directory must exist.
func NewFile(path string, logger pslog.Logger, opts ...FileOption) (*File, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve %q: %w", path, err)
	}
	f := &File{
		path:     abs,
		debounce: DefaultWatchDebounce,
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.last = f.readDocument()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("storage: create file watcher: %w", err)
	}
	// Watch the directory, not the file: editors commonly replace the file
	// via rename, which drops per-file watches.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("storage: watch %q: %w", filepath.Dir(abs), err)
	}
	f.watcher = watcher
	go f.watchLoop()
	return f, nil
}

// Path returns the absolute document path.
func (f *File) Path() string {
	return f.path
}

// Close stops the watcher. The store remains readable from its last state.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	close(f.done)
	f.timerMu.Lock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.timerMu.Unlock()
	return f.watcher.Close()
}

// Load returns the last known list. Parse failures never surface to the
// caller; a corrupt document degraded to an empty default list at read time.
func (f *File) Load() (todo.TaskList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last.Clone(), nil
}

// Save rewrites the delimited block inside the document, preserving the
// surrounding content, then notifies subscribers. Write failures propagate.
func (f *File) Save(list todo.TaskList) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	document := ""
	if raw, err := os.ReadFile(f.path); err == nil {
		document = string(raw)
	} else if !os.IsNotExist(err) {
		f.mu.Unlock()
		return fmt.Errorf("storage: read %q: %w", f.path, err)
	}
	rendered := todo.RenderDocument(document, list)
	if err := writeFileAtomic(f.path, []byte(rendered)); err != nil {
		f.mu.Unlock()
		return err
	}
	f.last = list.Clone()
	snapshot := f.last.Clone()
	f.mu.Unlock()
	f.hub.notify(snapshot)
	return nil
}

// Clear replaces the block with an empty default-titled list.
func (f *File) Clear() error {
	return f.Save(todo.NewTaskList())
}

// Subscribe registers a change callback covering both saves and detected
// external edits.
func (f *File) Subscribe(fn Subscriber) Unsubscribe {
	return f.hub.add(fn)
}

func (f *File) watchLoop() {
	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			f.scheduleReload()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("todo file watcher error", "path", f.path, "error", err)
		}
	}
}

// scheduleReload resets the single pending debounce timer.
func (f *File) scheduleReload() {
	f.timerMu.Lock()
	defer f.timerMu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.debounce, f.reload)
}

// reload re-reads the document and notifies only when the parsed content
// differs from the last known state, which keeps the store's own saves from
// echoing back through the watcher.
func (f *File) reload() {
	select {
	case <-f.done:
		return
	default:
	}
	parsed := f.readDocument()
	f.mu.Lock()
	if parsed.Equal(f.last) {
		f.mu.Unlock()
		return
	}
	f.last = parsed.Clone()
	snapshot := f.last.Clone()
	f.mu.Unlock()
	f.logger.Debug("todo file changed externally", "path", f.path, "tasks", len(snapshot.Tasks))
	f.hub.notify(snapshot)
}

// readDocument loads and parses the document, degrading to an empty default
// list on any failure. Errors are logged, never returned.
func (f *File) readDocument() todo.TaskList {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("read todo file failed, starting empty", "path", f.path, "error", err)
		}
		return todo.NewTaskList()
	}
	list, ok := todo.ExtractDocument(string(raw))
	if !ok {
		return todo.NewTaskList()
	}
	return list
}

// writeFileAtomic writes via a temp file and rename so concurrent readers
// never observe a torn document.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: replace %q: %w", path, err)
	}
	return nil
}

// Package watch reruns a build whenever its inputs change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/appshelf/internal/logfields"
)

// DefaultDebounce is the quiet period after the last change before a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// BuildFunc runs one full build.
type BuildFunc func(ctx context.Context) error

// Options configure a Watcher.
type Options struct {
	// Dirs are watched recursively; directories created later are added.
	Dirs []string
	// Files are watched through their parent directory.
	Files []string
	// Ignore lists directories whose events never trigger a rebuild.
	Ignore   []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher runs a build, then rebuilds on every settled burst of changes.
type Watcher struct {
	opts    Options
	build   BuildFunc
	logger  *slog.Logger
	fs      *fsnotify.Watcher
	files   map[string]bool
	ignore  []string
	rebuild chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher. Every directory must exist.
func New(opts Options, build BuildFunc) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		opts:    opts,
		build:   build,
		logger:  logger,
		fs:      fsw,
		files:   make(map[string]bool),
		rebuild: make(chan struct{}, 1),
	}
	for _, dir := range opts.Ignore {
		w.ignore = append(w.ignore, absPath(dir))
	}
	for _, dir := range opts.Dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			_ = fsw.Close()
			if err == nil {
				err = fmt.Errorf("%s is not a directory", dir)
			}
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		w.addRecursive(absPath(dir))
	}
	for _, f := range opts.Files {
		abs := absPath(f)
		w.files[abs] = true
		if err := fsw.Add(filepath.Dir(abs)); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
		}
	}
	return w, nil
}

// Run builds once, then rebuilds after changes until ctx is canceled.
// Build errors are logged and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()
	defer w.stopTimer()

	w.runBuild(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.rebuild:
				w.logger.Info("Change detected; rebuilding")
				w.runBuild(ctx)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				<-done
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				<-done
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) runBuild(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.build(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("Build failed", logfields.Error(err))
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !w.relevant(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addRecursive(ev.Name)
		}
	}
	w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	w.trigger()
}

// relevant filters editor noise, ignored directories, and siblings of
// individually watched files.
func (w *Watcher) relevant(path string) bool {
	if shouldIgnoreEvent(path) {
		return false
	}
	for _, dir := range w.ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return false
		}
	}
	if w.files[path] {
		return true
	}
	for _, dir := range w.opts.Dirs {
		dir = absPath(dir)
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// trigger restarts the debounce timer. A request raised while a build runs
// is queued once.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, func() {
		select {
		case w.rebuild <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if shouldIgnoreEvent(path) && path != root {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// shouldIgnoreEvent reports hidden, swap and lock files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swx"):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case base == "Thumbs.db", base == "4913":
		return true
	}
	return false
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

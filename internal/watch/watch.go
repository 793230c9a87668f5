// Package watch monitors the build root for file changes and translates
// them into graph invalidations. Changes are debounced so a burst of
// writes from an editor or generator invalidates once.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/invalidation"
)

// DefaultDebounce is the quiet period required before a batch of file
// changes is applied to the graph.
const DefaultDebounce = 250 * time.Millisecond

var defaultIgnores = []string{".git", ".hg", ".idea", "node_modules", "*.swp", "*.tmp"}

// InvalidatedFunc is called after a batch of changes has been applied,
// with the addresses whose containing directories changed.
type InvalidatedFunc func(ctx context.Context, changed []addr.Address)

// Option adjusts watcher behavior.
type Option func(*Watcher)

// Debounce overrides the quiet period.
func Debounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// OnInvalidated registers a callback fired after each applied batch.
func OnInvalidated(fn InvalidatedFunc) Option {
	return func(w *Watcher) { w.onInvalidated = fn }
}

// Ignore appends basename patterns to skip, in filepath.Match syntax.
func Ignore(patterns ...string) Option {
	return func(w *Watcher) { w.ignores = append(w.ignores, patterns...) }
}

// Watcher owns an fsnotify watcher over the build root and drives the
// invalidation tracker from observed changes.
type Watcher struct {
	root          string
	graph         *graph.Graph
	tracker       *invalidation.Tracker
	fsw           *fsnotify.Watcher
	debounce      time.Duration
	ignores       []string
	onInvalidated InvalidatedFunc

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher rooted at the build root directory. Spec paths
// of graph targets are interpreted relative to root when mapping changed
// files back to addresses.
func New(root string, g *graph.Graph, tracker *invalidation.Tracker, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		graph:    g,
		tracker:  tracker,
		fsw:      fsw,
		debounce: DefaultDebounce,
		ignores:  append([]string(nil), defaultIgnores...),
		changes:  make(chan string, 1024),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching the root and all its subdirectories. It returns
// once the watches are established; processing continues in background
// goroutines until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	ctxlog.FromContext(ctx).Info("watching for file changes", "root", w.root, "debounce", w.debounce)
	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.ignores {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				logger.Warn("change buffer full, dropping event", "path", event.Name)
			}
			// New directories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var (
		pending = map[string]struct{}{}
		timer   *time.Timer
		fire    <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.changes:
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			pending = map[string]struct{}{}
			fire = nil
			w.apply(ctx, batch)
		}
	}
}

// apply maps changed file paths to the graph targets whose spec
// directories contain them, then invalidates those targets and their
// transitive dependents.
func (w *Watcher) apply(ctx context.Context, paths []string) {
	logger := ctxlog.FromContext(ctx)

	changed := w.affectedAddresses(paths)
	if len(changed) == 0 {
		logger.Debug("file changes matched no targets", "paths", len(paths))
		return
	}

	w.tracker.InvalidateTransitively(ctx, changed)
	logger.Info("invalidated targets after file changes",
		"paths", len(paths), "targets", len(changed))

	if w.onInvalidated != nil {
		w.onInvalidated(ctx, changed)
	}
}

func (w *Watcher) affectedAddresses(paths []string) []addr.Address {
	dirs := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if spec, ok := w.specPathOf(p); ok {
			dirs[spec] = struct{}{}
		}
	}
	if len(dirs) == 0 {
		return nil
	}

	var changed []addr.Address
	for _, t := range w.graph.Targets(nil) {
		if _, ok := dirs[t.Address.SpecPath]; ok {
			changed = append(changed, t.Address)
		}
	}
	return changed
}

// specPathOf converts an absolute changed path into a spec path relative
// to the build root. The root itself maps to the empty spec path.
func (w *Watcher) specPathOf(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, filepath.Dir(path))
	if err != nil || rel == ".." || filepath.IsAbs(rel) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	if len(rel) >= 3 && rel[:3] == "../" {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

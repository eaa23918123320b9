// Package watcher reports changes to the entries of a set of directories.
//
// It uses fsnotify where available and falls back to polling directory
// modification times on remote filesystems, when fsnotify cannot be set up,
// or when ARBOR_FORCE_POLL is set. Bursts of events for one directory are
// debounced into a single notification carrying the directory path.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// changeBuffer is the capacity of the Changed channel. Notifications beyond
// it are dropped; the receiver refreshes by path so a dropped duplicate
// loses nothing.
const changeBuffer = 64

// detectFilesystemTypeFunc is swapped out by tests.
var detectFilesystemTypeFunc = DetectFilesystemType

// Common errors.
var (
	ErrDirRemoved     = errors.New("watched directory was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDuration = d
	}
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithOnChange sets the callback invoked with the directory that changed.
func WithOnChange(fn func(dir string)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

type watchedDir struct {
	debouncer *Debouncer
	mtime     time.Time
}

// Watcher monitors directories for added, removed, or renamed entries.
type Watcher struct {
	root             string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func(string)
	onError          func(error)
	forcePoll        bool
	fsType           FilesystemType

	fsWatcher   *fsnotify.Watcher
	useFallback bool
	dirs        map[string]*watchedDir

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan string
}

// NewWatcher creates a watcher rooted at root. The root is watched once the
// watcher starts; subdirectories are added with Add. root also decides the
// filesystem classification.
func NewWatcher(root string, opts ...WatcherOption) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:             absRoot,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func(string) {},
		onError:          func(error) {},
		dirs:             make(map[string]*watchedDir),
		changeCh:         make(chan string, changeBuffer),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.dirs[absRoot] = w.newWatchedDir(absRoot)
	return w, nil
}

func (w *Watcher) newWatchedDir(dir string) *watchedDir {
	wd := &watchedDir{debouncer: NewDebouncer(w.debounceDuration)}
	if info, err := os.Stat(dir); err == nil {
		wd.mtime = info.ModTime()
	}
	return wd
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	if _, err := os.Stat(w.root); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("watch %s: %w", w.root, ErrPermission)
		}
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.fsType = detectFilesystemTypeFunc(w.root)
	w.useFallback = w.forcePoll || envBool("ARBOR_FORCE_POLL") || isRemoteFilesystem(w.fsType)

	if !w.useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.useFallback = true
		} else {
			for dir := range w.dirs {
				if err := fsw.Add(dir); err != nil {
					w.onError(fmt.Errorf("watch %s: %w", dir, err))
				}
			}
			w.fsWatcher = fsw
			go w.watchFsnotify()
		}
	}

	if w.useFallback {
		go w.watchPolling()
	}

	w.started = true
	return nil
}

// Stop stops watching. The Changed channel is left open so a goroutine
// blocked on it is released by process exit rather than by a spurious
// receive.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}

	if w.cancel != nil {
		w.cancel()
	}

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}

	for _, wd := range w.dirs {
		wd.debouncer.Cancel()
	}
	w.started = false
}

// Add starts watching dir. Adding a directory twice is a no-op.
func (w *Watcher) Add(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[abs]; ok {
		return nil
	}
	if w.fsWatcher != nil {
		if err := w.fsWatcher.Add(abs); err != nil {
			if os.IsPermission(err) {
				return fmt.Errorf("watch %s: %w", abs, ErrPermission)
			}
			return fmt.Errorf("watch %s: %w", abs, err)
		}
	}
	w.dirs[abs] = w.newWatchedDir(abs)
	return nil
}

// Remove stops watching dir. Removing the root or an unknown directory is a
// no-op.
func (w *Watcher) Remove(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(abs)
}

func (w *Watcher) removeLocked(abs string) {
	wd, ok := w.dirs[abs]
	if !ok || abs == w.root {
		return
	}
	wd.debouncer.Cancel()
	delete(w.dirs, abs)
	if w.fsWatcher != nil {
		// The kernel drops the watch itself when the directory is deleted.
		_ = w.fsWatcher.Remove(abs)
	}
}

// Watching reports whether dir is currently watched.
func (w *Watcher) Watching(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.dirs[abs]
	return ok
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed returns a channel that receives the path of each directory whose
// entries changed.
func (w *Watcher) Changed() <-chan string {
	return w.changeCh
}

// Root returns the absolute root directory.
func (w *Watcher) Root() string {
	return w.root
}

// FilesystemType returns the classification of the root's filesystem.
func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

// PollInterval returns the polling interval used when polling mode is active.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// watchFsnotify monitors using fsnotify events.
func (w *Watcher) watchFsnotify() {
	// Capture channel references to avoid racing with Stop() clearing fsWatcher.
	w.mu.RLock()
	if w.fsWatcher == nil {
		w.mu.RUnlock()
		return
	}
	events := w.fsWatcher.Events
	errs := w.fsWatcher.Errors
	ctx := w.ctx
	w.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if _, ok := w.dirs[name]; ok && name != w.root {
			w.removeLocked(name)
			w.mu.Unlock()
			w.onError(fmt.Errorf("%s: %w", name, ErrDirRemoved))
			w.mu.Lock()
		}
	}
	parent := filepath.Dir(name)
	wd, ok := w.dirs[parent]
	w.mu.Unlock()

	if ok {
		wd.debouncer.Trigger(func() { w.notifyChange(parent) })
	}
}

// watchPolling monitors using periodic stat checks of each directory.
func (w *Watcher) watchPolling() {
	w.mu.RLock()
	interval := w.pollInterval
	ctx := w.ctx
	w.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	w.mu.RLock()
	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	w.mu.RUnlock()

	for _, dir := range dirs {
		info, err := os.Stat(dir)

		w.mu.Lock()
		wd, ok := w.dirs[dir]
		if !ok {
			w.mu.Unlock()
			continue
		}
		if err != nil {
			w.removeLocked(dir)
			w.mu.Unlock()
			switch {
			case os.IsNotExist(err):
				w.onError(fmt.Errorf("%s: %w", dir, ErrDirRemoved))
			case os.IsPermission(err):
				w.onError(fmt.Errorf("%s: %w", dir, ErrPermission))
			default:
				w.onError(err)
			}
			continue
		}
		changed := !info.ModTime().Equal(wd.mtime)
		if changed {
			wd.mtime = info.ModTime()
		}
		w.mu.Unlock()

		if changed {
			wd.debouncer.Trigger(func() { w.notifyChange(dir) })
		}
	}
}

// notifyChange invokes the onChange callback and signals the change channel.
func (w *Watcher) notifyChange(dir string) {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()

	// Best effort: a notification racing with Stop() may still slip through.
	if !started {
		return
	}

	w.onChange(dir)

	select {
	case w.changeCh <- dir:
	default:
	}
}

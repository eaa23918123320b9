package ui

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/arbor/pkg/debug"
	"github.com/vanderheijden86/arbor/pkg/loader"
	"github.com/vanderheijden86/arbor/pkg/metrics"
	"github.com/vanderheijden86/arbor/pkg/tree"
	"github.com/vanderheijden86/arbor/pkg/watcher"
)

// FileEntry is the payload of a DirectoryTree node.
type FileEntry struct {
	Path  string
	Name  string
	IsDir bool
}

// CopiedMsg reports the outcome of copying a path to the clipboard.
type CopiedMsg struct {
	Path string
	Err  error
}

// dirLoadedMsg carries a finished listing back into Update. token ties it to
// the request that produced it; a stale token means the result is dropped.
type dirLoadedMsg struct {
	owner   *DirectoryTree
	node    tree.NodeID
	token   uint64
	path    string
	entries []loader.Entry
	err     error
	merge   bool // reconcile with existing children instead of filling
}

// dirChangedMsg is produced by WatchCmd when a watched directory changes.
type dirChangedMsg struct {
	owner *DirectoryTree
	path  string
}

// DirOption configures a DirectoryTree.
type DirOption func(*DirectoryTree)

// WithDirsFirst orders directories before files.
func WithDirsFirst(dirsFirst bool) DirOption {
	return func(d *DirectoryTree) {
		d.dirsFirst = dirsFirst
	}
}

// WithLoadTimeout bounds each listing. Zero means no timeout.
func WithLoadTimeout(timeout time.Duration) DirOption {
	return func(d *DirectoryTree) {
		d.timeout = timeout
	}
}

// WithContext sets the context listings run under. Cancelling it fails
// every outstanding and future listing.
func WithContext(ctx context.Context) DirOption {
	return func(d *DirectoryTree) {
		d.ctx = ctx
	}
}

// WithWatcher reloads loaded directories when w reports them changed. The
// caller starts and stops w.
func WithWatcher(w *watcher.Watcher) DirOption {
	return func(d *DirectoryTree) {
		d.watcher = w
	}
}

// WithClipboard replaces the function used to copy paths.
func WithClipboard(write func(string) error) DirOption {
	return func(d *DirectoryTree) {
		d.copyFn = write
	}
}

// WithDirKeyMap replaces the default key bindings.
func WithDirKeyMap(keys DirKeyMap) DirOption {
	return func(d *DirectoryTree) {
		d.keys = keys
	}
}

// WithControlOptions passes options through to the embedded TreeControl.
func WithControlOptions(opts ...ControlOption[FileEntry]) DirOption {
	return func(d *DirectoryTree) {
		d.controlOpts = append(d.controlOpts, opts...)
	}
}

// DirectoryTree is a TreeControl over a filesystem. Directories are listed
// lazily the first time they are expanded; listings run as tea.Cmds and are
// applied in Update.
type DirectoryTree struct {
	*TreeControl[FileEntry]

	lister      loader.Lister
	keys        DirKeyMap
	ctx         context.Context
	timeout     time.Duration
	dirsFirst   bool
	watcher     *watcher.Watcher
	copyFn      func(string) error
	controlOpts []ControlOption[FileEntry]

	inflight  map[tree.NodeID]uint64
	nextToken uint64
	watched   map[tree.NodeID]string

	// Restored state waiting for its nodes to be loaded.
	pendingExpand map[string]bool
	pendingCursor string
}

// NewDirectoryTree creates a tree rooted at the directory root. The root
// starts expanded; Init issues its first listing. A nil lister lists the
// real filesystem.
func NewDirectoryTree(root string, lister loader.Lister, opts ...DirOption) *DirectoryTree {
	path := filepath.Clean(root)
	if abs, err := filepath.Abs(root); err == nil {
		path = abs
	}
	if lister == nil {
		lister = loader.NewDirLister()
	}

	d := &DirectoryTree{
		lister:        lister,
		keys:          DefaultDirKeyMap(),
		ctx:           context.Background(),
		copyFn:        clipboard.WriteAll,
		inflight:      make(map[tree.NodeID]uint64),
		watched:       make(map[tree.NodeID]string),
		pendingExpand: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}

	base := []ControlOption[FileEntry]{
		WithLeafFunc(func(e FileEntry) bool { return !e.IsDir }),
		WithRootExpanded[FileEntry](true),
		WithKeyMap[FileEntry](d.keys.KeyMap),
		WithExpandHook[FileEntry](d.onExpand),
		WithActivateHook(d.onActivate),
		WithLoadingFunc[FileEntry](d.isLoading),
		WithLabelStyle(d.labelStyle),
	}
	rootEntry := FileEntry{Path: path, Name: filepath.Base(path), IsDir: true}
	d.TreeControl = NewTreeControl(func(e FileEntry) string { return e.Name }, rootEntry, append(base, d.controlOpts...)...)
	d.Store().Listen(d.onChange)
	return d
}

// Path returns the absolute path of the root directory.
func (d *DirectoryTree) Path() string {
	root, ok := d.Root()
	if !ok {
		return ""
	}
	e, _ := d.Store().Data(root)
	return e.Path
}

// Init lists the root and starts listening to the watcher.
func (d *DirectoryTree) Init() tea.Cmd {
	var cmds []tea.Cmd
	if root, ok := d.Root(); ok {
		expanded, _ := d.Store().Expanded(root)
		loaded, _ := d.Store().Loaded(root)
		if expanded && !loaded {
			cmds = append(cmds, d.load(root, false))
		}
	}
	cmds = append(cmds, d.WatchCmd())
	return tea.Batch(cmds...)
}

// Update applies finished listings and watcher notifications, handles the
// directory key bindings, and forwards everything else to the TreeControl.
func (d *DirectoryTree) Update(msg tea.Msg) (*DirectoryTree, tea.Cmd) {
	switch msg := msg.(type) {
	case dirLoadedMsg:
		if msg.owner == d {
			return d, d.applyLoaded(msg)
		}
		return d, nil
	case dirChangedMsg:
		if msg.owner == d {
			return d, tea.Batch(d.reloadChanged(msg.path), d.WatchCmd())
		}
		return d, nil
	case tea.KeyMsg:
		if !d.Focused() {
			return d, nil
		}
		switch {
		case key.Matches(msg, d.keys.Refresh):
			return d, d.RefreshCursor()
		case key.Matches(msg, d.keys.CopyPath):
			return d, d.CopyPath()
		}
	}
	_, cmd := d.TreeControl.Update(msg)
	return d, cmd
}

// KeyMap returns the directory key bindings, for help rendering.
func (d *DirectoryTree) KeyMap() DirKeyMap {
	return d.keys
}

func (d *DirectoryTree) labelStyle(row Row[FileEntry]) lipgloss.Style {
	if row.Data.IsDir {
		return d.theme.DirLabel
	}
	return d.theme.Base
}

func (d *DirectoryTree) isLoading(id tree.NodeID) bool {
	_, ok := d.inflight[id]
	return ok
}

// IsLoading reports whether a listing for id is in flight.
func (d *DirectoryTree) IsLoading(id tree.NodeID) bool {
	return d.isLoading(id)
}

// onChange forgets in-flight listings and watches of removed nodes.
func (d *DirectoryTree) onChange(ch tree.Change) {
	if ch.Kind != tree.ChangeRemoved {
		return
	}
	for _, id := range ch.Removed {
		delete(d.inflight, id)
		if path, ok := d.watched[id]; ok {
			delete(d.watched, id)
			if d.watcher != nil {
				d.watcher.Remove(path)
			}
		}
	}
}

// onExpand issues the first listing of a directory. Expanding a directory
// that is loaded or already loading issues nothing.
func (d *DirectoryTree) onExpand(id tree.NodeID) tea.Cmd {
	loaded, err := d.Store().Loaded(id)
	if err != nil || loaded || d.isLoading(id) {
		return nil
	}
	return d.load(id, false)
}

// onActivate toggles directories and reports files.
func (d *DirectoryTree) onActivate(id tree.NodeID, e FileEntry) ([]Event, tea.Cmd) {
	if e.IsDir {
		cmd, _ := d.Toggle(id)
		return nil, cmd
	}
	return []Event{FileClick{Path: e.Path}}, nil
}

// load starts a listing of id and returns the command that performs it.
func (d *DirectoryTree) load(id tree.NodeID, merge bool) tea.Cmd {
	e, err := d.Store().Data(id)
	if err != nil {
		return nil
	}
	d.nextToken++
	token := d.nextToken
	d.inflight[id] = token
	d.invalidate()

	ctx, lister, timeout, path := d.ctx, d.lister, d.timeout, e.Path
	return func() tea.Msg {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		done := metrics.TimerWithCallback(metrics.DirListing, func(d time.Duration) {
			debug.LogTiming("list "+path, d)
		})
		entries, err := lister.List(ctx, path)
		done()
		return dirLoadedMsg{owner: d, node: id, token: token, path: path, entries: entries, err: err, merge: merge}
	}
}

func (d *DirectoryTree) compareEntries(a, b FileEntry) int {
	if d.dirsFirst && a.IsDir != b.IsDir {
		if a.IsDir {
			return -1
		}
		return 1
	}
	return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Path, b.Path))
}

func (d *DirectoryTree) toEntries(dir string, listed []loader.Entry) []FileEntry {
	out := make([]FileEntry, 0, len(listed))
	for _, e := range listed {
		out = append(out, FileEntry{Path: filepath.Join(dir, e.Name), Name: e.Name, IsDir: e.IsDir})
	}
	slices.SortStableFunc(out, d.compareEntries)
	return out
}

// applyLoaded installs a finished listing. Results for superseded requests,
// removed nodes, or directories collapsed in the meantime are dropped.
func (d *DirectoryTree) applyLoaded(msg dirLoadedMsg) tea.Cmd {
	if tok, ok := d.inflight[msg.node]; !ok || tok != msg.token {
		debug.Log("dirtree: drop stale listing of %s", msg.path)
		return nil
	}
	delete(d.inflight, msg.node)
	d.invalidate()

	s := d.Store()
	if !s.Contains(msg.node) {
		return nil
	}
	if msg.merge {
		return d.merge(msg)
	}
	if expanded, _ := s.Expanded(msg.node); !expanded {
		debug.Log("dirtree: drop listing of collapsed %s", msg.path)
		return nil
	}
	if msg.err != nil {
		_ = s.SetExpanded(msg.node, false)
		lerr := loader.AsListingError(msg.path, msg.err)
		debug.Log("dirtree: %v", lerr)
		return d.obs.emit(ListingFailed{Node: msg.node, Path: msg.path, Err: lerr})
	}

	var cmds []tea.Cmd
	for _, e := range d.toEntries(msg.path, msg.entries) {
		child, err := s.AddChild(msg.node, e)
		if err != nil {
			continue
		}
		if e.IsDir && d.pendingExpand[e.Path] {
			delete(d.pendingExpand, e.Path)
			if cmd, err := d.Expand(child); err == nil && cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		if d.pendingCursor != "" && e.Path == d.pendingCursor {
			if d.SetCursor(child) == nil {
				d.pendingCursor = ""
			}
		}
	}
	_ = s.SetLoaded(msg.node, true)
	d.watch(msg.node, msg.path)
	return tea.Batch(cmds...)
}

// merge reconciles a reloaded listing with the existing children, keeping
// nodes (and their expansion) for entries that are still present. A failed
// reload keeps the current children and reports ListingFailed.
func (d *DirectoryTree) merge(msg dirLoadedMsg) tea.Cmd {
	if msg.err != nil {
		lerr := loader.AsListingError(msg.path, msg.err)
		debug.Log("dirtree: reload: %v", lerr)
		return d.obs.emit(ListingFailed{Node: msg.node, Path: msg.path, Err: lerr})
	}
	s := d.Store()
	fresh := make(map[string]FileEntry, len(msg.entries))
	for _, e := range d.toEntries(msg.path, msg.entries) {
		fresh[e.Name] = e
	}

	children, _ := s.Children(msg.node)
	for _, child := range children {
		e, _ := s.Data(child)
		if f, ok := fresh[e.Name]; ok && f.IsDir == e.IsDir {
			delete(fresh, e.Name)
			continue
		}
		_ = s.Remove(child)
	}
	for _, e := range fresh {
		_, _ = s.AddChild(msg.node, e)
	}
	_ = s.SortChildren(msg.node, d.compareEntries)
	return nil
}

func (d *DirectoryTree) watch(id tree.NodeID, path string) {
	if d.watcher == nil {
		return
	}
	if err := d.watcher.Add(path); err != nil {
		debug.Log("dirtree: watch %s: %v", path, err)
		return
	}
	d.watched[id] = path
}

// WatchCmd waits for the next watcher notification. It returns nil when the
// tree has no watcher.
func (d *DirectoryTree) WatchCmd() tea.Cmd {
	if d.watcher == nil {
		return nil
	}
	ch := d.watcher.Changed()
	return func() tea.Msg {
		path, ok := <-ch
		if !ok {
			return nil
		}
		return dirChangedMsg{owner: d, path: path}
	}
}

// reloadChanged re-lists a loaded directory in place.
func (d *DirectoryTree) reloadChanged(path string) tea.Cmd {
	id, ok := d.NodeForPath(path)
	if !ok || d.isLoading(id) {
		return nil
	}
	if loaded, _ := d.Store().Loaded(id); !loaded {
		return nil
	}
	return d.load(id, true)
}

// Refresh drops id's children and, if the directory is expanded, lists it
// again. A listing already in flight for id is superseded.
func (d *DirectoryTree) Refresh(id tree.NodeID) (tea.Cmd, error) {
	s := d.Store()
	e, err := s.Data(id)
	if err != nil {
		return nil, err
	}
	if !e.IsDir {
		return nil, fmt.Errorf("refresh %s: %w", id, tree.ErrNotExpandable)
	}
	delete(d.inflight, id)
	d.invalidate()
	if err := s.ClearChildren(id); err != nil {
		return nil, err
	}
	_ = s.SetLoaded(id, false)
	if expanded, _ := s.Expanded(id); expanded {
		return d.load(id, false), nil
	}
	return nil, nil
}

// RefreshCursor refreshes the directory under the cursor, or the directory
// containing the file under the cursor.
func (d *DirectoryTree) RefreshCursor() tea.Cmd {
	id, ok := d.Cursor()
	if !ok {
		return nil
	}
	if e, _ := d.Store().Data(id); !e.IsDir {
		parent, ok, _ := d.Store().Parent(id)
		if !ok {
			return nil
		}
		id = parent
	}
	cmd, _ := d.Refresh(id)
	return cmd
}

// CopyPath copies the path under the cursor to the clipboard.
func (d *DirectoryTree) CopyPath() tea.Cmd {
	id, ok := d.Cursor()
	if !ok {
		return nil
	}
	e, err := d.Store().Data(id)
	if err != nil {
		return nil
	}
	write := d.copyFn
	return func() tea.Msg {
		return CopiedMsg{Path: e.Path, Err: write(e.Path)}
	}
}

// splitRel returns the path components of path below the root, or false if
// path lies outside it.
func (d *DirectoryTree) splitRel(path string) ([]string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	rel, err := filepath.Rel(d.Path(), abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	if rel == "." {
		return nil, true
	}
	return strings.Split(rel, string(filepath.Separator)), true
}

// descend follows parts down from the root through loaded nodes. It returns
// the deepest node reached and whether every part was found.
func (d *DirectoryTree) descend(parts []string) (tree.NodeID, bool) {
	s := d.Store()
	cur, ok := s.Root()
	if !ok {
		return tree.NoNode, false
	}
	for _, part := range parts {
		children, _ := s.Children(cur)
		next := tree.NoNode
		for _, c := range children {
			if e, _ := s.Data(c); e.Name == part {
				next = c
				break
			}
		}
		if next == tree.NoNode {
			return cur, false
		}
		cur = next
	}
	return cur, true
}

// NodeForPath returns the node for path if it has been loaded.
func (d *DirectoryTree) NodeForPath(path string) (tree.NodeID, bool) {
	parts, ok := d.splitRel(path)
	if !ok {
		return tree.NoNode, false
	}
	id, found := d.descend(parts)
	return id, found
}

// RevealPath expands the ancestors of an already loaded path and moves the
// cursor onto it. If only a prefix of path is loaded the cursor moves to the
// deepest loaded node and the error wraps tree.ErrNotFound.
func (d *DirectoryTree) RevealPath(path string) (tree.NodeID, error) {
	parts, ok := d.splitRel(path)
	if !ok {
		return tree.NoNode, fmt.Errorf("reveal %s: outside %s: %w", path, d.Path(), tree.ErrNotFound)
	}
	id, found := d.descend(parts)
	if id == tree.NoNode {
		return tree.NoNode, fmt.Errorf("reveal %s: %w", path, tree.ErrNotFound)
	}
	s := d.Store()
	ancestors, _ := s.Ancestors(id)
	for _, a := range ancestors {
		_ = s.SetExpanded(a, true)
	}
	_ = d.SetCursor(id)
	if !found {
		return tree.NoNode, fmt.Errorf("reveal %s: %w", path, tree.ErrNotFound)
	}
	return id, nil
}

// ExpandedPaths returns the paths of every expanded directory, in tree
// order.
func (d *DirectoryTree) ExpandedPaths() []string {
	s := d.Store()
	root, ok := s.Root()
	if !ok {
		return nil
	}
	all, _ := s.Descendants(root)
	var out []string
	for id := range all {
		if expanded, _ := s.Expanded(id); expanded {
			e, _ := s.Data(id)
			out = append(out, e.Path)
		}
	}
	return out
}

// CursorPath returns the path under the cursor.
func (d *DirectoryTree) CursorPath() (string, bool) {
	id, ok := d.Cursor()
	if !ok {
		return "", false
	}
	e, err := d.Store().Data(id)
	return e.Path, err == nil
}

// Restore re-expands the given directories and moves the cursor to cursor as
// their listings arrive. Directories that are already loaded are expanded
// immediately.
func (d *DirectoryTree) Restore(expanded []string, cursor string) tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range expanded {
		if id, ok := d.NodeForPath(p); ok {
			if cmd, err := d.Expand(id); err == nil && cmd != nil {
				cmds = append(cmds, cmd)
			}
			continue
		}
		d.pendingExpand[p] = true
	}
	d.pendingCursor = cursor
	if cursor != "" {
		if id, ok := d.NodeForPath(cursor); ok && d.SetCursor(id) == nil {
			d.pendingCursor = ""
		}
	}
	return tea.Batch(cmds...)
}

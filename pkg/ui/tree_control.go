package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/arbor/pkg/cache"
	"github.com/vanderheijden86/arbor/pkg/debug"
	"github.com/vanderheijden86/arbor/pkg/metrics"
	"github.com/vanderheijden86/arbor/pkg/tree"
)

// ErrNotVisible is returned when an operation needs a node that is present
// but hidden under a collapsed ancestor.
var ErrNotVisible = errors.New("node not visible")

// SelectionPolicy decides what activating a node does to the selection.
type SelectionPolicy int

const (
	SelectNone   SelectionPolicy = iota // activation never selects
	SelectSingle                        // activation selects the activated node
)

const (
	defaultRowCacheSize = 512
	prefixCacheSize     = 64
	wheelStep           = 3
)

// Row is one entry of the visible sequence: a node reachable from the root
// through expanded ancestors only, in depth-first order.
type Row[T any] struct {
	ID          tree.NodeID
	Depth       int
	Data        T
	Expanded    bool
	HasChildren bool
	Expandable  bool // false for leaves
	Loading     bool // children are being fetched
	Last        bool // last child of its parent

	guide string // see guideKey
}

// ControlOption configures a TreeControl.
type ControlOption[T any] func(*TreeControl[T])

// WithLeafFunc sets the predicate deciding, at creation time, which nodes
// can never hold children.
func WithLeafFunc[T any](isLeaf func(T) bool) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.isLeaf = isLeaf
	}
}

// WithSelectionPolicy sets the selection policy. The default is SelectNone.
func WithSelectionPolicy[T any](p SelectionPolicy) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.policy = p
	}
}

// WithTheme sets the theme used by View.
func WithTheme[T any](theme Theme) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.theme = theme
	}
}

// WithKeyMap replaces the default key bindings.
func WithKeyMap[T any](keys KeyMap) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.keys = keys
	}
}

// WithExpandHook installs fn to run every time a node goes from collapsed to
// expanded. The returned command, if any, is handed back to the caller of the
// expanding operation.
func WithExpandHook[T any](fn func(id tree.NodeID) tea.Cmd) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.onExpand = fn
	}
}

// WithActivateHook installs fn to run on every activation, after the
// selection is updated. Events it returns are emitted after the TreeClick.
func WithActivateHook[T any](fn func(id tree.NodeID, data T) ([]Event, tea.Cmd)) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.onActivate = fn
	}
}

// WithLoadingFunc reports which nodes are waiting for their children.
func WithLoadingFunc[T any](fn func(id tree.NodeID) bool) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.loading = fn
	}
}

// WithLabelStyle picks the label style of each row. The default is the
// theme's Base style.
func WithLabelStyle[T any](fn func(row Row[T]) lipgloss.Style) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.labelStyle = fn
	}
}

// WithRootExpanded starts with the root expanded.
func WithRootExpanded[T any](expanded bool) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.rootExpanded = expanded
	}
}

// WithRowCache sets how many rendered rows are memoized. Zero disables the
// cache.
func WithRowCache[T any](size int) ControlOption[T] {
	return func(c *TreeControl[T]) {
		c.rowCacheSize = size
	}
}

// rowKey identifies a rendered row. rev changes whenever the node's payload,
// flags, or child list change; the guide and flags cover everything else
// that affects the output.
type rowKey struct {
	id    tree.NodeID
	rev   uint64
	guide string
	flags uint8
	width int
}

const (
	flagCursor uint8 = 1 << iota
	flagHover
	flagSelected
	flagLoading
	flagFocused
)

// TreeControl is a generic, keyboard and mouse driven tree widget backed by
// a tree.Store. It is a bubbletea sub-model: feed it messages with Update and
// draw it with View.
type TreeControl[T any] struct {
	store *tree.Store[T]

	label        func(T) string
	isLeaf       func(T) bool
	policy       SelectionPolicy
	theme        Theme
	keys         KeyMap
	onExpand     func(tree.NodeID) tea.Cmd
	onActivate   func(tree.NodeID, T) ([]Event, tea.Cmd)
	loading      func(tree.NodeID) bool
	labelStyle   func(Row[T]) lipgloss.Style
	rootExpanded bool
	rowCacheSize int

	// Visible sequence, valid while builtAt equals the store version.
	rows    []Row[T]
	index   map[tree.NodeID]int
	builtAt uint64
	built   bool

	cursor   tree.NodeID
	selected tree.NodeID
	hover    tree.NodeID

	offset  int // index of the first rendered row
	width   int
	height  int
	x, y    int // screen position, for mouse hit testing
	focused bool

	rowCache *cache.LRU[rowKey, string]
	prefixes *cache.FIFO[string, string]

	obs      observers
	unlisten func()
}

// NewTreeControl creates a control whose store holds a single root carrying
// data. label renders a payload as the row text; nil uses fmt.Sprint.
func NewTreeControl[T any](label func(T) string, data T, opts ...ControlOption[T]) *TreeControl[T] {
	if label == nil {
		label = func(v T) string { return fmt.Sprint(v) }
	}
	c := &TreeControl[T]{
		label:        label,
		theme:        DefaultTheme(lipgloss.DefaultRenderer()),
		keys:         DefaultKeyMap(),
		rowCacheSize: defaultRowCacheSize,
		index:        make(map[tree.NodeID]int),
		focused:      true,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = tree.NewStore(c.isLeaf)
	root, _ := c.store.CreateRoot(data) // a fresh store has no root yet
	if c.rootExpanded {
		// Fails only for a leaf root, which then simply stays collapsed.
		_ = c.store.SetExpanded(root, true)
	}
	c.unlisten = c.store.Listen(c.onChange)

	if c.rowCacheSize > 0 {
		c.rowCache = cache.NewLRU[rowKey, string](c.rowCacheSize)
	}
	c.prefixes = cache.NewFIFO(prefixCacheSize, func(key string) string {
		return c.theme.Guide.Render(guidePrefix(key))
	})
	return c
}

// Store returns the underlying node store. Mutations made through it are
// picked up by the control on its next query.
func (c *TreeControl[T]) Store() *tree.Store[T] {
	return c.store
}

// Root returns the root node, if the store still has one.
func (c *TreeControl[T]) Root() (tree.NodeID, bool) {
	return c.store.Root()
}

// Subscribe registers fn to receive every event the control emits. Events
// are delivered synchronously, before the emitting call returns.
func (c *TreeControl[T]) Subscribe(fn func(Event)) (cancel func()) {
	return c.obs.subscribe(fn)
}

// onChange keeps cursor, selection, and hover off removed nodes. The cursor
// moves to the surviving parent of the removed subtree; ensureRows later
// lifts it further if that parent is hidden.
func (c *TreeControl[T]) onChange(ch tree.Change) {
	if ch.Kind != tree.ChangeRemoved {
		return
	}
	for _, id := range ch.Removed {
		if id == c.cursor {
			c.cursor = ch.Parent
		}
		if id == c.selected {
			c.selected = tree.NoNode
		}
		if id == c.hover {
			c.hover = tree.NoNode
		}
	}
}

type frame struct {
	id   tree.NodeID
	last bool
}

// ensureRows rebuilds the visible sequence if the store changed since it was
// last built.
func (c *TreeControl[T]) ensureRows() {
	if c.built && c.builtAt == c.store.Version() {
		return
	}
	c.rebuild()
}

// invalidate forces a rebuild on the next query, for state that lives
// outside the store such as the loading probe.
func (c *TreeControl[T]) invalidate() {
	c.built = false
}

func (c *TreeControl[T]) rebuild() {
	defer metrics.Timer(metrics.TreeRebuild)()
	c.rows = c.rows[:0]
	clear(c.index)

	if root, ok := c.store.Root(); ok {
		seq, err := c.store.Walk(root)
		if err == nil {
			var stack []frame
			for id := range seq {
				parent, _, _ := c.store.Parent(id)
				for len(stack) > 0 && stack[len(stack)-1].id != parent {
					stack = stack[:len(stack)-1]
				}
				c.index[id] = len(c.rows)
				row := c.makeRow(id, stack)
				c.rows = append(c.rows, row)
				stack = append(stack, frame{id: id, last: row.Last})
			}
		}
	}

	c.builtAt = c.store.Version()
	c.built = true
	c.fixCursor()
	c.ensureCursorVisible()
}

// makeRow builds the row for id given its ancestors on the walk stack.
func (c *TreeControl[T]) makeRow(id tree.NodeID, ancestors []frame) Row[T] {
	data, _ := c.store.Data(id)
	expanded, _ := c.store.Expanded(id)
	leaf, _ := c.store.IsLeaf(id)
	last, _ := c.store.IsLastChild(id)
	n, _ := c.store.NumChildren(id)

	// The root draws no guide column, so only ancestors below it count.
	var guides []bool
	if len(ancestors) > 1 {
		guides = make([]bool, 0, len(ancestors)-1)
		for _, f := range ancestors[1:] {
			guides = append(guides, !f.last)
		}
	}

	return Row[T]{
		ID:          id,
		Depth:       len(ancestors),
		Data:        data,
		Expanded:    expanded,
		HasChildren: n > 0,
		Expandable:  !leaf,
		Loading:     c.loading != nil && c.loading(id),
		Last:        last,
		guide:       guideKey(guides, last, len(ancestors)),
	}
}

// fixCursor puts the cursor back on a visible row: the nearest visible
// ancestor of a hidden cursor, or the first row when there is no cursor.
func (c *TreeControl[T]) fixCursor() {
	if c.cursor != tree.NoNode {
		if _, ok := c.index[c.cursor]; ok {
			return
		}
		if ancestors, err := c.store.Ancestors(c.cursor); err == nil {
			for _, a := range ancestors {
				if _, ok := c.index[a]; ok {
					c.cursor = a
					return
				}
			}
		}
	}
	if len(c.rows) > 0 {
		c.cursor = c.rows[0].ID
	} else {
		c.cursor = tree.NoNode
	}
}

// VisibleRows returns a copy of the visible sequence.
func (c *TreeControl[T]) VisibleRows() []Row[T] {
	c.ensureRows()
	out := make([]Row[T], len(c.rows))
	copy(out, c.rows)
	return out
}

// Cursor returns the node under the cursor. ok is false only when the tree
// is empty.
func (c *TreeControl[T]) Cursor() (tree.NodeID, bool) {
	c.ensureRows()
	return c.cursor, c.cursor != tree.NoNode
}

// Selected returns the selected node, if any.
func (c *TreeControl[T]) Selected() (tree.NodeID, bool) {
	return c.selected, c.selected != tree.NoNode
}

// ClearSelection drops the selection.
func (c *TreeControl[T]) ClearSelection() {
	c.selected = tree.NoNode
}

func (c *TreeControl[T]) cursorIndex() int {
	if i, ok := c.index[c.cursor]; ok {
		return i
	}
	return -1
}

// moveTo places the cursor on row i, clamped to the visible sequence.
func (c *TreeControl[T]) moveTo(i int) {
	if len(c.rows) == 0 {
		return
	}
	i = max(0, min(i, len(c.rows)-1))
	c.cursor = c.rows[i].ID
	c.ensureCursorVisible()
}

func (c *TreeControl[T]) moveBy(delta int) {
	c.ensureRows()
	if i := c.cursorIndex(); i >= 0 {
		c.moveTo(i + delta)
	}
}

// CursorDown moves the cursor to the next visible row. At the last row it
// does nothing.
func (c *TreeControl[T]) CursorDown() {
	c.moveBy(1)
}

// CursorUp moves the cursor to the previous visible row.
func (c *TreeControl[T]) CursorUp() {
	c.moveBy(-1)
}

// CursorFirst moves the cursor to the first row.
func (c *TreeControl[T]) CursorFirst() {
	c.ensureRows()
	c.moveTo(0)
}

// CursorLast moves the cursor to the last row.
func (c *TreeControl[T]) CursorLast() {
	c.ensureRows()
	c.moveTo(len(c.rows) - 1)
}

// PageDown moves the cursor down by half a viewport.
func (c *TreeControl[T]) PageDown() {
	c.moveBy(c.pageSize())
}

// PageUp moves the cursor up by half a viewport.
func (c *TreeControl[T]) PageUp() {
	c.moveBy(-c.pageSize())
}

func (c *TreeControl[T]) pageSize() int {
	if size := c.height / 2; size >= 1 {
		return size
	}
	return 5
}

// CursorToParent moves the cursor to its parent. At the root it does
// nothing.
func (c *TreeControl[T]) CursorToParent() {
	c.ensureRows()
	parent, ok, err := c.store.Parent(c.cursor)
	if err != nil || !ok {
		return
	}
	if _, visible := c.index[parent]; visible {
		c.cursor = parent
		c.ensureCursorVisible()
	}
}

// SetCursor moves the cursor onto id, which must be visible.
func (c *TreeControl[T]) SetCursor(id tree.NodeID) error {
	if !c.store.Contains(id) {
		return fmt.Errorf("set cursor to %s: %w", id, tree.ErrNotFound)
	}
	c.ensureRows()
	if _, ok := c.index[id]; !ok {
		return fmt.Errorf("set cursor to %s: %w", id, ErrNotVisible)
	}
	c.cursor = id
	c.ensureCursorVisible()
	return nil
}

// Expand expands id and runs the expand hook if the node was collapsed.
func (c *TreeControl[T]) Expand(id tree.NodeID) (tea.Cmd, error) {
	was, err := c.store.Expanded(id)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetExpanded(id, true); err != nil {
		return nil, err
	}
	if was || c.onExpand == nil {
		return nil, nil
	}
	debug.Log("tree: expand %s", id)
	return c.onExpand(id), nil
}

// Collapse collapses id. A cursor inside the collapsed subtree moves up to
// id.
func (c *TreeControl[T]) Collapse(id tree.NodeID) error {
	return c.store.SetExpanded(id, false)
}

// Toggle flips id's expansion. Toggling a leaf does nothing.
func (c *TreeControl[T]) Toggle(id tree.NodeID) (tea.Cmd, error) {
	leaf, err := c.store.IsLeaf(id)
	if err != nil || leaf {
		return nil, err
	}
	expanded, _ := c.store.Expanded(id)
	if expanded {
		return nil, c.Collapse(id)
	}
	return c.Expand(id)
}

// ToggleExpand flips the expansion of the node under the cursor.
func (c *TreeControl[T]) ToggleExpand() tea.Cmd {
	id, ok := c.Cursor()
	if !ok {
		return nil
	}
	cmd, _ := c.Toggle(id)
	return cmd
}

// ExpandOrMoveToChild expands a collapsed node under the cursor, or moves to
// its first child if it is already expanded.
func (c *TreeControl[T]) ExpandOrMoveToChild() tea.Cmd {
	id, ok := c.Cursor()
	if !ok {
		return nil
	}
	if leaf, _ := c.store.IsLeaf(id); leaf {
		return nil
	}
	if expanded, _ := c.store.Expanded(id); !expanded {
		cmd, _ := c.Expand(id)
		return cmd
	}
	if children, _ := c.store.Children(id); len(children) > 0 {
		_ = c.SetCursor(children[0])
	}
	return nil
}

// CollapseOrJumpToParent collapses an expanded node under the cursor, or
// moves to the parent otherwise.
func (c *TreeControl[T]) CollapseOrJumpToParent() {
	id, ok := c.Cursor()
	if !ok {
		return
	}
	if expanded, _ := c.store.Expanded(id); expanded {
		_ = c.Collapse(id)
		return
	}
	c.CursorToParent()
}

// ExpandAll expands every expandable node currently in the store.
func (c *TreeControl[T]) ExpandAll() tea.Cmd {
	root, ok := c.store.Root()
	if !ok {
		return nil
	}
	all, _ := c.store.Descendants(root)
	var ids []tree.NodeID
	for id := range all {
		ids = append(ids, id)
	}
	var cmds []tea.Cmd
	for _, id := range ids {
		if leaf, _ := c.store.IsLeaf(id); leaf {
			continue
		}
		if cmd, err := c.Expand(id); err == nil && cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

// CollapseAll collapses every node.
func (c *TreeControl[T]) CollapseAll() {
	root, ok := c.store.Root()
	if !ok {
		return
	}
	all, _ := c.store.Descendants(root)
	var ids []tree.NodeID
	for id := range all {
		ids = append(ids, id)
	}
	for _, id := range ids {
		_ = c.Collapse(id)
	}
}

// Activate activates the node under the cursor.
func (c *TreeControl[T]) Activate() tea.Cmd {
	id, ok := c.Cursor()
	if !ok {
		return nil
	}
	return c.activate(id)
}

// Click moves the cursor onto id and activates it, as a pointer click on its
// row does.
func (c *TreeControl[T]) Click(id tree.NodeID) (tea.Cmd, error) {
	if err := c.SetCursor(id); err != nil {
		return nil, err
	}
	return c.activate(id), nil
}

func (c *TreeControl[T]) activate(id tree.NodeID) tea.Cmd {
	data, err := c.store.Data(id)
	if err != nil {
		return nil
	}
	if c.policy == SelectSingle {
		c.selected = id
	}
	events := []Event{TreeClick[T]{Node: id, Data: data}}
	var hookCmd tea.Cmd
	if c.onActivate != nil {
		var extra []Event
		extra, hookCmd = c.onActivate(id, data)
		events = append(events, extra...)
	}
	return tea.Batch(c.obs.emit(events...), hookCmd)
}

// Focus makes the control react to keys.
func (c *TreeControl[T]) Focus() {
	c.focused = true
}

// Blur makes the control ignore keys. Mouse input is still handled.
func (c *TreeControl[T]) Blur() {
	c.focused = false
}

// Focused reports whether the control reacts to keys.
func (c *TreeControl[T]) Focused() bool {
	return c.focused
}

// KeyMap returns the active key bindings.
func (c *TreeControl[T]) KeyMap() KeyMap {
	return c.keys
}

// SetSize sets the area available to View. A non-positive height renders
// every row.
func (c *TreeControl[T]) SetSize(width, height int) {
	c.width = width
	c.height = height
	c.ensureRows()
	c.ensureCursorVisible()
}

// SetPosition records where the control is drawn on screen so mouse events
// can be mapped to rows.
func (c *TreeControl[T]) SetPosition(x, y int) {
	c.x = x
	c.y = y
}

// Init implements tea.Model.
func (c *TreeControl[T]) Init() tea.Cmd {
	return nil
}

// Update handles key, mouse, and window size messages.
func (c *TreeControl[T]) Update(msg tea.Msg) (*TreeControl[T], tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.SetSize(msg.Width, msg.Height)
	case tea.KeyMsg:
		if c.focused {
			before := c.cursor
			cmd := c.handleKey(msg)
			return c, c.cursorMoved(before, cmd)
		}
	case tea.MouseMsg:
		before := c.cursor
		cmd := c.handleMouse(msg)
		return c, c.cursorMoved(before, cmd)
	}
	return c, nil
}

// cursorMoved appends a CursorMoved event to cmd when the cursor left before.
func (c *TreeControl[T]) cursorMoved(before tree.NodeID, cmd tea.Cmd) tea.Cmd {
	if c.cursor == before || c.cursor == tree.NoNode {
		return cmd
	}
	c.ensureRows()
	moved := c.obs.emit(CursorMoved{Node: c.cursor, Row: c.cursorIndex()})
	if cmd == nil {
		return moved
	}
	return tea.Sequence(cmd, moved)
}

func (c *TreeControl[T]) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, c.keys.Up):
		c.CursorUp()
	case key.Matches(msg, c.keys.Down):
		c.CursorDown()
	case key.Matches(msg, c.keys.Home):
		c.CursorFirst()
	case key.Matches(msg, c.keys.End):
		c.CursorLast()
	case key.Matches(msg, c.keys.PageUp):
		c.PageUp()
	case key.Matches(msg, c.keys.PageDown):
		c.PageDown()
	case key.Matches(msg, c.keys.Parent):
		c.CursorToParent()
	case key.Matches(msg, c.keys.Left):
		c.CollapseOrJumpToParent()
	case key.Matches(msg, c.keys.Right):
		return c.ExpandOrMoveToChild()
	case key.Matches(msg, c.keys.Toggle):
		return c.ToggleExpand()
	case key.Matches(msg, c.keys.Activate):
		return c.Activate()
	}
	return nil
}

func (c *TreeControl[T]) handleMouse(msg tea.MouseMsg) tea.Cmd {
	c.ensureRows()
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		if c.inBounds(msg.X, msg.Y) {
			c.moveBy(-wheelStep)
		}
	case msg.Button == tea.MouseButtonWheelDown:
		if c.inBounds(msg.X, msg.Y) {
			c.moveBy(wheelStep)
		}
	case msg.Action == tea.MouseActionMotion:
		c.hover, _ = c.rowAt(msg.X, msg.Y)
	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		id, ok := c.rowAt(msg.X, msg.Y)
		if !ok {
			return nil
		}
		c.cursor = id
		c.ensureCursorVisible()
		row := c.rows[c.index[id]]
		if c.onIndicator(row, msg.X) {
			cmd, _ := c.Toggle(id)
			return cmd
		}
		return c.activate(id)
	}
	return nil
}

func (c *TreeControl[T]) inBounds(x, y int) bool {
	if x < c.x || (c.width > 0 && x >= c.x+c.width) {
		return false
	}
	return y >= c.y && y < c.y+c.visibleCount()
}

// rowAt maps a screen position to the row drawn there.
func (c *TreeControl[T]) rowAt(x, y int) (tree.NodeID, bool) {
	if !c.inBounds(x, y) {
		return tree.NoNode, false
	}
	start, end := c.visibleRange()
	i := start + (y - c.y)
	if i >= end {
		return tree.NoNode, false
	}
	return c.rows[i].ID, true
}

// onIndicator reports whether screen column x falls on the row's expand
// indicator.
func (c *TreeControl[T]) onIndicator(row Row[T], x int) bool {
	col := x - c.x - 4*row.Depth
	return row.Expandable && col >= 0 && col < 2
}

// visibleCount returns the number of rows View can draw, reserving a line
// for the position indicator when not everything fits.
func (c *TreeControl[T]) visibleCount() int {
	if c.height <= 0 {
		return len(c.rows)
	}
	n := c.height
	if len(c.rows) > n {
		n--
	}
	return max(n, 1)
}

// visibleRange returns the half-open range of rows View draws.
func (c *TreeControl[T]) visibleRange() (start, end int) {
	if len(c.rows) == 0 {
		return 0, 0
	}
	count := c.visibleCount()
	start = max(c.offset, 0)
	end = start + count
	if end > len(c.rows) {
		end = len(c.rows)
		start = max(end-count, 0)
	}
	return start, end
}

// ensureCursorVisible scrolls just enough to keep the cursor on screen.
func (c *TreeControl[T]) ensureCursorVisible() {
	i := c.cursorIndex()
	if i < 0 {
		c.offset = 0
		return
	}
	count := c.visibleCount()
	if i < c.offset {
		c.offset = i
	}
	if i >= c.offset+count {
		c.offset = i - count + 1
	}
	c.offset = max(0, min(c.offset, len(c.rows)-count))
}

// Offset returns the index of the first rendered row.
func (c *TreeControl[T]) Offset() int {
	return c.offset
}

// View renders the visible window of rows.
func (c *TreeControl[T]) View() string {
	defer metrics.Timer(metrics.UIRender)()
	c.ensureRows()
	if len(c.rows) == 0 {
		return c.theme.MutedText.Render("(empty)")
	}

	start, end := c.visibleRange()
	var sb strings.Builder
	for i := start; i < end; i++ {
		if i > start {
			sb.WriteByte('\n')
		}
		sb.WriteString(c.renderRow(c.rows[i]))
	}
	if c.height > 0 && len(c.rows) > c.height {
		sb.WriteByte('\n')
		sb.WriteString(c.renderPositionIndicator(start, end))
	}
	return sb.String()
}

func (c *TreeControl[T]) renderPositionIndicator(start, end int) string {
	return c.theme.MutedText.Render(fmt.Sprintf(" %d-%d of %d", start+1, end, len(c.rows)))
}

func (c *TreeControl[T]) rowFlags(row Row[T]) uint8 {
	var f uint8
	if row.ID == c.cursor {
		f |= flagCursor
	}
	if row.ID == c.hover {
		f |= flagHover
	}
	if row.ID == c.selected {
		f |= flagSelected
	}
	if row.Loading {
		f |= flagLoading
	}
	if c.focused {
		f |= flagFocused
	}
	return f
}

func (c *TreeControl[T]) renderRow(row Row[T]) string {
	rev, _ := c.store.Rev(row.ID)
	k := rowKey{id: row.ID, rev: rev, guide: row.guide, flags: c.rowFlags(row), width: c.width}
	if c.rowCache != nil {
		if s, ok := c.rowCache.Get(k); ok {
			metrics.RowCache.Hit()
			return s
		}
		metrics.RowCache.Miss()
	}
	s := c.drawRow(row, k.flags)
	if c.rowCache != nil {
		c.rowCache.Set(k, s)
	}
	return s
}

func expandIndicator[T any](row Row[T]) string {
	switch {
	case row.Loading:
		return "◌"
	case !row.Expandable:
		return "•"
	case row.Expanded:
		return "▾"
	default:
		return "▸"
	}
}

func (c *TreeControl[T]) drawRow(row Row[T], flags uint8) string {
	prefix := c.prefixes.Get(row.guide)
	label := c.label(row.Data)
	if c.width > 0 {
		// guide columns are 4 cells per level, then indicator and a space
		label = truncate(label, c.width-4*row.Depth-2)
	}

	style := c.theme.Base
	if c.labelStyle != nil {
		style = c.labelStyle(row)
	}
	if flags&flagSelected != 0 && flags&flagCursor == 0 {
		style = c.theme.Marked
	}
	if flags&flagHover != 0 {
		style = style.Inherit(c.theme.Hover)
	}

	line := prefix + c.theme.Indicator.Render(expandIndicator(row)) + " " + style.Render(label)
	if flags&flagCursor != 0 && flags&flagFocused != 0 {
		sel := c.theme.Selected
		if c.width > 0 {
			sel = sel.Width(c.width)
		}
		line = sel.Render(line)
	}
	return line
}

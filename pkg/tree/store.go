// Package tree implements the node store behind the tree widgets: a single
// rooted hierarchy of generic payloads addressed by stable NodeIDs.
//
// Children are owned by their parent in an ordered slice; the parent is held
// as an id back-reference, never as a second owner. Removing a node removes
// its whole subtree and the removed ids are never handed out again.
//
// The store is not safe for concurrent use. Tree widgets mutate it only from
// the bubbletea Update loop.
package tree

import (
	"fmt"
	"slices"
)

// NodeID identifies a node within a Store. Zero is never a valid id.
type NodeID uint64

// NoNode is the zero NodeID, used where a node reference is absent.
const NoNode NodeID = 0

func (id NodeID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// ChangeKind describes a store mutation.
type ChangeKind int

const (
	ChangeAdded    ChangeKind = iota // a node was created (root or child)
	ChangeRemoved                    // a subtree was removed
	ChangeMoved                      // a node was reparented
	ChangeExpanded                   // expanded flag flipped
	ChangeUpdated                    // payload or loaded flag changed
	ChangeReordered                  // a node's children were reordered
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeMoved:
		return "moved"
	case ChangeExpanded:
		return "expanded"
	case ChangeUpdated:
		return "updated"
	case ChangeReordered:
		return "reordered"
	default:
		return "unknown"
	}
}

// Change is delivered to store listeners after every mutation.
type Change struct {
	Kind ChangeKind
	Node NodeID
	// Parent is the node's parent after the change. For ChangeRemoved it is the
	// surviving parent of the removed subtree (NoNode when the root was removed).
	Parent NodeID
	// OldParent is set for ChangeMoved.
	OldParent NodeID
	// Removed lists every id dropped by a ChangeRemoved, in pre-order.
	Removed []NodeID
}

type node[T any] struct {
	parent   NodeID
	children []NodeID
	data     T
	expanded bool
	loaded   bool
	leaf     bool
	rev      uint64 // store version of the last change to this node's own row
}

type listener struct {
	id int
	fn func(Change)
}

// Store owns a tree of nodes carrying payloads of type T.
type Store[T any] struct {
	nodes     map[NodeID]*node[T]
	root      NodeID
	lastID    NodeID
	isLeaf    func(T) bool
	version   uint64
	listeners []listener
	nextLisID int
}

// NewStore creates an empty store. isLeaf decides, once per node at creation
// time, whether the node can ever hold children. A nil predicate makes every
// node expandable.
func NewStore[T any](isLeaf func(T) bool) *Store[T] {
	return &Store[T]{
		nodes:  make(map[NodeID]*node[T]),
		isLeaf: isLeaf,
	}
}

// Listen registers fn to be called after every mutation. The returned
// function unregisters it.
func (s *Store[T]) Listen(fn func(Change)) (cancel func()) {
	s.nextLisID++
	id := s.nextLisID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.id == id })
	}
}

func (s *Store[T]) notify(c Change) {
	for _, l := range slices.Clone(s.listeners) {
		l.fn(c)
	}
}

// touch bumps the store version and stamps the given nodes with it.
func (s *Store[T]) touch(ids ...NodeID) {
	s.version++
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			n.rev = s.version
		}
	}
}

func (s *Store[T]) newNode(parent NodeID, data T) NodeID {
	s.lastID++
	leaf := false
	if s.isLeaf != nil {
		leaf = s.isLeaf(data)
	}
	s.nodes[s.lastID] = &node[T]{
		parent: parent,
		data:   data,
		leaf:   leaf,
	}
	return s.lastID
}

func (s *Store[T]) get(op string, id NodeID) (*node[T], error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return n, nil
}

// CreateRoot creates the root node.
func (s *Store[T]) CreateRoot(data T) (NodeID, error) {
	if s.root != NoNode {
		return NoNode, fmt.Errorf("create root: %w", ErrAlreadyInitialized)
	}
	id := s.newNode(NoNode, data)
	s.root = id
	s.touch(id)
	s.notify(Change{Kind: ChangeAdded, Node: id})
	return id, nil
}

// AddChild appends a new node holding data to parent's children.
func (s *Store[T]) AddChild(parent NodeID, data T) (NodeID, error) {
	p, err := s.get("add child to", parent)
	if err != nil {
		return NoNode, err
	}
	if p.leaf {
		return NoNode, fmt.Errorf("add child to %s: %w", parent, ErrNotExpandable)
	}
	id := s.newNode(parent, data)
	p.children = append(p.children, id)
	s.touch(id, parent)
	s.notify(Change{Kind: ChangeAdded, Node: id, Parent: parent})
	return id, nil
}

// Remove deletes id and its entire subtree. Removing an id twice fails with
// ErrNotFound the second time.
func (s *Store[T]) Remove(id NodeID) error {
	n, err := s.get("remove", id)
	if err != nil {
		return err
	}
	removed := s.collect(id)
	parent := n.parent
	if p, ok := s.nodes[parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c NodeID) bool { return c == id })
	}
	for _, r := range removed {
		delete(s.nodes, r)
	}
	if id == s.root {
		s.root = NoNode
	}
	s.touch(parent)
	s.notify(Change{Kind: ChangeRemoved, Node: id, Parent: parent, Removed: removed})
	return nil
}

// ClearChildren deep-removes every child of id while keeping id itself.
func (s *Store[T]) ClearChildren(id NodeID) error {
	n, err := s.get("clear children of", id)
	if err != nil {
		return err
	}
	for _, child := range slices.Clone(n.children) {
		if err := s.Remove(child); err != nil {
			return err
		}
	}
	return nil
}

// Move reparents id under newParent, appending it to newParent's children.
func (s *Store[T]) Move(id, newParent NodeID) error {
	n, err := s.get("move", id)
	if err != nil {
		return err
	}
	p, err := s.get("move to", newParent)
	if err != nil {
		return err
	}
	if id == s.root {
		return fmt.Errorf("move root %s: %w", id, ErrCycle)
	}
	if p.leaf {
		return fmt.Errorf("move to %s: %w", newParent, ErrNotExpandable)
	}
	for cur := newParent; cur != NoNode; cur = s.nodes[cur].parent {
		if cur == id {
			return fmt.Errorf("move %s under %s: %w", id, newParent, ErrCycle)
		}
	}
	old := n.parent
	if op, ok := s.nodes[old]; ok {
		op.children = slices.DeleteFunc(op.children, func(c NodeID) bool { return c == id })
	}
	n.parent = newParent
	p.children = append(p.children, id)
	s.touch(id, old, newParent)
	s.notify(Change{Kind: ChangeMoved, Node: id, Parent: newParent, OldParent: old})
	return nil
}

// collect returns id and all of its descendants in pre-order.
func (s *Store[T]) collect(id NodeID) []NodeID {
	var out []NodeID
	for d := range s.descend(id, false) {
		out = append(out, d)
	}
	return out
}

// Root returns the root id, if one exists.
func (s *Store[T]) Root() (NodeID, bool) {
	return s.root, s.root != NoNode
}

// Contains reports whether id is present.
func (s *Store[T]) Contains(id NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// Len returns the number of nodes in the store.
func (s *Store[T]) Len() int {
	return len(s.nodes)
}

// Version increases on every mutation. Caches derived from the store are
// valid while the version they were built from is current.
func (s *Store[T]) Version() uint64 {
	return s.version
}

// Rev returns the store version of the last change that affected id's own
// row (payload, flags, or its child list).
func (s *Store[T]) Rev(id NodeID) (uint64, error) {
	n, err := s.get("rev of", id)
	if err != nil {
		return 0, err
	}
	return n.rev, nil
}

// Children returns a copy of id's ordered children.
func (s *Store[T]) Children(id NodeID) ([]NodeID, error) {
	n, err := s.get("children of", id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(n.children), nil
}

// NumChildren returns the number of children of id.
func (s *Store[T]) NumChildren(id NodeID) (int, error) {
	n, err := s.get("children of", id)
	if err != nil {
		return 0, err
	}
	return len(n.children), nil
}

// IsLastChild reports whether id is the last of its parent's children. The
// root counts as a last child.
func (s *Store[T]) IsLastChild(id NodeID) (bool, error) {
	n, err := s.get("position of", id)
	if err != nil {
		return false, err
	}
	p, ok := s.nodes[n.parent]
	if !ok {
		return true, nil
	}
	return p.children[len(p.children)-1] == id, nil
}

// SortChildren stably reorders id's children by comparing their payloads.
func (s *Store[T]) SortChildren(id NodeID, cmp func(a, b T) int) error {
	n, err := s.get("sort children of", id)
	if err != nil {
		return err
	}
	sorted := slices.Clone(n.children)
	slices.SortStableFunc(sorted, func(a, b NodeID) int {
		return cmp(s.nodes[a].data, s.nodes[b].data)
	})
	if slices.Equal(sorted, n.children) {
		return nil
	}
	n.children = sorted
	// Every child's guide column may change with its position.
	s.touch(append([]NodeID{id}, sorted...)...)
	s.notify(Change{Kind: ChangeReordered, Node: id, Parent: n.parent})
	return nil
}

// Parent returns id's parent. ok is false for the root.
func (s *Store[T]) Parent(id NodeID) (parent NodeID, ok bool, err error) {
	n, err := s.get("parent of", id)
	if err != nil {
		return NoNode, false, err
	}
	return n.parent, n.parent != NoNode, nil
}

// Depth returns the number of ancestors of id (0 for the root).
func (s *Store[T]) Depth(id NodeID) (int, error) {
	n, err := s.get("depth of", id)
	if err != nil {
		return 0, err
	}
	depth := 0
	for cur := n.parent; cur != NoNode; cur = s.nodes[cur].parent {
		depth++
	}
	return depth, nil
}

// Ancestors returns id's ancestors ordered from the parent up to the root.
func (s *Store[T]) Ancestors(id NodeID) ([]NodeID, error) {
	n, err := s.get("ancestors of", id)
	if err != nil {
		return nil, err
	}
	var out []NodeID
	for cur := n.parent; cur != NoNode; cur = s.nodes[cur].parent {
		out = append(out, cur)
	}
	return out, nil
}

// Data returns id's payload.
func (s *Store[T]) Data(id NodeID) (T, error) {
	n, err := s.get("data of", id)
	if err != nil {
		var zero T
		return zero, err
	}
	return n.data, nil
}

// SetData replaces id's payload. The leaf flag is not re-evaluated.
func (s *Store[T]) SetData(id NodeID, data T) error {
	n, err := s.get("set data of", id)
	if err != nil {
		return err
	}
	n.data = data
	s.touch(id)
	s.notify(Change{Kind: ChangeUpdated, Node: id, Parent: n.parent})
	return nil
}

// IsLeaf reports whether id was created as a leaf.
func (s *Store[T]) IsLeaf(id NodeID) (bool, error) {
	n, err := s.get("leaf flag of", id)
	if err != nil {
		return false, err
	}
	return n.leaf, nil
}

// Expanded reports id's expanded flag.
func (s *Store[T]) Expanded(id NodeID) (bool, error) {
	n, err := s.get("expanded flag of", id)
	if err != nil {
		return false, err
	}
	return n.expanded, nil
}

// SetExpanded sets id's expanded flag. Expanding a leaf fails with
// ErrNotExpandable; collapsing one is a no-op.
func (s *Store[T]) SetExpanded(id NodeID, expanded bool) error {
	n, err := s.get("expand", id)
	if err != nil {
		return err
	}
	if n.leaf && expanded {
		return fmt.Errorf("expand %s: %w", id, ErrNotExpandable)
	}
	if n.expanded == expanded {
		return nil
	}
	n.expanded = expanded
	s.touch(id)
	s.notify(Change{Kind: ChangeExpanded, Node: id, Parent: n.parent})
	return nil
}

// Loaded reports id's "children loaded" flag.
func (s *Store[T]) Loaded(id NodeID) (bool, error) {
	n, err := s.get("loaded flag of", id)
	if err != nil {
		return false, err
	}
	return n.loaded, nil
}

// SetLoaded sets id's "children loaded" flag.
func (s *Store[T]) SetLoaded(id NodeID, loaded bool) error {
	n, err := s.get("set loaded flag of", id)
	if err != nil {
		return err
	}
	if n.loaded == loaded {
		return nil
	}
	n.loaded = loaded
	s.touch(id)
	s.notify(Change{Kind: ChangeUpdated, Node: id, Parent: n.parent})
	return nil
}

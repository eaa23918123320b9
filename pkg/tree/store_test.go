package tree

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func collectSeq(t *testing.T, s *Store[string], start NodeID, all bool) []NodeID {
	t.Helper()
	var (
		seq func(func(NodeID) bool)
		err error
	)
	if all {
		seq, err = s.Descendants(start)
	} else {
		seq, err = s.Walk(start)
	}
	if err != nil {
		t.Fatalf("walk from %s: %v", start, err)
	}
	var out []NodeID
	for id := range seq {
		out = append(out, id)
	}
	return out
}

// newSampleStore builds:
//
//	root
//	  a
//	    a1
//	    a2
//	  b
//	  leaf (leaf)
func newSampleStore(t *testing.T) (*Store[string], map[string]NodeID) {
	t.Helper()
	s := NewStore(func(v string) bool { return v == "leaf" })
	ids := make(map[string]NodeID)
	var err error
	if ids["root"], err = s.CreateRoot("root"); err != nil {
		t.Fatal(err)
	}
	add := func(parent, name string) {
		id, err := s.AddChild(ids[parent], name)
		if err != nil {
			t.Fatalf("add %s under %s: %v", name, parent, err)
		}
		ids[name] = id
	}
	add("root", "a")
	add("a", "a1")
	add("a", "a2")
	add("root", "b")
	add("root", "leaf")
	return s, ids
}

func TestCreateRootTwice(t *testing.T) {
	s := NewStore[string](nil)
	if _, err := s.CreateRoot("one"); err != nil {
		t.Fatalf("first root: %v", err)
	}
	if _, err := s.CreateRoot("two"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestAddChildPreservesCallOrder(t *testing.T) {
	s, ids := newSampleStore(t)
	children, err := s.Children(ids["root"])
	if err != nil {
		t.Fatal(err)
	}
	want := []NodeID{ids["a"], ids["b"], ids["leaf"]}
	if !slices.Equal(children, want) {
		t.Errorf("children = %v, want %v", children, want)
	}
}

func TestAddChildErrors(t *testing.T) {
	s, ids := newSampleStore(t)

	if _, err := s.AddChild(ids["leaf"], "x"); !errors.Is(err, ErrNotExpandable) {
		t.Errorf("add under leaf: expected ErrNotExpandable, got %v", err)
	}
	if _, err := s.AddChild(NodeID(999), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("add under missing: expected ErrNotFound, got %v", err)
	}
}

func TestRemoveDeletesExactlySubtree(t *testing.T) {
	s, ids := newSampleStore(t)
	before := s.Len()

	if err := s.Remove(ids["a"]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := s.Len(); got != before-3 {
		t.Errorf("expected %d nodes after removing a subtree of 3, got %d", before-3, got)
	}
	for _, name := range []string{"a", "a1", "a2"} {
		if s.Contains(ids[name]) {
			t.Errorf("%s should be gone", name)
		}
		if _, err := s.Data(ids[name]); !errors.Is(err, ErrNotFound) {
			t.Errorf("data of removed %s: expected ErrNotFound, got %v", name, err)
		}
	}
	for _, name := range []string{"root", "b", "leaf"} {
		if !s.Contains(ids[name]) {
			t.Errorf("%s should survive", name)
		}
	}
	children, _ := s.Children(ids["root"])
	if slices.Contains(children, ids["a"]) {
		t.Error("removed node still listed among root's children")
	}
}

func TestRemoveTwiceFails(t *testing.T) {
	s, ids := newSampleStore(t)
	if err := s.Remove(ids["b"]); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ids["b"]); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: expected ErrNotFound, got %v", err)
	}
}

func TestRemovedIDsAreNeverReused(t *testing.T) {
	s, ids := newSampleStore(t)
	if err := s.Remove(ids["b"]); err != nil {
		t.Fatal(err)
	}
	id, err := s.AddChild(ids["root"], "b2")
	if err != nil {
		t.Fatal(err)
	}
	for name, old := range ids {
		if id == old {
			t.Errorf("new node reused id of %s", name)
		}
	}
}

func TestRemoveRootAllowsNewRoot(t *testing.T) {
	s, ids := newSampleStore(t)
	if err := s.Remove(ids["root"]); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d nodes", s.Len())
	}
	if _, ok := s.Root(); ok {
		t.Error("root should be cleared")
	}
	if _, err := s.CreateRoot("again"); err != nil {
		t.Errorf("create root after removal: %v", err)
	}
}

func TestParentAndDepth(t *testing.T) {
	s, ids := newSampleStore(t)

	tests := []struct {
		name      string
		depth     int
		parent    string
		hasParent bool
	}{
		{"root", 0, "", false},
		{"a", 1, "root", true},
		{"a2", 2, "a", true},
		{"leaf", 1, "root", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			depth, err := s.Depth(ids[tt.name])
			if err != nil {
				t.Fatal(err)
			}
			if depth != tt.depth {
				t.Errorf("depth = %d, want %d", depth, tt.depth)
			}
			parent, ok, err := s.Parent(ids[tt.name])
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.hasParent {
				t.Errorf("has parent = %v, want %v", ok, tt.hasParent)
			}
			if tt.hasParent && parent != ids[tt.parent] {
				t.Errorf("parent = %s, want %s", parent, ids[tt.parent])
			}
		})
	}
}

func TestWalkFollowsOnlyExpandedNodes(t *testing.T) {
	s, ids := newSampleStore(t)

	if got := collectSeq(t, s, ids["root"], false); !slices.Equal(got, []NodeID{ids["root"]}) {
		t.Errorf("collapsed root: got %v", got)
	}

	_ = s.SetExpanded(ids["root"], true)
	want := []NodeID{ids["root"], ids["a"], ids["b"], ids["leaf"]}
	if got := collectSeq(t, s, ids["root"], false); !slices.Equal(got, want) {
		t.Errorf("root expanded: got %v, want %v", got, want)
	}

	_ = s.SetExpanded(ids["a"], true)
	want = []NodeID{ids["root"], ids["a"], ids["a1"], ids["a2"], ids["b"], ids["leaf"]}
	if got := collectSeq(t, s, ids["root"], false); !slices.Equal(got, want) {
		t.Errorf("a expanded: got %v, want %v", got, want)
	}

	// a stays expanded but root collapses: a's children must not leak through
	_ = s.SetExpanded(ids["root"], false)
	if got := collectSeq(t, s, ids["root"], false); len(got) != 1 {
		t.Errorf("collapsed root with expanded child: got %v", got)
	}
}

func TestWalkIsRestartable(t *testing.T) {
	s, ids := newSampleStore(t)
	_ = s.SetExpanded(ids["root"], true)

	seq, err := s.Walk(ids["root"])
	if err != nil {
		t.Fatal(err)
	}
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	first := count()
	second := count()
	if first != second || first != 4 {
		t.Errorf("expected two walks of 4 nodes, got %d and %d", first, second)
	}

	// Early break must not disturb the next walk
	for range seq {
		break
	}
	if n := count(); n != 4 {
		t.Errorf("walk after early break visited %d nodes", n)
	}
}

func TestWalkMissingStart(t *testing.T) {
	s := NewStore[string](nil)
	if _, err := s.Walk(NodeID(3)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDescendantsIgnoresExpansion(t *testing.T) {
	s, ids := newSampleStore(t)
	got := collectSeq(t, s, ids["root"], true)
	if len(got) != 6 {
		t.Errorf("expected 6 nodes, got %d (%v)", len(got), got)
	}
}

func TestSetExpandedOnLeaf(t *testing.T) {
	s, ids := newSampleStore(t)
	if err := s.SetExpanded(ids["leaf"], true); !errors.Is(err, ErrNotExpandable) {
		t.Errorf("expected ErrNotExpandable, got %v", err)
	}
	if err := s.SetExpanded(ids["leaf"], false); err != nil {
		t.Errorf("collapsing a leaf should be a no-op, got %v", err)
	}
}

func TestMove(t *testing.T) {
	s, ids := newSampleStore(t)

	if err := s.Move(ids["b"], ids["a"]); err != nil {
		t.Fatalf("move b under a: %v", err)
	}
	parent, _, _ := s.Parent(ids["b"])
	if parent != ids["a"] {
		t.Errorf("b parent = %s, want a", parent)
	}
	children, _ := s.Children(ids["a"])
	if !slices.Equal(children, []NodeID{ids["a1"], ids["a2"], ids["b"]}) {
		t.Errorf("a children = %v", children)
	}
	rootChildren, _ := s.Children(ids["root"])
	if slices.Contains(rootChildren, ids["b"]) {
		t.Error("b still listed under root")
	}

	tests := []struct {
		name     string
		id, dest NodeID
		want     error
	}{
		{"into own subtree", ids["a"], ids["a1"], ErrCycle},
		{"onto itself", ids["a"], ids["a"], ErrCycle},
		{"root", ids["root"], ids["a"], ErrCycle},
		{"under leaf", ids["a1"], ids["leaf"], ErrNotExpandable},
		{"missing node", NodeID(500), ids["a"], ErrNotFound},
		{"missing parent", ids["a1"], NodeID(500), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Move(tt.id, tt.dest); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClearChildren(t *testing.T) {
	s, ids := newSampleStore(t)
	if err := s.ClearChildren(ids["root"]); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Errorf("expected only the root to remain, got %d nodes", s.Len())
	}
	children, _ := s.Children(ids["root"])
	if len(children) != 0 {
		t.Errorf("expected no children, got %v", children)
	}
}

func TestListenReportsRemovedSubtree(t *testing.T) {
	s, ids := newSampleStore(t)

	var changes []Change
	cancel := s.Listen(func(c Change) { changes = append(changes, c) })

	if err := s.Remove(ids["a"]); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	c := changes[0]
	if c.Kind != ChangeRemoved || c.Node != ids["a"] || c.Parent != ids["root"] {
		t.Errorf("unexpected change %+v", c)
	}
	if !slices.Equal(c.Removed, []NodeID{ids["a"], ids["a1"], ids["a2"]}) {
		t.Errorf("removed = %v", c.Removed)
	}

	cancel()
	_ = s.Remove(ids["b"])
	if len(changes) != 1 {
		t.Error("listener still called after cancel")
	}
}

func TestVersionAdvancesOnMutation(t *testing.T) {
	s, ids := newSampleStore(t)
	v := s.Version()

	_ = s.SetExpanded(ids["a"], true)
	if s.Version() <= v {
		t.Error("SetExpanded should bump version")
	}
	v = s.Version()

	// No-op does not bump
	_ = s.SetExpanded(ids["a"], true)
	if s.Version() != v {
		t.Error("unchanged SetExpanded should not bump version")
	}

	rev, _ := s.Rev(ids["a"])
	if rev != v {
		t.Errorf("rev of a = %d, want %d", rev, v)
	}
}

func TestIsVisible(t *testing.T) {
	s, ids := newSampleStore(t)
	if ok, _ := s.IsVisible(ids["a1"]); ok {
		t.Error("a1 should be hidden under collapsed ancestors")
	}
	_ = s.SetExpanded(ids["root"], true)
	_ = s.SetExpanded(ids["a"], true)
	if ok, _ := s.IsVisible(ids["a1"]); !ok {
		t.Error("a1 should be visible")
	}
	if ok, _ := s.IsVisible(ids["root"]); !ok {
		t.Error("root is always visible")
	}
}

func TestSiblingPosition(t *testing.T) {
	s, ids := newSampleStore(t)

	tests := []struct {
		name     string
		last     bool
		children int
	}{
		{"root", true, 3},
		{"a", false, 2},
		{"a2", true, 0},
		{"leaf", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last, err := s.IsLastChild(ids[tt.name])
			if err != nil {
				t.Fatal(err)
			}
			if last != tt.last {
				t.Errorf("IsLastChild = %v, want %v", last, tt.last)
			}
			n, _ := s.NumChildren(ids[tt.name])
			if n != tt.children {
				t.Errorf("NumChildren = %d, want %d", n, tt.children)
			}
		})
	}
}

func TestSortChildren(t *testing.T) {
	s, ids := newSampleStore(t)
	var kinds []ChangeKind
	s.Listen(func(c Change) { kinds = append(kinds, c.Kind) })

	desc := func(a, b string) int { return -strings.Compare(a, b) }
	if err := s.SortChildren(ids["root"], desc); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Children(ids["root"])
	want := []NodeID{ids["leaf"], ids["b"], ids["a"]}
	if !slices.Equal(got, want) {
		t.Errorf("children = %v, want %v", got, want)
	}

	// Already sorted: no change is reported.
	if err := s.SortChildren(ids["root"], desc); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 1 || kinds[0] != ChangeReordered {
		t.Errorf("changes = %v, want one reorder", kinds)
	}
	if err := s.SortChildren(NodeID(999), desc); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

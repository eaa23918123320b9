package tree

import (
	"fmt"
	"iter"
)

// Walk returns a depth-first, pre-order sequence starting at start that only
// descends into expanded nodes. The sequence reads the store lazily and can
// be ranged over any number of times; each range starts a fresh walk.
func (s *Store[T]) Walk(start NodeID) (iter.Seq[NodeID], error) {
	if !s.Contains(start) {
		return nil, fmt.Errorf("walk from %s: %w", start, ErrNotFound)
	}
	return s.descend(start, true), nil
}

// Descendants is like Walk but ignores expansion and visits every node of
// the subtree.
func (s *Store[T]) Descendants(start NodeID) (iter.Seq[NodeID], error) {
	if !s.Contains(start) {
		return nil, fmt.Errorf("descendants of %s: %w", start, ErrNotFound)
	}
	return s.descend(start, false), nil
}

func (s *Store[T]) descend(start NodeID, expandedOnly bool) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		stack := []NodeID{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			n, ok := s.nodes[id]
			if !ok {
				continue
			}
			if !yield(id) {
				return
			}
			if expandedOnly && !n.expanded {
				continue
			}
			// Push in reverse so the first child is visited first
			for i := len(n.children) - 1; i >= 0; i-- {
				stack = append(stack, n.children[i])
			}
		}
	}
}

// IsVisible reports whether every ancestor of id is expanded, meaning a walk
// from the root reaches id.
func (s *Store[T]) IsVisible(id NodeID) (bool, error) {
	n, err := s.get("visibility of", id)
	if err != nil {
		return false, err
	}
	for cur := n.parent; cur != NoNode; cur = s.nodes[cur].parent {
		if !s.nodes[cur].expanded {
			return false, nil
		}
	}
	return true, nil
}

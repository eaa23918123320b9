package tree

import "errors"

// Common errors.
var (
	// ErrNotFound is returned when an operation references a node id that is
	// not (or no longer) present in the store.
	ErrNotFound = errors.New("node not found")

	// ErrNotExpandable is returned when children are added to, or expansion is
	// requested for, a leaf node.
	ErrNotExpandable = errors.New("node is not expandable")

	// ErrAlreadyInitialized is returned by CreateRoot when a root already exists.
	ErrAlreadyInitialized = errors.New("tree already has a root")

	// ErrCycle is returned by Move when the move would make a node its own ancestor.
	ErrCycle = errors.New("move would create a cycle")
)

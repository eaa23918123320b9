// Package state persists the expand/collapse state of a tree across
// sessions.
//
// File format (JSON):
//
//	{
//	  "version": 1,
//	  "expanded": {
//	    "/home/me/src": true,   // explicitly expanded
//	    "/home/me": false       // explicitly collapsed
//	  },
//	  "cursor": "/home/me/src/main.go"
//	}
//
// Only nodes whose state differs from the default are stored: the root is
// expanded by default and everything else is collapsed. Nodes are keyed by
// a caller-supplied function, the path for directory trees.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/arbor/pkg/tree"
)

// Version is the current schema version.
const Version = 1

// FileName is the name of the state file inside the state directory.
const FileName = "tree-state.json"

// ErrUnsupportedVersion is returned by Load for files written by a newer
// schema.
var ErrUnsupportedVersion = errors.New("unsupported state version")

// TreeState is the persisted state of one tree.
type TreeState struct {
	Version  int             `json:"version"`
	Expanded map[string]bool `json:"expanded"`
	Cursor   string          `json:"cursor,omitempty"`
}

// New returns an empty state.
func New() *TreeState {
	return &TreeState{
		Version:  Version,
		Expanded: make(map[string]bool),
	}
}

// Path returns the state file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Snapshot records the expansion of every node in s that differs from the
// default, and the key of the cursor node if there is one.
func Snapshot[T any](s *tree.Store[T], cursor tree.NodeID, key func(T) string) *TreeState {
	st := New()
	root, ok := s.Root()
	if !ok {
		return st
	}
	all, _ := s.Descendants(root)
	for id := range all {
		if leaf, _ := s.IsLeaf(id); leaf {
			continue
		}
		expanded, _ := s.Expanded(id)
		if expanded != (id == root) {
			data, _ := s.Data(id)
			st.Expanded[key(data)] = expanded
		}
	}
	if data, err := s.Data(cursor); err == nil {
		st.Cursor = key(data)
	}
	return st
}

// Apply sets the recorded expansion on the nodes of s that exist. It
// returns the cursor node, if present in s, and the keys of expanded nodes
// that were not found, which a lazily loaded tree can restore later.
func Apply[T any](st *TreeState, s *tree.Store[T], key func(T) string) (cursor tree.NodeID, pending []string) {
	root, ok := s.Root()
	if !ok || st == nil {
		return tree.NoNode, st.ExpandedKeys()
	}
	found := make(map[string]bool, len(st.Expanded))
	all, _ := s.Descendants(root)
	var ids []tree.NodeID
	for id := range all {
		ids = append(ids, id)
	}
	for _, id := range ids {
		data, _ := s.Data(id)
		k := key(data)
		if expanded, ok := st.Expanded[k]; ok {
			found[k] = true
			// Unknown leaves and stale keys are ignored
			_ = s.SetExpanded(id, expanded)
		}
		if st.Cursor != "" && k == st.Cursor {
			cursor = id
		}
	}
	for _, k := range st.ExpandedKeys() {
		if !found[k] {
			pending = append(pending, k)
		}
	}
	return cursor, pending
}

// ExpandedKeys returns the keys recorded as expanded, sorted.
func (st *TreeState) ExpandedKeys() []string {
	if st == nil {
		return nil
	}
	var keys []string
	for k, expanded := range st.Expanded {
		if expanded {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Save writes st to path, creating the directory if needed. The file is
// replaced atomically.
func Save(path string, st *TreeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tree state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tree-state-*")
	if err != nil {
		return fmt.Errorf("write tree state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write tree state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write tree state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write tree state: %w", err)
	}
	return nil
}

// Load reads the state at path. A missing file yields an empty state and
// no error. A corrupt file yields an empty state and the parse error, so
// callers can warn and carry on with defaults.
func Load(path string) (*TreeState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return New(), fmt.Errorf("read tree state: %w", err)
	}

	var st TreeState
	if err := json.Unmarshal(data, &st); err != nil {
		return New(), fmt.Errorf("invalid tree state file %s: %w", path, err)
	}
	if st.Version > Version {
		return New(), fmt.Errorf("tree state %s has version %d: %w", path, st.Version, ErrUnsupportedVersion)
	}
	if st.Expanded == nil {
		st.Expanded = make(map[string]bool)
	}
	return &st, nil
}

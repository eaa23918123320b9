package state

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vanderheijden86/arbor/pkg/tree"
)

func isFile(s string) bool { return strings.HasSuffix(s, ".txt") }

func identity(s string) string { return s }

// buildStore creates /r with /r/a (containing /r/a/b and /r/a/f.txt) and /r/c.
func buildStore(t *testing.T) (*tree.Store[string], map[string]tree.NodeID) {
	t.Helper()
	s := tree.NewStore(isFile)
	ids := map[string]tree.NodeID{}
	root, err := s.CreateRoot("/r")
	if err != nil {
		t.Fatal(err)
	}
	ids["/r"] = root
	for _, p := range []string{"/r/a", "/r/a/b", "/r/a/f.txt", "/r/c"} {
		id, err := s.AddChild(ids[filepath.Dir(p)], p)
		if err != nil {
			t.Fatal(err)
		}
		ids[p] = id
	}
	return s, ids
}

func TestSnapshotRecordsNonDefaults(t *testing.T) {
	s, ids := buildStore(t)
	_ = s.SetExpanded(ids["/r"], true)
	_ = s.SetExpanded(ids["/r/a"], true)

	st := Snapshot(s, ids["/r/a/f.txt"], identity)
	want := map[string]bool{"/r/a": true}
	if !reflect.DeepEqual(st.Expanded, want) {
		t.Errorf("expanded = %v, want %v", st.Expanded, want)
	}
	if st.Cursor != "/r/a/f.txt" {
		t.Errorf("cursor = %q", st.Cursor)
	}

	// A collapsed root is recorded explicitly
	_ = s.SetExpanded(ids["/r"], false)
	st = Snapshot(s, tree.NoNode, identity)
	if v, ok := st.Expanded["/r"]; !ok || v {
		t.Errorf("expected /r recorded as collapsed, got %v", st.Expanded)
	}
	if st.Cursor != "" {
		t.Errorf("cursor = %q, want empty", st.Cursor)
	}
}

func TestApply(t *testing.T) {
	s, ids := buildStore(t)
	st := &TreeState{
		Version: Version,
		Expanded: map[string]bool{
			"/r":         true,
			"/r/a":       true,
			"/r/a/b":     false,
			"/r/gone":    true,
			"/r/a/f.txt": true, // leaves cannot expand
		},
		Cursor: "/r/c",
	}

	cursor, pending := Apply(st, s, identity)
	if cursor != ids["/r/c"] {
		t.Errorf("cursor = %v, want /r/c", cursor)
	}
	if !reflect.DeepEqual(pending, []string{"/r/gone"}) {
		t.Errorf("pending = %v, want [/r/gone]", pending)
	}
	for p, want := range map[string]bool{"/r": true, "/r/a": true, "/r/a/b": false, "/r/c": false} {
		if got, _ := s.Expanded(ids[p]); got != want {
			t.Errorf("%s expanded = %v, want %v", p, got, want)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := Path(filepath.Join(t.TempDir(), "nested", "state"))
	st := New()
	st.Expanded["/r/a"] = true
	st.Expanded["/r"] = false
	st.Cursor = "/r/a"

	if err := Save(path, st); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, st) {
		t.Errorf("loaded %+v, want %+v", got, st)
	}
	if keys := got.ExpandedKeys(); !reflect.DeepEqual(keys, []string{"/r/a"}) {
		t.Errorf("ExpandedKeys = %v", keys)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the state file, found %d entries", len(entries))
	}
}

func TestLoadFallbacks(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
		anyErr  bool
	}{
		{name: "missing"},
		{name: "corrupt", content: "{not json", anyErr: true},
		{name: "future", content: `{"version": 99, "expanded": {}}`, wantErr: ErrUnsupportedVersion},
		{name: "null map", content: `{"version": 1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".json")
			if tc.content != "" {
				if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			st, err := Load(path)
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("err = %v, want %v", err, tc.wantErr)
				}
			case tc.anyErr:
				if err == nil {
					t.Error("expected an error")
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
			if st == nil || st.Expanded == nil {
				t.Fatal("Load must always return a usable state")
			}
		})
	}
}

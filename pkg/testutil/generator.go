// Package testutil provides directory fixtures and golden file helpers for
// tests. All generators produce deterministic output for reproducible tests.
package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/vanderheijden86/arbor/pkg/loader"
)

// Fixture is a directory tree described by slash-separated paths relative
// to its root. A trailing slash marks a directory; parent directories are
// implied. Files map to their content.
type Fixture struct {
	Description string            `json:"description"`
	Files       map[string]string `json:"files"`
}

// NewFixture builds a fixture from paths with empty content.
func NewFixture(paths ...string) Fixture {
	f := Fixture{Files: make(map[string]string, len(paths))}
	for _, p := range paths {
		f.Files[p] = ""
	}
	return f
}

// Listings returns the entries of every directory in f, keyed by path
// under root. Entries keep map-independent, sorted order.
func (f Fixture) Listings(root string) map[string][]loader.Entry {
	type key struct {
		dir  string
		name string
	}
	seen := make(map[key]bool)
	out := map[string][]loader.Entry{filepath.Clean(root): nil}

	add := func(dir, name string, isDir bool) {
		k := key{dir, name}
		if seen[k] {
			return
		}
		seen[k] = true
		abs := filepath.Join(root, filepath.FromSlash(dir))
		out[abs] = append(out[abs], loader.Entry{Name: name, IsDir: isDir})
		if isDir {
			child := filepath.Join(abs, name)
			if _, ok := out[child]; !ok {
				out[child] = nil
			}
		}
	}

	for _, p := range f.paths() {
		isDir := strings.HasSuffix(p, "/")
		parts := strings.Split(strings.Trim(p, "/"), "/")
		for i, name := range parts {
			dir := path.Join(parts[:i]...)
			add(dir, name, isDir || i < len(parts)-1)
		}
	}
	for _, entries := range out {
		loader.SortByName(entries)
	}
	return out
}

func (f Fixture) paths() []string {
	paths := make([]string, 0, len(f.Files))
	for p := range f.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Lister returns an in-memory Lister over f rooted at root. Unknown
// directories fail with fs.ErrNotExist.
func (f Fixture) Lister(root string) loader.Lister {
	listings := f.Listings(root)
	return loader.ListerFunc(func(ctx context.Context, dir string) ([]loader.Entry, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, ok := listings[filepath.Clean(dir)]
		if !ok {
			return nil, fmt.Errorf("list %s: %w", dir, fs.ErrNotExist)
		}
		return slices.Clone(entries), nil
	})
}

// Write creates f on disk under root.
func (f Fixture) Write(t testing.TB, root string) {
	t.Helper()
	for _, p := range f.paths() {
		abs := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(p, "/")))
		if strings.HasSuffix(p, "/") {
			if err := os.MkdirAll(abs, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", abs, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(abs), err)
		}
		if err := os.WriteFile(abs, []byte(f.Files[p]), 0o644); err != nil {
			t.Fatalf("write %s: %v", abs, err)
		}
	}
}

// TempTree writes f into a fresh temporary directory and returns its path.
// The directory is cleaned up after the test.
func TempTree(t testing.TB, f Fixture) string {
	t.Helper()
	root := t.TempDir()
	f.Write(t, root)
	return root
}

// Count returns the number of directories and files in f, not counting the
// root.
func (f Fixture) Count() (dirs, files int) {
	for _, entries := range f.Listings("/") {
		for _, e := range entries {
			if e.IsDir {
				dirs++
			} else {
				files++
			}
		}
	}
	return dirs, files
}

// Generator creates fixtures with various shapes.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a Generator. The same seed yields the same fixtures.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Balanced returns a tree where every directory above depth has breadth
// subdirectories dirN/ and every directory has breadth files fileN.txt.
func (g *Generator) Balanced(depth, breadth int) Fixture {
	f := Fixture{
		Description: fmt.Sprintf("balanced tree depth=%d breadth=%d", depth, breadth),
		Files:       make(map[string]string),
	}
	var gen func(prefix string, level int)
	gen = func(prefix string, level int) {
		for i := 0; i < breadth; i++ {
			f.Files[fmt.Sprintf("%sfile%d.txt", prefix, i)] = ""
		}
		if level >= depth {
			return
		}
		for i := 0; i < breadth; i++ {
			dir := fmt.Sprintf("%sdir%d/", prefix, i)
			f.Files[dir] = ""
			gen(dir, level+1)
		}
	}
	gen("", 0)
	return f
}

// Flat returns a single directory holding n files.
func (g *Generator) Flat(n int) Fixture {
	f := Fixture{Description: fmt.Sprintf("flat directory with %d files", n), Files: make(map[string]string, n)}
	for i := 0; i < n; i++ {
		f.Files[fmt.Sprintf("file%04d.txt", i)] = ""
	}
	return f
}

// Random returns n entries placed under random earlier directories, with
// roughly one directory for every three entries.
func (g *Generator) Random(n int) Fixture {
	f := Fixture{Description: fmt.Sprintf("random tree with %d entries", n), Files: make(map[string]string, n)}
	dirs := []string{""}
	for i := 0; i < n; i++ {
		parent := dirs[g.rng.Intn(len(dirs))]
		if g.rng.Intn(3) == 0 {
			dir := fmt.Sprintf("%sd%d/", parent, i)
			f.Files[dir] = ""
			dirs = append(dirs, dir)
			continue
		}
		f.Files[fmt.Sprintf("%sf%d.txt", parent, i)] = ""
	}
	return f
}

package loader_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vanderheijden86/arbor/pkg/loader"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, f)
		if f[len(f)-1] == '/' {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func names(entries []loader.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
		if e.IsDir {
			out[i] += "/"
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDirListerOptions(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "c.txt", "b/", "a.txt", ".hidden", "node_modules/", "x.log")

	tests := []struct {
		name string
		opts []loader.Option
		want []string
	}{
		{"default", nil, []string{"a.txt", "b/", "c.txt", "node_modules/", "x.log"}},
		{"hidden", []loader.Option{loader.WithHidden(true)}, []string{".hidden", "a.txt", "b/", "c.txt", "node_modules/", "x.log"}},
		{"dirs first", []loader.Option{loader.WithDirsFirst(true)}, []string{"b/", "node_modules/", "a.txt", "c.txt", "x.log"}},
		{"ignore", []loader.Option{loader.WithIgnore("node_modules", "*.log")}, []string{"a.txt", "b/", "c.txt"}},
		{"bad pattern never matches", []loader.Option{loader.WithIgnore("[")}, []string{"a.txt", "b/", "c.txt", "node_modules/", "x.log"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loader.NewDirLister(tt.opts...).List(context.Background(), dir)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if !equal(names(got), tt.want) {
				t.Errorf("got %v, want %v", names(got), tt.want)
			}
		})
	}
}

func TestDirListerMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	_, err := loader.NewDirLister().List(context.Background(), missing)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if !errors.Is(err, loader.ErrListingFailed) {
		t.Errorf("error %v does not match ErrListingFailed", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error %v does not unwrap to fs.ErrNotExist", err)
	}
	var le *loader.ListingError
	if !errors.As(err, &le) || le.Path != missing {
		t.Errorf("expected *ListingError for %s, got %#v", missing, err)
	}
}

func TestDirListerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loader.NewDirLister().List(ctx, t.TempDir())
	if !errors.Is(err, context.Canceled) || !errors.Is(err, loader.ErrListingFailed) {
		t.Errorf("expected cancelled listing error, got %v", err)
	}
}

func TestDirListerConcurrentCallersGetOwnCopies(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "a", "b", "c")
	l := loader.NewDirLister()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.List(context.Background(), dir)
			if err != nil {
				errs <- err
				return
			}
			if !equal(names(got), []string{"a", "b", "c"}) {
				errs <- errors.New("unexpected listing")
				return
			}
			got[0].Name = "mutated"
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestListingErrorIsStable(t *testing.T) {
	cause := errors.New("boom")
	le := loader.AsListingError("/p", cause)
	if le.Path != "/p" || !errors.Is(le, cause) {
		t.Fatalf("unexpected wrap %#v", le)
	}
	if again := loader.AsListingError("/other", le); again != le {
		t.Error("wrapping a ListingError twice should return it unchanged")
	}
}

func TestValidatePatterns(t *testing.T) {
	if err := loader.ValidatePatterns([]string{"*.go", "vendor"}); err != nil {
		t.Errorf("valid patterns rejected: %v", err)
	}
	if err := loader.ValidatePatterns([]string{"ok", "[bad"}); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestSortDirsFirstIsStable(t *testing.T) {
	entries := []loader.Entry{{Name: "b"}, {Name: "z", IsDir: true}, {Name: "a"}, {Name: "c", IsDir: true}}
	loader.SortDirsFirst(entries)
	if got := names(entries); !equal(got, []string{"c/", "z/", "a", "b"}) {
		t.Errorf("got %v", got)
	}
}

func TestListTree(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "a/b/c/deep.txt", "a/one.txt", "top.txt")

	got, err := loader.ListTree(context.Background(), loader.NewDirLister(), dir, 2)
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected root and a/ to be listed, got %d listings", len(got))
	}
	a := got[filepath.Join(dir, "a")]
	if a.Depth != 1 || !equal(names(a.Entries), []string{"b/", "one.txt"}) {
		t.Errorf("unexpected listing of a: %+v", a)
	}
	if _, ok := got[filepath.Join(dir, "a", "b")]; ok {
		t.Error("a/b is beyond maxDepth and should not be listed")
	}
}

func TestListTreeRecordsFailures(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	l := loader.ListerFunc(func(ctx context.Context, path string) ([]loader.Entry, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if path == "/r" {
			return []loader.Entry{{Name: "bad", IsDir: true}, {Name: "ok", IsDir: true}}, nil
		}
		if path == filepath.Join("/r", "bad") {
			return nil, &loader.ListingError{Path: path, Cause: fs.ErrPermission}
		}
		return nil, nil
	})

	got, err := loader.ListTree(context.Background(), l, "/r", 5)
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 listings, got %d", calls)
	}
	if bad := got[filepath.Join("/r", "bad")]; !errors.Is(bad.Err, fs.ErrPermission) {
		t.Errorf("expected permission failure recorded, got %v", bad.Err)
	}
}

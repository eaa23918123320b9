// Package loader lists directory entries for the directory tree.
//
// The tree only depends on the Lister interface; DirLister is the
// os.ReadDir backed implementation used by the arbor binary.
package loader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/arbor/pkg/debug"
)

// ErrListingFailed matches every error returned by a failed listing.
var ErrListingFailed = errors.New("listing failed")

// Entry is one directory entry as reported by a Lister.
type Entry struct {
	Name  string
	IsDir bool
}

// Hidden reports whether the entry is a dot file.
func (e Entry) Hidden() bool {
	return strings.HasPrefix(e.Name, ".")
}

// Lister lists the entries of a directory.
type Lister interface {
	List(ctx context.Context, path string) ([]Entry, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context, path string) ([]Entry, error)

// List calls f(ctx, path).
func (f ListerFunc) List(ctx context.Context, path string) ([]Entry, error) {
	return f(ctx, path)
}

// ListingError wraps the cause of a failed listing with the path that was
// being listed.
type ListingError struct {
	Path  string
	Cause error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %s: %v", e.Path, e.Cause)
}

func (e *ListingError) Unwrap() error {
	return e.Cause
}

// Is makes every ListingError match ErrListingFailed.
func (e *ListingError) Is(target error) bool {
	return target == ErrListingFailed
}

// AsListingError wraps err in a *ListingError unless it already is one.
func AsListingError(path string, err error) *ListingError {
	var le *ListingError
	if errors.As(err, &le) {
		return le
	}
	return &ListingError{Path: path, Cause: err}
}

// DirLister lists real directories with os.ReadDir. Concurrent listings of
// the same path share a single read.
type DirLister struct {
	showHidden bool
	dirsFirst  bool
	ignore     []string

	group singleflight.Group
}

// Option configures a DirLister.
type Option func(*DirLister)

// WithHidden includes dot files in listings.
func WithHidden(show bool) Option {
	return func(d *DirLister) {
		d.showHidden = show
	}
}

// WithDirsFirst pre-sorts listings so directories come before files.
// Without it entries are returned sorted by name.
func WithDirsFirst(dirsFirst bool) Option {
	return func(d *DirLister) {
		d.dirsFirst = dirsFirst
	}
}

// WithIgnore drops entries whose name matches any of the filepath.Match
// patterns. Malformed patterns never match; use ValidatePatterns to reject
// them up front.
func WithIgnore(patterns ...string) Option {
	return func(d *DirLister) {
		d.ignore = append(d.ignore, patterns...)
	}
}

// NewDirLister creates a DirLister.
func NewDirLister(opts ...Option) *DirLister {
	d := &DirLister{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// List implements Lister. Returned errors are *ListingError values.
func (d *DirLister) List(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ListingError{Path: path, Cause: err}
	}

	ch := d.group.DoChan(path, func() (any, error) {
		return d.read(path)
	})

	select {
	case <-ctx.Done():
		return nil, &ListingError{Path: path, Cause: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		debug.LogIf(res.Shared, "loader: shared listing of %s", path)
		// Callers may sort or trim their copy.
		return slices.Clone(res.Val.([]Entry)), nil
	}
}

func (d *DirLister) read(path string) ([]Entry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, &ListingError{Path: path, Cause: err}
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		e := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if de.Type()&os.ModeSymlink != 0 {
			// Follow links so a link to a directory can be expanded.
			if info, err := os.Stat(filepath.Join(path, de.Name())); err == nil {
				e.IsDir = info.IsDir()
			}
		}
		if !d.showHidden && e.Hidden() {
			continue
		}
		if d.ignored(e.Name) {
			continue
		}
		entries = append(entries, e)
	}

	if d.dirsFirst {
		SortDirsFirst(entries)
	} else {
		SortByName(entries)
	}
	return entries, nil
}

func (d *DirLister) ignored(name string) bool {
	for _, pattern := range d.ignore {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ValidatePatterns returns an error naming the first malformed pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("ignore pattern %q: %w", p, err)
		}
	}
	return nil
}

// SortByName orders entries lexicographically by name.
func SortByName(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Name, b.Name)
	})
}

// SortDirsFirst orders directories before files, each group by name.
func SortDirsFirst(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if a.IsDir != b.IsDir {
			if a.IsDir {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

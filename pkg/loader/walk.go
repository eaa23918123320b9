package loader

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// maxParallel bounds concurrent directory reads in ListTree.
const maxParallel = 16

// Listing is the result of listing one directory during ListTree.
type Listing struct {
	Path    string
	Depth   int
	Entries []Entry
	Err     error
}

// ListTree lists root and its subdirectories down to maxDepth levels
// (1 lists only root), one level at a time with the directories of a level
// read concurrently. Per-directory failures are reported in the Listing
// rather than aborting the walk; the returned error is only set when ctx
// is done.
func ListTree(ctx context.Context, l Lister, root string, maxDepth int) (map[string]Listing, error) {
	out := make(map[string]Listing)
	level := []string{root}

	for depth := 0; depth < maxDepth && len(level) > 0; depth++ {
		results := make([]Listing, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallel)
		for i, path := range level {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				entries, err := l.List(gctx, path)
				results[i] = Listing{Path: path, Depth: depth, Entries: entries, Err: err}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return out, err
		}

		var next []string
		for _, r := range results {
			out[r.Path] = r
			if r.Err != nil {
				continue
			}
			for _, e := range r.Entries {
				if e.IsDir {
					next = append(next, filepath.Join(r.Path, e.Name))
				}
			}
		}
		level = next
	}
	return out, ctx.Err()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"golang.org/x/term"

	"github.com/vanderheijden86/arbor/pkg/config"
	"github.com/vanderheijden86/arbor/pkg/debug"
	"github.com/vanderheijden86/arbor/pkg/loader"
	"github.com/vanderheijden86/arbor/pkg/metrics"
	"github.com/vanderheijden86/arbor/pkg/version"
	"github.com/vanderheijden86/arbor/pkg/watcher"
)

func main() {
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	bookmark := flag.String("bookmark", "", "Open the bookmarked directory with this name")
	hidden := flag.Bool("hidden", false, "Show hidden files")
	dirsFirst := flag.Bool("dirs-first", false, "List directories before files")
	noWatch := flag.Bool("no-watch", false, "Do not reload directories when they change")
	printFlag := flag.Bool("print", false, "Print the tree to stdout instead of starting the TUI")
	depth := flag.Int("depth", 3, "Levels to list with --print")
	metricsFlag := flag.Bool("metrics", false, "Print timing and cache metrics as JSON to stderr on exit")
	flag.Parse()

	if *help {
		fmt.Println("Usage: arbor [options] [directory]")
		fmt.Println("\nA terminal directory tree browser.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("arbor %s\n", version.Version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		// Non-fatal: continue with defaults
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		cfg = config.DefaultConfig()
	}

	// CLI flags override the config file
	if *hidden {
		cfg.Tree.ShowHidden = true
	}
	if *dirsFirst {
		cfg.Tree.DirsFirst = true
	}
	if *noWatch {
		cfg.Tree.Watch = false
	}

	root, err := resolveRoot(cfg, *bookmark, flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is not a directory\n", root)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lister := loader.NewDirLister(cfg.ListerOptions()...)

	if *printFlag || !term.IsTerminal(int(os.Stdout.Fd())) {
		if err := printTree(ctx, os.Stdout, lister, root, *depth, cfg.Tree.DirsFirst); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var w *watcher.Watcher
	if cfg.Tree.Watch {
		w, err = watcher.NewWatcher(root, watcher.WithOnError(func(err error) {
			debug.Log("watcher: %v", err)
		}))
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			// Live reload is optional
			debug.Log("watcher disabled: %v", err)
			w = nil
		} else {
			defer w.Stop()
		}
	}

	m := newApp(ctx, cfg, root, lister, w)
	if err := runTUIProgram(m); err != nil {
		fmt.Printf("Error running arbor: %v\n", err)
		os.Exit(1)
	}
	if err := m.saveState(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: saving tree state: %v\n", err)
	}
	if *metricsFlag {
		writeMetrics(os.Stderr)
	}
}

func writeMetrics(w io.Writer) {
	data, err := json.MarshalIndent(metrics.Snapshot(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding metrics: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

// resolveRoot picks the directory to open: a bookmark, then the positional
// argument, then the working directory.
func resolveRoot(cfg config.Config, bookmark, arg string) (string, error) {
	path := arg
	if bookmark != "" {
		b := cfg.FindBookmark(bookmark)
		if b == nil {
			return "", fmt.Errorf("unknown bookmark %q", bookmark)
		}
		path = b.ResolvedPath()
	}
	if path == "" {
		path = "."
	}
	return filepath.Abs(path)
}

// printTree lists root down to depth levels and writes it with the same
// guide lines the TUI draws.
func printTree(ctx context.Context, out io.Writer, l loader.Lister, root string, depth int, dirsFirst bool) error {
	listings, err := loader.ListTree(ctx, l, root, max(depth, 1))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, filepath.Base(root))
	var walk func(dir, prefix string)
	walk = func(dir, prefix string) {
		listing, ok := listings[dir]
		if !ok {
			return
		}
		if listing.Err != nil {
			fmt.Fprintf(out, "%s└── [%v]\n", prefix, listing.Err)
			return
		}
		entries := append([]loader.Entry(nil), listing.Entries...)
		if dirsFirst {
			loader.SortDirsFirst(entries)
		} else {
			loader.SortByName(entries)
		}
		for i, e := range entries {
			branch, next := "├── ", "│   "
			if i == len(entries)-1 {
				branch, next = "└── ", "    "
			}
			name := e.Name
			if e.IsDir {
				name += string(filepath.Separator)
			}
			fmt.Fprintf(out, "%s%s%s\n", prefix, branch, name)
			if e.IsDir {
				walk(filepath.Join(dir, e.Name), prefix+next)
			}
		}
	}
	walk(root, "")
	return nil
}

func runTUIProgram(m *app) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set ARBOR_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("ARBOR_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}

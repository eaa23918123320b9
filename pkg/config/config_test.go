package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Tree.Watch {
		t.Error("expected watching to be on by default")
	}
	if cfg.Tree.RowCacheSize != 512 {
		t.Errorf("expected row cache size 512, got %d", cfg.Tree.RowCacheSize)
	}
	if !cfg.UI.ShowHeader || !cfg.UI.ShowFooter {
		t.Error("expected header and footer to be shown by default")
	}
	if !cfg.State.Persist {
		t.Error("expected state persistence by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFrom_NonExistent(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestLoadFrom_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
bookmarks:
  - name: src
    path: ~/src
  - name: etc
    path: /etc

tree:
  show_hidden: true
  dirs_first: true
  ignore: ["*.o", "node_modules"]
  watch: false
  row_cache_size: 64
  load_timeout_ms: 1500

ui:
  show_footer: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Bookmarks) != 2 {
		t.Fatalf("expected 2 bookmarks, got %d", len(cfg.Bookmarks))
	}
	// Path should have ~ expanded
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "src"); cfg.Bookmarks[0].Path != want {
		t.Errorf("expected expanded path %q, got %q", want, cfg.Bookmarks[0].Path)
	}
	if cfg.Bookmarks[1].Path != "/etc" {
		t.Errorf("expected absolute path preserved, got %q", cfg.Bookmarks[1].Path)
	}

	if !cfg.Tree.ShowHidden || !cfg.Tree.DirsFirst || cfg.Tree.Watch {
		t.Errorf("unexpected tree flags %+v", cfg.Tree)
	}
	if !reflect.DeepEqual(cfg.Tree.Ignore, []string{"*.o", "node_modules"}) {
		t.Errorf("unexpected ignore list %v", cfg.Tree.Ignore)
	}
	if cfg.Tree.RowCacheSize != 64 {
		t.Errorf("expected row_cache_size 64, got %d", cfg.Tree.RowCacheSize)
	}
	if cfg.LoadTimeout() != 1500*time.Millisecond {
		t.Errorf("expected 1.5s timeout, got %v", cfg.LoadTimeout())
	}

	// Keys absent from the file keep their defaults
	if !cfg.UI.ShowHeader {
		t.Error("show_header should keep its default")
	}
	if cfg.UI.ShowFooter {
		t.Error("show_footer should be false")
	}
	if len(cfg.ListerOptions()) != 3 {
		t.Error("expected one lister option per tree setting")
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad pattern", func(c *Config) { c.Tree.Ignore = []string{"[unclosed"} }, "ignore pattern"},
		{"negative cache", func(c *Config) { c.Tree.RowCacheSize = -1 }, "row_cache_size"},
		{"negative timeout", func(c *Config) { c.Tree.LoadTimeoutMS = -5 }, "load_timeout_ms"},
		{"nameless bookmark", func(c *Config) { c.Bookmarks = []Bookmark{{Path: "/x"}} }, "bookmark"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFrom_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tree:\n  ignore: [\"[bad\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected a validation error")
	}
}

func TestEnvWatchOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	t.Setenv("ARBOR_WATCH", "false")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tree.Watch {
		t.Error("ARBOR_WATCH=false should disable watching")
	}

	t.Setenv("ARBOR_WATCH", "maybe")
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected an error for an invalid ARBOR_WATCH")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Tree.Watch = false
	cfg.Tree.Ignore = []string{".git"}
	cfg.UI.Clock = false
	cfg.SetBookmark("home", "/home/me")

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestBookmarks(t *testing.T) {
	var cfg Config
	cfg.SetBookmark("Src", "/src")
	cfg.SetBookmark("docs", "/docs")

	if b := cfg.FindBookmark("src"); b == nil || b.Path != "/src" {
		t.Errorf("FindBookmark is case-insensitive, got %v", b)
	}

	cfg.SetBookmark("SRC", "/elsewhere")
	if len(cfg.Bookmarks) != 2 || cfg.FindBookmark("src").Path != "/elsewhere" {
		t.Errorf("SetBookmark should replace, got %v", cfg.Bookmarks)
	}

	cfg.SetBookmark("src", "")
	if cfg.FindBookmark("src") != nil {
		t.Error("empty path should remove the bookmark")
	}
	if cfg.FindBookmark("missing") != nil {
		t.Error("expected nil for an unknown bookmark")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"~/", filepath.Join(home, "")},
		{"/absolute", "/absolute"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.expected {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
	if got := (Bookmark{Path: "~/x"}).ResolvedPath(); got != filepath.Join(home, "x") {
		t.Errorf("ResolvedPath = %q", got)
	}
}

func TestXDGOverrides(t *testing.T) {
	tests := []struct {
		env string
		fn  func() string
	}{
		{"XDG_CONFIG_HOME", ConfigDir},
		{"XDG_DATA_HOME", DataDir},
		{"XDG_STATE_HOME", StateDir},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv(tt.env, dir)
			if got, want := tt.fn(), filepath.Join(dir, "arbor"); got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		})
	}

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got, want := ConfigPath(), filepath.Join(dir, "arbor", "config.yaml"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

// Package config handles loading and saving arbor configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/arbor/config.yaml
//   - Data:    ~/.local/share/arbor/
//   - State:   ~/.local/state/arbor/ (tree state)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/arbor/pkg/loader"
)

const appName = "arbor"

// Bookmark is a named root directory that can be opened by name.
type Bookmark struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// TreeConfig controls what the directory tree lists and how.
type TreeConfig struct {
	ShowHidden    bool     `yaml:"show_hidden"`
	DirsFirst     bool     `yaml:"dirs_first"`
	Ignore        []string `yaml:"ignore,omitempty"` // filepath.Match patterns on entry names
	Watch         bool     `yaml:"watch"`            // reload directories when they change
	RowCacheSize  int      `yaml:"row_cache_size"`   // rendered rows kept; 0 disables
	LoadTimeoutMS int      `yaml:"load_timeout_ms,omitempty"`
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	ShowHeader bool `yaml:"show_header"`
	ShowFooter bool `yaml:"show_footer"`
	Clock      bool `yaml:"clock"`
	Preview    bool `yaml:"preview"` // show a preview pane for the file under the cursor
}

// StateConfig controls persistence of expansion state between runs.
type StateConfig struct {
	Persist bool `yaml:"persist"`
}

// Config is the top-level configuration for arbor.
type Config struct {
	Bookmarks []Bookmark  `yaml:"bookmarks,omitempty"`
	Tree      TreeConfig  `yaml:"tree"`
	UI        UIConfig    `yaml:"ui"`
	State     StateConfig `yaml:"state"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Tree: TreeConfig{
			Watch:        true,
			RowCacheSize: 512,
		},
		UI: UIConfig{
			ShowHeader: true,
			ShowFooter: true,
			Clock:      true,
			Preview:    true,
		},
		State: StateConfig{
			Persist: true,
		},
	}
}

// ConfigDir returns the XDG config directory for arbor.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for arbor.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir returns the XDG state directory for arbor.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, fallback, appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		return cfg, applyEnv(&cfg)
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path, then applies environment
// overrides and validates the result.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return DefaultConfig(), fmt.Errorf("parsing config: %w", err)
		}
	}

	// Expand ~ in bookmark paths
	for i := range cfg.Bookmarks {
		cfg.Bookmarks[i].Path = expandHome(cfg.Bookmarks[i].Path)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv applies ARBOR_WATCH.
func applyEnv(cfg *Config) error {
	v, ok := os.LookupEnv("ARBOR_WATCH")
	if !ok || v == "" {
		return nil
	}
	watch, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("ARBOR_WATCH=%q: %w", v, err)
	}
	cfg.Tree.Watch = watch
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	var errs []error
	if err := loader.ValidatePatterns(c.Tree.Ignore); err != nil {
		errs = append(errs, err)
	}
	if c.Tree.RowCacheSize < 0 {
		errs = append(errs, fmt.Errorf("tree.row_cache_size must not be negative, got %d", c.Tree.RowCacheSize))
	}
	if c.Tree.LoadTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("tree.load_timeout_ms must not be negative, got %d", c.Tree.LoadTimeoutMS))
	}
	for _, b := range c.Bookmarks {
		if b.Name == "" || b.Path == "" {
			errs = append(errs, fmt.Errorf("bookmark %q needs both a name and a path", b.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// LoadTimeout returns the per-listing timeout, zero for none.
func (c Config) LoadTimeout() time.Duration {
	return time.Duration(c.Tree.LoadTimeoutMS) * time.Millisecond
}

// ListerOptions returns the loader options matching the tree settings.
func (c Config) ListerOptions() []loader.Option {
	return []loader.Option{
		loader.WithHidden(c.Tree.ShowHidden),
		loader.WithDirsFirst(c.Tree.DirsFirst),
		loader.WithIgnore(c.Tree.Ignore...),
	}
}

// FindBookmark returns the bookmark with the given name, or nil.
func (c Config) FindBookmark(name string) *Bookmark {
	for i := range c.Bookmarks {
		if strings.EqualFold(c.Bookmarks[i].Name, name) {
			return &c.Bookmarks[i]
		}
	}
	return nil
}

// SetBookmark adds or replaces the bookmark called name. An empty path
// removes it.
func (c *Config) SetBookmark(name, path string) {
	for i := range c.Bookmarks {
		if strings.EqualFold(c.Bookmarks[i].Name, name) {
			if path == "" {
				c.Bookmarks = append(c.Bookmarks[:i], c.Bookmarks[i+1:]...)
			} else {
				c.Bookmarks[i].Path = path
			}
			return
		}
	}
	if path != "" {
		c.Bookmarks = append(c.Bookmarks, Bookmark{Name: name, Path: path})
	}
}

// ResolvedPath returns the bookmark path with ~ expanded.
func (b Bookmark) ResolvedPath() string {
	return expandHome(b.Path)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/arbor/pkg/config"
	"github.com/vanderheijden86/arbor/pkg/debug"
	"github.com/vanderheijden86/arbor/pkg/loader"
	"github.com/vanderheijden86/arbor/pkg/state"
	"github.com/vanderheijden86/arbor/pkg/ui"
	"github.com/vanderheijden86/arbor/pkg/watcher"
)

// previewLimit caps how much of a file the preview pane reads.
const previewLimit = 64 << 10

type previewMsg struct {
	path    string
	content string
	err     error
}

type appKeys struct {
	Quit    key.Binding
	Help    key.Binding
	Preview key.Binding
}

func defaultAppKeys() appKeys {
	return appKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Preview: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "preview"),
		),
	}
}

// app lays out a header, the directory tree, an optional preview pane and a
// footer.
type app struct {
	cfg     config.Config
	theme   ui.Theme
	keys    appKeys
	header  *ui.Header
	tree    *ui.DirectoryTree
	preview *ui.Static
	footer  *ui.Footer

	statePath   string
	previewPath string
	showPreview bool
	width       int
	height      int
}

func newApp(ctx context.Context, cfg config.Config, root string, lister loader.Lister, w *watcher.Watcher) *app {
	theme := ui.DefaultTheme(lipgloss.DefaultRenderer())

	opts := []ui.DirOption{
		ui.WithContext(ctx),
		ui.WithDirsFirst(cfg.Tree.DirsFirst),
		ui.WithLoadTimeout(cfg.LoadTimeout()),
		ui.WithControlOptions(
			ui.WithTheme[ui.FileEntry](theme),
			ui.WithRowCache[ui.FileEntry](cfg.Tree.RowCacheSize),
		),
	}
	if w != nil {
		opts = append(opts, ui.WithWatcher(w))
	}

	m := &app{
		cfg:         cfg,
		theme:       theme,
		keys:        defaultAppKeys(),
		header:      ui.NewHeader(root, cfg.UI.Clock, theme),
		tree:        ui.NewDirectoryTree(root, lister, opts...),
		preview:     ui.NewStatic("", false, theme),
		footer:      ui.NewFooter(ui.DefaultDirKeyMap(), theme),
		showPreview: cfg.UI.Preview,
	}
	m.tree.Focus()
	if cfg.State.Persist {
		if dir := config.StateDir(); dir != "" {
			m.statePath = state.Path(dir)
		}
	}
	return m
}

// restoreState applies the saved expansion to the tree. Directories that
// are not loaded yet are expanded as their listings arrive.
func (m *app) restoreState() tea.Cmd {
	if m.statePath == "" {
		return nil
	}
	st, err := state.Load(m.statePath)
	if err != nil {
		debug.Log("loading tree state: %v", err)
	}
	byPath := func(e ui.FileEntry) string { return e.Path }
	_, pending := state.Apply(st, m.tree.Store(), byPath)
	return m.tree.Restore(pending, st.Cursor)
}

func (m *app) saveState() error {
	if m.statePath == "" {
		return nil
	}
	cursor, _ := m.tree.Cursor()
	st := state.Snapshot(m.tree.Store(), cursor, func(e ui.FileEntry) string { return e.Path })
	return state.Save(m.statePath, st)
}

func (m *app) Init() tea.Cmd {
	restore := m.restoreState()
	return tea.Batch(restore, m.tree.Init(), m.header.Init())
}

func (m *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.header, cmd = m.header.Update(msg)
	cmds = append(cmds, cmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.footer.ToggleFullHelp()
			m.layout()
			return m, tea.Batch(cmds...)
		case key.Matches(msg, m.keys.Preview):
			m.showPreview = !m.showPreview
			m.layout()
			return m, tea.Batch(cmds...)
		}
		m.footer.SetStatus("")

	case ui.FileClick:
		if m.showPreview {
			cmds = append(cmds, loadPreview(msg.Path))
		}
		m.footer.SetStatus(msg.Path)

	case previewMsg:
		m.showFile(msg)

	case ui.ListingFailed:
		m.footer.SetStatus(m.theme.Renderer.NewStyle().Foreground(m.theme.Error).Render(msg.Err.Error()))

	case ui.CopiedMsg:
		if msg.Err != nil {
			m.footer.SetStatus("copy failed: " + msg.Err.Error())
		} else {
			m.footer.SetStatus("copied " + msg.Path)
		}
	}

	m.tree, cmd = m.tree.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *app) showFile(msg previewMsg) {
	m.previewPath = msg.path
	switch {
	case msg.err != nil:
		m.preview.SetContent(msg.err.Error(), false)
	case strings.EqualFold(filepath.Ext(msg.path), ".md"):
		m.preview.SetContent(msg.content, true)
	default:
		m.preview.SetContent(msg.content, false)
	}
}

var errBinary = errors.New("binary file")

func loadPreview(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return previewMsg{path: path, err: err}
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, previewLimit))
		if err != nil {
			return previewMsg{path: path, err: err}
		}
		if bytes.IndexByte(data, 0) >= 0 {
			return previewMsg{path: path, err: fmt.Errorf("%s: %w", filepath.Base(path), errBinary)}
		}
		return previewMsg{path: path, content: string(data)}
	}
}

func (m *app) headerHeight() int {
	if m.cfg.UI.ShowHeader {
		return 1
	}
	return 0
}

func (m *app) footerHeight() int {
	if !m.cfg.UI.ShowFooter {
		return 0
	}
	m.footer.SetSize(m.width, 1)
	return lipgloss.Height(m.footer.View())
}

func (m *app) treeWidth() int {
	if m.showPreview {
		return m.width / 2
	}
	return m.width
}

func (m *app) layout() {
	m.header.SetSize(m.width, 1)
	body := max(m.height-m.headerHeight()-m.footerHeight(), 1)
	tw := m.treeWidth()
	m.tree.SetSize(tw, body)
	m.tree.SetPosition(0, m.headerHeight())
	m.preview.SetSize(m.width-tw-1, body)
}

func (m *app) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	body := max(m.height-m.headerHeight()-m.footerHeight(), 1)
	tw := m.treeWidth()

	treeView := m.theme.Renderer.NewStyle().Width(tw).Height(body).MaxHeight(body).Render(m.tree.View())
	content := treeView
	if m.showPreview && m.width-tw-1 > 0 {
		pw := m.width - tw - 1
		var pane string
		if m.previewPath == "" {
			pane = ui.PrideStripes(pw, body, m.theme)
		} else {
			pane = m.preview.View()
		}
		sep := m.theme.Guide.Render(strings.TrimSuffix(strings.Repeat("│\n", body), "\n"))
		pane = m.theme.Renderer.NewStyle().Width(pw).Height(body).MaxHeight(body).Render(pane)
		content = lipgloss.JoinHorizontal(lipgloss.Top, treeView, sep, pane)
	}

	var parts []string
	if m.cfg.UI.ShowHeader {
		parts = append(parts, m.header.View())
	}
	parts = append(parts, content)
	if m.cfg.UI.ShowFooter {
		parts = append(parts, m.footer.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

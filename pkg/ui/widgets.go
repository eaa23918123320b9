package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const clockLayout = "15:04:05"

// clockTickMsg advances a Header's clock.
type clockTickMsg struct {
	owner *Header
	t     time.Time
}

// Header is a one-line title bar with an optional clock on the right.
type Header struct {
	Title string
	Clock bool

	theme Theme
	width int
	now   time.Time
	nowFn func() time.Time
}

// NewHeader creates a header.
func NewHeader(title string, clock bool, theme Theme) *Header {
	return &Header{Title: title, Clock: clock, theme: theme, nowFn: time.Now}
}

func (h *Header) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg{owner: h, t: t}
	})
}

// Init starts the clock.
func (h *Header) Init() tea.Cmd {
	if !h.Clock {
		return nil
	}
	h.now = h.nowFn()
	return h.tick()
}

// Update advances the clock.
func (h *Header) Update(msg tea.Msg) (*Header, tea.Cmd) {
	if msg, ok := msg.(clockTickMsg); ok && msg.owner == h {
		h.now = msg.t
		return h, h.tick()
	}
	return h, nil
}

// SetSize sets the header width. The header is always one line high.
func (h *Header) SetSize(width, _ int) {
	h.width = width
}

// View renders the header.
func (h *Header) View() string {
	content := h.Title
	if h.Clock {
		clock := h.now.Format(clockLayout)
		// Header style pads one cell on each side
		gap := h.width - 2 - runewidth.StringWidth(h.Title) - len(clock)
		content = h.Title + strings.Repeat(" ", max(gap, 1)) + clock
	}
	style := h.theme.Header
	if h.width > 0 {
		content = truncate(content, h.width-2)
		style = style.Width(h.width)
	}
	return style.Render(content)
}

// Footer renders a status message and the help for a key map.
type Footer struct {
	keys   help.KeyMap
	help   help.Model
	theme  Theme
	status string
	width  int
}

// NewFooter creates a footer showing the short help of keys.
func NewFooter(keys help.KeyMap, theme Theme) *Footer {
	return &Footer{keys: keys, help: help.New(), theme: theme}
}

// SetKeyMap replaces the key map shown.
func (f *Footer) SetKeyMap(keys help.KeyMap) {
	f.keys = keys
}

// SetStatus sets the message shown before the help. An empty string clears
// it.
func (f *Footer) SetStatus(status string) {
	f.status = status
}

// ToggleFullHelp switches between the short and the full help.
func (f *Footer) ToggleFullHelp() {
	f.help.ShowAll = !f.help.ShowAll
}

// ShowingFullHelp reports whether the full help is shown.
func (f *Footer) ShowingFullHelp() bool {
	return f.help.ShowAll
}

// SetSize sets the footer width.
func (f *Footer) SetSize(width, _ int) {
	f.width = width
	f.help.Width = max(width-2, 0)
}

// View renders the footer.
func (f *Footer) View() string {
	helpView := f.help.View(f.keys)
	content := helpView
	if f.status != "" {
		content = f.theme.Indicator.Render(f.status) + "  " + helpView
	}
	style := f.theme.Footer
	if f.width > 0 {
		style = style.Width(f.width)
	}
	return style.Render(content)
}

// Static shows fixed text, optionally rendered as markdown.
type Static struct {
	content  string
	markdown bool
	// MarkdownStyle names a glamour standard style. Empty selects the style
	// from the terminal background.
	MarkdownStyle string

	theme    Theme
	width    int
	height   int
	rendered string
	valid    bool
}

// NewStatic creates a static text widget.
func NewStatic(content string, markdown bool, theme Theme) *Static {
	return &Static{content: content, markdown: markdown, theme: theme}
}

// SetContent replaces the text.
func (s *Static) SetContent(content string, markdown bool) {
	if content == s.content && markdown == s.markdown {
		return
	}
	s.content = content
	s.markdown = markdown
	s.valid = false
}

// SetSize sets the area available. A non-positive size does not clip.
func (s *Static) SetSize(width, height int) {
	if width != s.width {
		s.valid = false
	}
	s.width = width
	s.height = height
}

func (s *Static) renderMarkdown() string {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if s.MarkdownStyle != "" {
		opts = []glamour.TermRendererOption{glamour.WithStandardStyle(s.MarkdownStyle)}
	}
	if s.width > 0 {
		opts = append(opts, glamour.WithWordWrap(s.width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return s.content
	}
	out, err := r.Render(s.content)
	if err != nil {
		return s.content
	}
	// Strip the blank lines glamour puts around the document
	return strings.Trim(out, "\n")
}

// View renders the text, clipped to the widget size.
func (s *Static) View() string {
	if !s.valid {
		if s.markdown {
			s.rendered = s.renderMarkdown()
		} else {
			s.rendered = s.content
		}
		s.valid = true
	}

	lines := strings.Split(s.rendered, "\n")
	if s.height > 0 && len(lines) > s.height {
		lines = lines[:s.height]
	}
	if s.width > 0 && !s.markdown {
		for i, l := range lines {
			lines[i] = truncate(l, s.width)
		}
	}
	return strings.Join(lines, "\n")
}

// PrideColors are the stripes of the pride flag, top to bottom.
var PrideColors = []string{"#E40303", "#FF8C00", "#FFED00", "#008026", "#004DFF", "#750787"}

// Placeholder fills its area with a solid color and a centered label.
type Placeholder struct {
	Label string
	Color lipgloss.TerminalColor

	theme  Theme
	width  int
	height int
}

// NewPlaceholder creates a placeholder.
func NewPlaceholder(label string, color lipgloss.TerminalColor, theme Theme) *Placeholder {
	return &Placeholder{Label: label, Color: color, theme: theme}
}

// SetSize sets the area to fill.
func (p *Placeholder) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// View renders the placeholder.
func (p *Placeholder) View() string {
	if p.width <= 0 || p.height <= 0 {
		return ""
	}
	r := p.theme.Renderer
	label := r.NewStyle().Background(p.Color).Foreground(ThemeFg("#FFFFFF")).Bold(true).Render(truncate(p.Label, p.width))
	return r.Place(p.width, p.height, lipgloss.Center, lipgloss.Center, label,
		lipgloss.WithWhitespaceBackground(p.Color))
}

// PrideStripes stacks one placeholder per pride color, sharing height as
// evenly as possible.
func PrideStripes(width, height int, theme Theme) string {
	n := len(PrideColors)
	stripes := make([]string, 0, n)
	for i, c := range PrideColors {
		h := height / n
		if i < height%n {
			h++
		}
		if h == 0 {
			continue
		}
		p := NewPlaceholder("", lipgloss.Color(c), theme)
		p.SetSize(width, h)
		stripes = append(stripes, p.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, stripes...)
}

// Button is a pressable label. It emits ButtonPressed on enter or space
// while focused, and on a left click inside its bounds.
type Button struct {
	ID    string
	Label string

	theme   Theme
	press   key.Binding
	focused bool
	x, y    int
	obs     observers
}

// NewButton creates an unfocused button.
func NewButton(id, label string, theme Theme) *Button {
	return &Button{
		ID:    id,
		Label: label,
		theme: theme,
		press: key.NewBinding(key.WithKeys("enter", " ")),
	}
}

// Subscribe registers fn to receive ButtonPressed events.
func (b *Button) Subscribe(fn func(Event)) (cancel func()) {
	return b.obs.subscribe(fn)
}

// Focus makes the button react to keys.
func (b *Button) Focus() { b.focused = true }

// Blur makes the button ignore keys.
func (b *Button) Blur() { b.focused = false }

// Focused reports whether the button reacts to keys.
func (b *Button) Focused() bool { return b.focused }

// SetPosition records where the button is drawn, for mouse hit testing.
func (b *Button) SetPosition(x, y int) {
	b.x = x
	b.y = y
}

// SetSize is a no-op: a button sizes itself to its label.
func (b *Button) SetSize(_, _ int) {}

// Press emits ButtonPressed.
func (b *Button) Press() tea.Cmd {
	return b.obs.emit(ButtonPressed{ID: b.ID})
}

// Update handles key and mouse presses.
func (b *Button) Update(msg tea.Msg) (*Button, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if b.focused && key.Matches(msg, b.press) {
			return b, b.Press()
		}
	case tea.MouseMsg:
		if msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress && b.contains(msg.X, msg.Y) {
			return b, b.Press()
		}
	}
	return b, nil
}

func (b *Button) contains(x, y int) bool {
	v := b.View()
	return x >= b.x && x < b.x+lipgloss.Width(v) && y >= b.y && y < b.y+lipgloss.Height(v)
}

// View renders the button.
func (b *Button) View() string {
	if b.focused {
		return b.theme.Focused.Render(b.Label)
	}
	return b.theme.Button.Render(b.Label)
}

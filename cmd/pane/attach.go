package main

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/migueldeicaza/Pane/internal/frame"
	"github.com/migueldeicaza/Pane/internal/wire"
)

// attachModel renders the live screen the server streams and forwards
// keystrokes as input/resize requests. ctrl-B is the prefix key for the
// session-level keybindings named in the external CLI spec (detach,
// create+switch, next, prev); everything else is forwarded verbatim as
// input.
type attachModel struct {
	conn     *frame.Conn
	renderer *lipgloss.Renderer

	cols, rows  uint16
	cursorX     uint16
	cursorY     uint16
	isAlternate bool
	lines       [][]wire.Cell

	prefixArmed bool
	detached    bool
	statusLine  string
}

type deltaMsg wire.Delta
type snapshotMsg wire.Snapshot
type connClosedMsg struct{ err error }

func newAttachModel(conn *frame.Conn, initial wire.Snapshot) *attachModel {
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.ANSI256))
	m := &attachModel{conn: conn, renderer: renderer}
	m.applySnapshot(initial)
	return m
}

// runAttachUI drives the attach TUI. initial is the snapshot already read
// (and validated) by the caller immediately after the attach response, so
// the model starts pre-populated and Init only waits for what follows it.
func runAttachUI(conn *frame.Conn, initial wire.Snapshot) error {
	m := newAttachModel(conn, initial)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	conn.Close()
	return err
}

func (m *attachModel) Init() tea.Cmd {
	return m.readNext
}

// readNext blocks on the server's next frame and converts it into a
// bubbletea message; Update returns it as the next command after each
// snapshot or delta it applies, which keeps exactly one reader on the
// connection at a time.
func (m *attachModel) readNext() tea.Msg {
	msg, err := m.conn.ReadMessage()
	if err != nil {
		return connClosedMsg{err: err}
	}
	switch msg.Type {
	case wire.TypeSnapshot:
		if snap, ok := msg.Snapshot(); ok {
			return snapshotMsg(snap)
		}
	case wire.TypeDelta:
		if delta, ok := msg.Delta(); ok {
			return deltaMsg(delta)
		}
	}
	return nil
}

func (m *attachModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.cols, m.rows = uint16(msg.Width), uint16(msg.Height)
		m.sendResize()
		return m, nil

	case snapshotMsg:
		m.applySnapshot(wire.Snapshot(msg))
		return m, m.readNext

	case deltaMsg:
		m.applyDelta(wire.Delta(msg))
		return m, m.readNext

	case connClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *attachModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prefixArmed {
		m.prefixArmed = false
		switch msg.String() {
		case "d":
			m.detached = true
			return m, tea.Quit
		case "c", "n", "p":
			// create+switch / next / prev: recognized, but no request is
			// sent and the attached session does not change; the status
			// line only reports that the keybinding fired.
			m.statusLine = fmt.Sprintf("keybinding %q is not wired to a session switch in this invocation", msg.String())
			return m, nil
		default:
			return m, nil
		}
	}

	if msg.Type == tea.KeyCtrlB {
		m.prefixArmed = true
		return m, nil
	}

	m.sendInput(msg)
	return m, nil
}

func (m *attachModel) sendInput(msg tea.KeyMsg) {
	data := keyBytes(msg)
	if len(data) == 0 {
		return
	}
	_ = m.conn.Send(wire.WireMessage{Type: wire.TypeInput, Input: &wire.InputPayload{Data: string(data)}})
}

func keyBytes(msg tea.KeyMsg) []byte {
	switch msg.Type {
	case tea.KeyEnter:
		return []byte("\r")
	case tea.KeyBackspace:
		return []byte{0x7f}
	case tea.KeyTab:
		return []byte("\t")
	case tea.KeyEsc:
		return []byte{0x1b}
	case tea.KeySpace:
		return []byte(" ")
	case tea.KeyRunes:
		return []byte(string(msg.Runes))
	default:
		return []byte(msg.String())
	}
}

func (m *attachModel) sendResize() {
	if m.cols == 0 || m.rows == 0 {
		return
	}
	_ = m.conn.Send(wire.WireMessage{Type: wire.TypeResize, Resize: &wire.ResizePayload{Cols: m.cols, Rows: m.rows}})
}

func (m *attachModel) applySnapshot(snap wire.Snapshot) {
	m.cols, m.rows = snap.Cols, snap.Rows
	m.cursorX, m.cursorY = snap.CursorX, snap.CursorY
	m.isAlternate = snap.IsAlternate
	m.lines = snap.Lines
}

func (m *attachModel) applyDelta(delta wire.Delta) {
	m.cursorX, m.cursorY = delta.CursorX, delta.CursorY
	for i, row := range delta.Lines {
		y := int(delta.StartY) + i
		if y >= 0 && y < len(m.lines) {
			m.lines[y] = row
		}
	}
}

func (m *attachModel) View() string {
	if m.detached {
		return ""
	}
	var b strings.Builder
	for _, row := range m.lines {
		b.WriteString(m.renderRow(row))
		b.WriteByte('\n')
	}
	if m.statusLine != "" {
		b.WriteString(m.statusLine)
	}
	return b.String()
}

func (m *attachModel) renderRow(row []wire.Cell) string {
	var b strings.Builder
	for _, cell := range row {
		if cell.Width == 0 {
			continue
		}
		b.WriteString(m.renderCell(cell))
	}
	return b.String()
}

func (m *attachModel) renderCell(cell wire.Cell) string {
	style := m.renderer.NewStyle()
	style = applyColor(style, cell.Attribute.Foreground, false)
	style = applyColor(style, cell.Attribute.Background, true)
	if cell.Attribute.Style&wire.StyleBold != 0 {
		style = style.Bold(true)
	}
	if cell.Attribute.Style&wire.StyleUnderline != 0 {
		style = style.Underline(true)
	}
	if cell.Attribute.Style&wire.StyleItalic != 0 {
		style = style.Italic(true)
	}
	if cell.Attribute.Style&wire.StyleInvert != 0 {
		style = style.Reverse(true)
	}
	return style.Render(cell.Char)
}

func applyColor(style lipgloss.Style, c wire.Color, background bool) lipgloss.Style {
	var col lipgloss.TerminalColor
	switch c.Variant {
	case wire.ColorANSI:
		col = lipgloss.Color(fmt.Sprintf("%d", c.Index))
	case wire.ColorTrueColor:
		col = lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
	default:
		return style
	}
	if background {
		return style.Background(col)
	}
	return style.Foreground(col)
}

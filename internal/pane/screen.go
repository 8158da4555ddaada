package pane

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/hinshun/vt10x"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/migueldeicaza/Pane/internal/wire"
)

// Mirrors vt10x's internal glyph mode bits.
const (
	glyphReverse   int16 = 1 << 0
	glyphUnderline int16 = 1 << 1
	glyphBold      int16 = 1 << 2
	glyphItalic    int16 = 1 << 4
	glyphBlink     int16 = 1 << 5
)

// screen wraps a vt10x terminal instance, converting its cell grid into
// wire snapshots and deltas and tracking which rows changed since the last
// clearDirty. vt10x exposes no dirty-range API of its own, so rows are
// diffed by content hash across feeds.
type screen struct {
	mu   sync.Mutex
	term vt10x.Terminal

	rowHash  []uint64
	dirtyMin int
	dirtyMax int // dirtyMin > dirtyMax means clean
}

func newScreen(cols, rows uint16) *screen {
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	return &screen{
		term:     vt10x.New(vt10x.WithSize(int(cols), int(rows))),
		rowHash:  make([]uint64, rows),
		dirtyMin: 1,
		dirtyMax: 0,
	}
}

func (s *screen) feed(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.term.Write(data)
	s.recomputeDirtyLocked()
}

func (s *screen) resize(cols, rows uint16) {
	if cols == 0 || rows == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term.Resize(int(cols), int(rows))
	s.rowHash = make([]uint64, rows)
	s.dirtyMin, s.dirtyMax = 0, int(rows)-1
}

func (s *screen) size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term.Size()
}

// dirtyRange returns the accumulated dirty row range, if any, in terms of
// the screen's dimensions as of the last feed or resize.
func (s *screen) dirtyRange() (start, end int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirtyMin > s.dirtyMax {
		return 0, 0, false
	}
	return s.dirtyMin, s.dirtyMax, true
}

func (s *screen) clearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyMin, s.dirtyMax = 1, 0
}

func (s *screen) recomputeDirtyLocked() {
	view := s.term
	view.Lock()
	defer view.Unlock()

	cols, rows := view.Size()
	if rows != len(s.rowHash) {
		s.rowHash = make([]uint64, rows)
		for y := 0; y < rows; y++ {
			s.rowHash[y] = hashRow(view, y, cols)
		}
		if rows > 0 {
			s.dirtyMin, s.dirtyMax = 0, rows-1
		}
		return
	}

	for y := 0; y < rows; y++ {
		h := hashRow(view, y, cols)
		if h == s.rowHash[y] {
			continue
		}
		s.rowHash[y] = h
		if s.dirtyMin > s.dirtyMax {
			s.dirtyMin, s.dirtyMax = y, y
			continue
		}
		if y < s.dirtyMin {
			s.dirtyMin = y
		}
		if y > s.dirtyMax {
			s.dirtyMax = y
		}
	}
}

func hashRow(view vt10x.View, y, cols int) uint64 {
	h := fnv.New64a()
	for x := 0; x < cols; x++ {
		cell := view.Cell(x, y)
		fmt.Fprintf(h, "%d,%d,%d,%d;", cell.Char, cell.Mode, int32(cell.FG), int32(cell.BG))
	}
	return h.Sum64()
}

// snapshot builds a full-screen wire.Snapshot from current emulator state.
func (s *screen) snapshot() wire.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.term
	view.Lock()
	defer view.Unlock()

	cols, rows := view.Size()
	cursor := view.Cursor()
	lines := make([][]wire.Cell, rows)
	for y := 0; y < rows; y++ {
		lines[y] = buildRow(view, y, cols)
	}

	return wire.Snapshot{
		Cols:        uint16(cols),
		Rows:        uint16(rows),
		CursorX:     uint16(clampCoord(cursor.X, cols-1)),
		CursorY:     uint16(clampCoord(cursor.Y, rows-1)),
		IsAlternate: view.Mode()&vt10x.ModeAltScreen != 0,
		Lines:       lines,
	}
}

// delta builds a wire.Delta over [startY, endY] after clipping to the
// current screen bounds. Callers must ensure startY <= endY after clipping
// before calling; clipRange computes that.
func (s *screen) delta(startY, endY int) wire.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.term
	view.Lock()
	defer view.Unlock()

	cols, rows := view.Size()
	cursor := view.Cursor()
	lines := make([][]wire.Cell, 0, endY-startY+1)
	for y := startY; y <= endY; y++ {
		lines = append(lines, buildRow(view, y, cols))
	}

	return wire.Delta{
		StartY:  uint16(startY),
		EndY:    uint16(endY),
		CursorX: uint16(clampCoord(cursor.X, cols-1)),
		CursorY: uint16(clampCoord(cursor.Y, rows-1)),
		Lines:   lines,
	}
}

// clipRange clips [start, end] to [0, rows-1] independently at each end, the
// way §4.3 specifies: a range entirely above or below the screen yields
// start > end, which the caller must treat as "suppress, no delta".
func clipRange(start, end, rows int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > rows-1 {
		end = rows - 1
	}
	return start, end
}

// buildRow emits exactly cols cells for row y, splitting wide runes into a
// width-2 cell followed by a width-0 companion and normalizing NUL/empty
// characters to a single space.
func buildRow(view vt10x.View, y, cols int) []wire.Cell {
	row := make([]wire.Cell, cols)
	x := 0
	for x < cols {
		cell := view.Cell(x, y)
		ch := cell.Char
		if ch == 0 {
			ch = ' '
		}
		attr := attrFromGlyph(cell)
		width := runewidth.RuneWidth(ch)
		if width == 2 && x+1 < cols {
			row[x] = wire.Cell{Char: string(ch), Width: 2, Attribute: attr}
			row[x+1] = wire.Cell{Char: "", Width: 0, Attribute: attr}
			x += 2
			continue
		}
		if width != 1 {
			width = 1 // clamp: zero-width runes still occupy a column; a
			// trailing wide rune with no room for its companion is
			// truncated to narrow so the row's width sum stays == cols.
		}
		row[x] = wire.Cell{Char: string(ch), Width: int8(width), Attribute: attr}
		x++
	}
	return row
}

func attrFromGlyph(g vt10x.Glyph) wire.Attribute {
	var style wire.Style
	if g.Mode&glyphBold != 0 {
		style |= wire.StyleBold
	}
	if g.Mode&glyphUnderline != 0 {
		style |= wire.StyleUnderline
	}
	if g.Mode&glyphBlink != 0 {
		style |= wire.StyleBlink
	}
	if g.Mode&glyphReverse != 0 {
		style |= wire.StyleInvert
	}
	if g.Mode&glyphItalic != 0 {
		style |= wire.StyleItalic
	}

	return wire.Attribute{
		Foreground: colorFromVT(g.FG),
		Background: colorFromVT(g.BG),
		Style:      style,
	}
}

// colorFromVT maps vt10x's palette-based color to a wire.Color. vt10x (and
// every renderer built atop it in the retrieved corpus) only ever produces
// default or ANSI/256-indexed colors, never true 24-bit color, so
// wire.TrueColor is never emitted here even though the codec supports it.
func colorFromVT(c vt10x.Color) wire.Color {
	if c == vt10x.DefaultFG || c == vt10x.DefaultBG {
		return wire.DefaultColor
	}
	if c < 256 {
		idx := int32(c)
		if idx >= 0 && idx <= 255 {
			return wire.AnsiColor(uint8(idx))
		}
	}
	return wire.DefaultColor
}

func clampCoord(value, max int) int {
	if value < 0 {
		return 0
	}
	if max < 0 {
		return 0
	}
	if value > max {
		return max
	}
	return value
}

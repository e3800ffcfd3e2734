// Package render composes the document for one agent and emits the
// minimal escape sequences needed to turn the previous terminal
// frame into the current one: the scrollback pane, a separator, the input
// pane, and a bottom separator, windowed by a viewport offset and diffed
// line by line against what was last drawn.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/ikigai-cli/ikigai/internal/agent"
)

// separatorRune fills the single-row separators above and below the input
// pane.
const separatorRune = '─'

// Cursor-control CSI sequences. These are hardcoded literals rather than
// library calls for the same reason termio hardcodes its two sequences:
// this is the one place in the renderer that needs exactly these escapes,
// not general-purpose styled output (that's what the scrollback pane's own
// ansi.Wordwrap/Hardwrap/ResetStyle wrapping already covers).
const (
	hideCursor    = "\x1b[?25l"
	showCursorSeq = "\x1b[?25h"
	eraseLineSeq  = "\x1b[K"
)

// cursorPosition returns the CSI sequence moving the cursor to the given
// 0-indexed row and column (CSI positions are 1-indexed).
func cursorPosition(row, col int) string {
	return fmt.Sprintf("\x1b[%d;%dH", row+1, col+1)
}

// Renderer remembers the last frame it drew so Render only emits escape
// sequences for rows that actually changed.
type Renderer struct {
	prevLines  []string
	prevWidth  int
	prevHeight int
	cursorRow  int
	cursorCol  int
	cursorShow bool
}

// New returns a Renderer with no prior frame, so the first Render draws
// every row.
func New() *Renderer {
	return &Renderer{}
}

// separator returns a row of width separatorRune characters.
func separator(width int) string {
	if width <= 0 {
		return ""
	}
	return strings.Repeat(string(separatorRune), width)
}

// sliceText returns the byte range [start:end) of text as a string, safe
// against any accidental out-of-range row from a stale layout.
func sliceText(text []byte, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		start = end
	}
	return string(text[start:end])
}

// inputLines renders the agent's input buffer as its wrapped visual lines
// at the given width, always returning at least one (possibly empty) row so
// the input pane never collapses to zero height.
func inputLines(a *agent.Agent, width int) []string {
	text := a.Input.Text()
	rows := a.Input.PhysicalLines(width)
	if len(rows) == 0 {
		return []string{""}
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = sliceText(text, r.Start, r.End)
	}
	return lines
}

// cursorRowCol maps the input buffer's byte cursor offset into a (row,
// column) pair within inputLines' wrapped rows, counting columns in runes
// rather than bytes.
func cursorRowCol(a *agent.Agent, width int) (row, col int) {
	rows := a.Input.PhysicalLines(width)
	if len(rows) == 0 {
		return 0, 0
	}
	offset := a.Input.CursorByteOffset()
	text := a.Input.Text()
	for i, r := range rows {
		if offset >= r.Start && offset <= r.End {
			return i, len([]rune(sliceText(text, r.Start, offset)))
		}
	}
	last := rows[len(rows)-1]
	return len(rows) - 1, len([]rune(sliceText(text, last.Start, last.End)))
}

// Document composes the full, unwindowed set of physical rows for the
// given agent at the given width: scrollback rows, a separator, the input
// pane (at least one row), and a bottom separator. It also returns the
// (row, column) of the cursor within that document.
func Document(a *agent.Agent, width int) (lines []string, cursorRow, cursorCol int) {
	sb := a.Scrollback.PhysicalLines(width)
	in := inputLines(a, width)

	lines = make([]string, 0, len(sb)+2+len(in))
	lines = append(lines, sb...)
	lines = append(lines, separator(width))
	lines = append(lines, in...)
	lines = append(lines, separator(width))

	ir, ic := cursorRowCol(a, width)
	cursorRow = len(sb) + 1 + ir
	cursorCol = ic
	return lines, cursorRow, cursorCol
}

// ClampOffset returns viewportOffset clamped into [0, max(0, documentRows -
// terminalRows)], the invariant that must hold after every action.
func ClampOffset(viewportOffset, documentRows, terminalRows int) int {
	max := documentRows - terminalRows
	if max < 0 {
		max = 0
	}
	if viewportOffset < 0 {
		return 0
	}
	if viewportOffset > max {
		return max
	}
	return viewportOffset
}

// PageDelta returns the viewport offset after a page-up (positive sign) or
// page-down (negative sign) keypress, clamped to the document.
func PageDelta(viewportOffset, sign, documentRows, terminalRows int) int {
	return ClampOffset(viewportOffset+sign*terminalRows, documentRows, terminalRows)
}

// WheelDelta returns the viewport offset after one mouse-wheel notch
// (sign +1 scrolls back, -1 scrolls forward), clamped to the document.
func WheelDelta(viewportOffset, sign, documentRows, terminalRows int) int {
	return ClampOffset(viewportOffset+sign, documentRows, terminalRows)
}

// ResetOnEdit is the auto-scroll rule: any edit to the input buffer resets
// the viewport to 0, which is what pins it to the bottom and keeps the
// input pane in view.
func ResetOnEdit() int { return 0 }

// viewportSlice returns the terminalRows-tall window of lines that begins
// viewportOffset rows above the bottom of the document, padding with empty
// rows if the document is shorter than the terminal.
func viewportSlice(lines []string, viewportOffset, terminalRows int) []string {
	documentRows := len(lines)
	offset := ClampOffset(viewportOffset, documentRows, terminalRows)
	end := documentRows - offset
	start := end - terminalRows
	if start < 0 {
		start = 0
	}
	if end > documentRows {
		end = documentRows
	}
	window := make([]string, 0, terminalRows)
	window = append(window, lines[start:end]...)
	for len(window) < terminalRows {
		window = append(window, "")
	}
	return window
}

// Render draws one frame for a, diffed against the previous call's frame,
// to w. It returns the clamped viewport offset actually drawn, since a
// resize or an edit may have moved it.
func (r *Renderer) Render(w io.Writer, a *agent.Agent, width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return a.ViewportOffset, nil
	}

	lines, cursorRow, cursorCol := Document(a, width)
	offset := ClampOffset(a.ViewportOffset, len(lines), height)
	a.ViewportOffset = offset

	window := viewportSlice(lines, offset, height)

	var buf strings.Builder
	buf.WriteString(hideCursor)

	resized := width != r.prevWidth || height != r.prevHeight
	for i, line := range window {
		if !resized && i < len(r.prevLines) && r.prevLines[i] == line {
			continue
		}
		buf.WriteString(cursorPosition(i, 0))
		buf.WriteString(eraseLineSeq)
		buf.WriteString(line)
	}

	documentRows := len(lines)
	visibleCursorRow := cursorRow - (documentRows - offset - height)
	if a.SpinnerVisible() {
		glyph := a.TickSpinner()
		buf.WriteString(cursorPosition(0, 0))
		buf.WriteRune(glyph)
	}

	showCursor := visibleCursorRow >= 0 && visibleCursorRow < height
	if showCursor {
		buf.WriteString(cursorPosition(visibleCursorRow, cursorCol))
		buf.WriteString(showCursorSeq)
	}

	if _, err := io.WriteString(w, buf.String()); err != nil {
		return offset, fmt.Errorf("render frame: %w", err)
	}

	r.prevLines = window
	r.prevWidth = width
	r.prevHeight = height
	r.cursorRow = visibleCursorRow
	r.cursorCol = cursorCol
	r.cursorShow = showCursor
	return offset, nil
}

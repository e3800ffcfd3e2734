// Package scrollback holds the append-only log of lines printed to an
// agent's transcript pane, with a wrap-layout cache keyed on terminal
// width. It holds no cursor and no selection.
package scrollback

import "github.com/charmbracelet/x/ansi"

// Scrollback is an ordered, append-only sequence of logical lines.
type Scrollback struct {
	lines []string

	cacheWidth   int
	cacheValid   bool
	rowsPerLine  []int // physical rows contributed by each logical line
	startRow     []int // physical row at which each logical line begins
	totalRows    int
}

// New returns an empty scrollback.
func New() *Scrollback {
	return &Scrollback{}
}

// AppendLine appends one logical line (may contain ANSI SGR sequences but
// no '\n'). Amortized O(1); invalidates the wrap-layout cache.
func (s *Scrollback) AppendLine(line string) {
	s.lines = append(s.lines, line)
	s.cacheValid = false
}

// LineCount returns the number of logical lines. O(1); never decreases.
func (s *Scrollback) LineCount() int { return len(s.lines) }

// LineText returns the raw text of logical line i. O(1).
func (s *Scrollback) LineText(i int) string { return s.lines[i] }

// TotalPhysicalRows returns the total number of physical (wrapped) rows
// at the given width. O(n) the first time after a mutation or width
// change, O(1) thereafter.
func (s *Scrollback) TotalPhysicalRows(width int) int {
	s.ensureLayout(width)
	return s.totalRows
}

// LineStartRow returns the physical row at which logical line i begins,
// at the given width.
func (s *Scrollback) LineStartRow(width, i int) int {
	s.ensureLayout(width)
	return s.startRow[i]
}

// LinePhysicalRows returns how many physical rows logical line i occupies
// at the given width.
func (s *Scrollback) LinePhysicalRows(width, i int) int {
	s.ensureLayout(width)
	return s.rowsPerLine[i]
}

// PhysicalLines renders every logical line's word-wrapped, style-propagated
// visual lines at the given width, in order. This is the pure function of
// (bytes, width) the wrap-layout cache memoizes the row counts of.
func (s *Scrollback) PhysicalLines(width int) []string {
	var out []string
	for _, line := range s.lines {
		out = append(out, wrapANSI(line, width)...)
	}
	return out
}

func (s *Scrollback) ensureLayout(width int) {
	if width < 1 {
		width = 1
	}
	if s.cacheValid && s.cacheWidth == width {
		return
	}
	s.rowsPerLine = make([]int, len(s.lines))
	s.startRow = make([]int, len(s.lines))
	row := 0
	for i, line := range s.lines {
		s.startRow[i] = row
		n := len(wrapANSI(line, width))
		if n == 0 {
			n = 1
		}
		s.rowsPerLine[i] = n
		row += n
	}
	s.totalRows = row
	s.cacheWidth = width
	s.cacheValid = true
}

// wrapANSI word-wraps an ANSI-styled string to the given width, returning
// the resulting visual lines. Styles are propagated across line breaks so
// each line is independently renderable.
func wrapANSI(s string, width int) []string {
	if width <= 0 || s == "" {
		return []string{s}
	}
	wrapped := ansi.Wordwrap(s, width, "")
	wrapped = ansi.Hardwrap(wrapped, width, true)
	lines := splitLines(wrapped)
	return propagateStyles(lines)
}

// propagateStyles ensures each line carries the ANSI style state from
// previous lines, so every line can be rendered independently with
// correct colors/attributes.
func propagateStyles(lines []string) []string {
	if len(lines) <= 1 {
		return lines
	}

	var activeSeqs []string

	for i, line := range lines {
		if i > 0 && len(activeSeqs) > 0 {
			lines[i] = joinSeqs(activeSeqs) + line
		}
		activeSeqs = scanSGR(line, activeSeqs)
		if i < len(lines)-1 && len(activeSeqs) > 0 {
			lines[i] = lines[i] + ansi.ResetStyle
		}
	}

	return lines
}

func joinSeqs(seqs []string) string {
	var out string
	for _, seq := range seqs {
		out += seq
	}
	return out
}

// scanSGR scans a line for SGR escape sequences and updates the active
// sequence list. Resets clear the list; other SGRs are appended.
func scanSGR(line string, active []string) []string {
	const esc = '\x1b'
	for j := 0; j < len(line); j++ {
		if line[j] != byte(esc) || j+1 >= len(line) || line[j+1] != '[' {
			continue
		}
		k := j + 2
		for k < len(line) && line[k] != 'm' && line[k] != esc {
			k++
		}
		if k >= len(line) || line[k] != 'm' {
			continue
		}
		seq := line[j : k+1]
		params := line[j+2 : k]

		if isResetSGR(params) {
			active = active[:0]
		} else {
			active = append(active, seq)
		}
		j = k
	}
	return active
}

// isResetSGR returns true if the SGR parameter string represents a reset.
func isResetSGR(params string) bool {
	return params == "" || params == "0"
}

// splitLines splits on newline without the trailing empty element that
// strings.Split produces for a trailing newline.
func splitLines(s string) []string {
	lines := make([]string, 0, 8)
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

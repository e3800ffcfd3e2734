package editbuf

// WrapRow is one physical (wrapped) row: a byte range [Start, End) of Text().
type WrapRow struct {
	Start, End int
}

// PhysicalLines returns the wrap layout for the current text at the given
// width, measured in graphemes per row. The result is cached against width
// and recomputed lazily after any mutation or width change.
func (b *Buffer) PhysicalLines(width int) []WrapRow {
	if width < 1 {
		width = 1
	}
	if b.layoutValid && b.layoutWidth == width {
		return wrapRowsToPublic(b.layout)
	}
	b.layout = computeWrapLayout(b.text, width)
	b.layoutWidth = width
	b.layoutValid = true
	return wrapRowsToPublic(b.layout)
}

// PhysicalLineCount returns len(PhysicalLines(width)) without allocating
// the public-facing slice.
func (b *Buffer) PhysicalLineCount(width int) int {
	if width < 1 {
		width = 1
	}
	if !b.layoutValid || b.layoutWidth != width {
		b.layout = computeWrapLayout(b.text, width)
		b.layoutWidth = width
		b.layoutValid = true
	}
	return len(b.layout)
}

func wrapRowsToPublic(rows []wrapRow) []WrapRow {
	out := make([]WrapRow, len(rows))
	for i, r := range rows {
		out[i] = WrapRow{Start: r.start, End: r.end}
	}
	return out
}

// computeWrapLayout splits text into logical lines on '\n', then each
// logical line into physical rows of at most width graphemes. An empty
// logical line still produces one (empty) physical row, so the row count
// for N logical lines is always >= N.
func computeWrapLayout(text []byte, width int) []wrapRow {
	var rows []wrapRow
	lineStart := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			rows = append(rows, wrapLogicalLine(text, lineStart, i, width)...)
			lineStart = i + 1
		}
	}
	if len(rows) == 0 {
		rows = []wrapRow{{0, 0}}
	}
	return rows
}

func wrapLogicalLine(text []byte, start, end, width int) []wrapRow {
	if start == end {
		return []wrapRow{{start, end}}
	}
	starts := graphemeStarts(text[start:end])
	// starts holds offsets relative to start, including a trailing
	// sentinel equal to end-start.
	var rows []wrapRow
	rowStart := start
	count := 0
	for i := 0; i < len(starts)-1; i++ {
		count++
		if count == width {
			rows = append(rows, wrapRow{rowStart, start + starts[i+1]})
			rowStart = start + starts[i+1]
			count = 0
		}
	}
	if rowStart < end {
		rows = append(rows, wrapRow{rowStart, end})
	}
	return rows
}

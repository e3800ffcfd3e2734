// Package editbuf implements the input buffer: an editable, always-valid
// UTF-8 text area with a grapheme-aware cursor, a remembered target column
// for vertical movement, and a wrap-layout cache keyed on terminal width.
package editbuf

import "unicode/utf8"

// Buffer holds one multi-line editable text area.
type Buffer struct {
	text       []byte
	cursorByte int

	// targetColumn is the grapheme column remembered across a run of
	// vertical moves. Zero means "unset" — indistinguishable from an
	// actual column of zero, which is harmless: a target column of zero
	// clamps to zero on any line regardless of which case produced it.
	targetColumn int

	layout      []wrapRow
	layoutWidth int
	layoutValid bool
}

type wrapRow struct {
	start, end int // byte offsets, [start, end)
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Text returns the buffer's current bytes. The caller must not mutate the
// returned slice.
func (b *Buffer) Text() []byte { return b.text }

// CursorByteOffset returns the cursor's position as a byte offset into Text().
func (b *Buffer) CursorByteOffset() int { return b.cursorByte }

// CursorPosition returns the cursor's (line, grapheme column) within the
// current logical line, both zero-based.
func (b *Buffer) CursorPosition() (line, column int) {
	lineStart := b.findLineStart(b.cursorByte)
	for i := 0; i < lineStart; i++ {
		if b.text[i] == '\n' {
			line++
		}
	}
	column = graphemeCount(b.text[lineStart:b.cursorByte])
	return line, column
}

func (b *Buffer) invalidateLayout() {
	b.layoutValid = false
	b.layout = nil
}

// InsertCodepoint inserts r at the cursor and advances past it.
func (b *Buffer) InsertCodepoint(r rune) {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	b.insertBytes(buf[:n])
}

// InsertNewline inserts a line break at the cursor.
func (b *Buffer) InsertNewline() {
	b.insertBytes([]byte{'\n'})
}

func (b *Buffer) insertBytes(enc []byte) {
	b.text = append(b.text[:b.cursorByte], append(append([]byte{}, enc...), b.text[b.cursorByte:]...)...)
	b.cursorByte += len(enc)
	b.targetColumn = 0
	b.invalidateLayout()
}

// Backspace deletes the UTF-8 character before the cursor, if any.
func (b *Buffer) Backspace() {
	if b.cursorByte == 0 {
		return
	}
	prev := b.findPrevCharStart(b.cursorByte)
	b.text = append(b.text[:prev], b.text[b.cursorByte:]...)
	b.cursorByte = prev
	b.targetColumn = 0
	b.invalidateLayout()
}

// Delete removes the UTF-8 character at (after) the cursor, if any.
func (b *Buffer) Delete() {
	if b.cursorByte >= len(b.text) {
		return
	}
	next := b.findNextCharEnd(b.cursorByte)
	b.text = append(b.text[:b.cursorByte], b.text[next:]...)
	b.targetColumn = 0
	b.invalidateLayout()
}

// CursorLeft moves the cursor back one UTF-8 character.
func (b *Buffer) CursorLeft() {
	if b.cursorByte == 0 {
		return
	}
	b.cursorByte = b.findPrevCharStart(b.cursorByte)
	b.targetColumn = 0
}

// CursorRight moves the cursor forward one UTF-8 character.
func (b *Buffer) CursorRight() {
	if b.cursorByte >= len(b.text) {
		return
	}
	b.cursorByte = b.findNextCharEnd(b.cursorByte)
	b.targetColumn = 0
}

// CursorToLineStart moves the cursor to the start of its logical line.
func (b *Buffer) CursorToLineStart() {
	lineStart := b.findLineStart(b.cursorByte)
	if lineStart == b.cursorByte {
		return
	}
	b.cursorByte = lineStart
	b.targetColumn = 0
}

// CursorToLineEnd moves the cursor to the end of its logical line.
func (b *Buffer) CursorToLineEnd() {
	lineEnd := b.findLineEnd(b.cursorByte)
	if lineEnd == b.cursorByte {
		return
	}
	b.cursorByte = lineEnd
	b.targetColumn = 0
}

// CursorUp moves the cursor to the target column of the previous logical
// line, clamped to that line's length.
func (b *Buffer) CursorUp() {
	if len(b.text) == 0 {
		return
	}
	lineStart := b.findLineStart(b.cursorByte)
	if lineStart == 0 {
		return
	}
	column := graphemeCount(b.text[lineStart:b.cursorByte])
	if b.targetColumn == 0 {
		b.targetColumn = column
	}
	prevLineEnd := lineStart - 1 // the '\n' ending the previous line
	prevLineStart := b.findLineStart(prevLineEnd)

	prevLen := graphemeCount(b.text[prevLineStart:prevLineEnd])
	desired := b.targetColumn
	if desired == 0 {
		desired = column
	}
	target := desired
	if target > prevLen {
		target = prevLen
	}
	b.cursorByte = prevLineStart + graphemeToByteOffset(b.text[prevLineStart:prevLineEnd], target)
}

// CursorDown moves the cursor to the target column of the next logical
// line, clamped to that line's length.
func (b *Buffer) CursorDown() {
	if len(b.text) == 0 {
		return
	}
	lineStart := b.findLineStart(b.cursorByte)
	lineEnd := b.findLineEnd(b.cursorByte)
	if lineEnd >= len(b.text) {
		return
	}
	column := graphemeCount(b.text[lineStart:b.cursorByte])
	if b.targetColumn == 0 {
		b.targetColumn = column
	}
	nextLineStart := lineEnd + 1
	nextLineEnd := b.findLineEnd(nextLineStart)

	nextLen := graphemeCount(b.text[nextLineStart:nextLineEnd])
	desired := b.targetColumn
	if desired == 0 {
		desired = column
	}
	target := desired
	if target > nextLen {
		target = nextLen
	}
	b.cursorByte = nextLineStart + graphemeToByteOffset(b.text[nextLineStart:nextLineEnd], target)
}

// KillToLineEnd deletes from the cursor to the end of its logical line,
// not including the line break.
func (b *Buffer) KillToLineEnd() {
	if len(b.text) == 0 {
		return
	}
	lineEnd := b.findLineEnd(b.cursorByte)
	if b.cursorByte >= lineEnd {
		return
	}
	b.text = append(b.text[:b.cursorByte], b.text[lineEnd:]...)
	b.targetColumn = 0
	b.invalidateLayout()
}

// KillLine deletes the cursor's entire logical line, including its
// trailing line break if any, and places the cursor where the line was.
func (b *Buffer) KillLine() {
	if len(b.text) == 0 {
		return
	}
	lineStart := b.findLineStart(b.cursorByte)
	lineEnd := b.findLineEnd(b.cursorByte)
	deleteEnd := lineEnd
	if lineEnd < len(b.text) {
		deleteEnd = lineEnd + 1
	}
	b.text = append(b.text[:lineStart], b.text[deleteEnd:]...)
	if lineStart > len(b.text) {
		lineStart = len(b.text)
	}
	b.cursorByte = lineStart
	b.targetColumn = 0
	b.invalidateLayout()
}

// DeleteWordBackward skips trailing whitespace, then deletes the run of
// the character class found at that point: word, whitespace, or
// punctuation.
func (b *Buffer) DeleteWordBackward() {
	pos := b.cursorByte
	if pos == 0 {
		return
	}
	for pos > 0 && isWhitespaceByte(b.text[pos-1]) {
		pos--
	}
	if pos > 0 {
		cls := classify(b.text[pos-1])
		for pos > 0 && classify(b.text[pos-1]) == cls {
			pos--
		}
	}
	if pos == b.cursorByte {
		return
	}
	b.text = append(b.text[:pos], b.text[b.cursorByte:]...)
	b.cursorByte = pos
	b.targetColumn = 0
	b.invalidateLayout()
}

// Clear empties the buffer and resets the cursor.
func (b *Buffer) Clear() {
	b.text = nil
	b.cursorByte = 0
	b.targetColumn = 0
	b.invalidateLayout()
}

func (b *Buffer) findLineStart(pos int) int {
	if pos == 0 {
		return 0
	}
	for pos > 0 && b.text[pos-1] != '\n' {
		pos--
	}
	return pos
}

func (b *Buffer) findLineEnd(pos int) int {
	for pos < len(b.text) && b.text[pos] != '\n' {
		pos++
	}
	return pos
}

func (b *Buffer) findPrevCharStart(pos int) int {
	if pos == 0 {
		return 0
	}
	pos--
	for pos > 0 && b.text[pos]&0xC0 == 0x80 {
		pos--
	}
	return pos
}

func (b *Buffer) findNextCharEnd(pos int) int {
	if pos >= len(b.text) {
		return pos
	}
	pos++
	for pos < len(b.text) && b.text[pos]&0xC0 == 0x80 {
		pos++
	}
	return pos
}

package editbuf

import "github.com/clipperhouse/uax29/v2/graphemes"

// graphemeStarts returns the byte offset of every grapheme cluster boundary
// in text, including a trailing sentinel equal to len(text). Isolated in its
// own file because it is the one place this package depends on the exact
// shape of the segmenter API.
func graphemeStarts(text []byte) []int {
	if len(text) == 0 {
		return []int{0}
	}
	starts := make([]int, 0, len(text)+1)
	pos := 0
	seg := graphemes.FromBytes(text)
	for seg.Next() {
		starts = append(starts, pos)
		pos += len(seg.Value())
	}
	starts = append(starts, len(text))
	return starts
}

// graphemeCount returns the number of grapheme clusters in text.
func graphemeCount(text []byte) int {
	if len(text) == 0 {
		return 0
	}
	n := 0
	seg := graphemes.FromBytes(text)
	for seg.Next() {
		n++
	}
	return n
}

// graphemeToByteOffset returns the byte offset of the Nth grapheme cluster
// (0-based) within text, or len(text) if target is past the end.
func graphemeToByteOffset(text []byte, target int) int {
	if len(text) == 0 || target <= 0 {
		return 0
	}
	n := 0
	pos := 0
	seg := graphemes.FromBytes(text)
	for seg.Next() {
		if n == target {
			return pos
		}
		pos += len(seg.Value())
		n++
	}
	return len(text)
}

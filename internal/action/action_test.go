package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(d *Decoder, bytes ...byte) []Action {
	var out []Action
	for _, b := range bytes {
		act := d.Feed(b)
		if act.Type != Unknown {
			out = append(out, act)
		}
	}
	return out
}

func TestPrintableASCII(t *testing.T) {
	var d Decoder
	act := d.Feed('a')
	assert.Equal(t, Char, act.Type)
	assert.Equal(t, rune('a'), act.Codepoint)
}

func TestControlCodes(t *testing.T) {
	cases := []struct {
		b    byte
		want Type
	}{
		{0x7F, Backspace},
		{0x0D, Newline},
		{0x0A, InsertNewline},
		{0x09, Tab},
		{0x01, Home},
		{0x05, End},
		{0x0B, KillToEnd},
		{0x15, KillLine},
		{0x17, DeleteWordBack},
		{0x03, CtrlC},
		{0x04, CtrlD},
	}
	for _, c := range cases {
		var d Decoder
		act := d.Feed(c.b)
		assert.Equal(t, c.want, act.Type, "byte %#x", c.b)
	}
}

func TestArrowKeys(t *testing.T) {
	cases := []struct {
		seq  []byte
		want Type
	}{
		{[]byte{esc, '[', 'A'}, ArrowUp},
		{[]byte{esc, '[', 'B'}, ArrowDown},
		{[]byte{esc, '[', 'C'}, ArrowRight},
		{[]byte{esc, '[', 'D'}, ArrowLeft},
	}
	for _, c := range cases {
		var d Decoder
		acts := feedAll(&d, c.seq...)
		require.Len(t, acts, 1)
		assert.Equal(t, c.want, acts[0].Type)
	}
}

func TestTildeSequences(t *testing.T) {
	cases := []struct {
		seq  []byte
		want Type
	}{
		{[]byte{esc, '[', '3', '~'}, Delete},
		{[]byte{esc, '[', '5', '~'}, PageUp},
		{[]byte{esc, '[', '6', '~'}, PageDown},
	}
	for _, c := range cases {
		var d Decoder
		acts := feedAll(&d, c.seq...)
		require.Len(t, acts, 1)
		assert.Equal(t, c.want, acts[0].Type)
	}
}

func TestAltArrowNavigation(t *testing.T) {
	cases := []struct {
		seq  []byte
		want Type
	}{
		{[]byte{esc, '[', '1', ';', '3', 'A'}, NavParent},
		{[]byte{esc, '[', '1', ';', '3', 'B'}, NavChild},
		{[]byte{esc, '[', '1', ';', '3', 'C'}, NavNextSibling},
		{[]byte{esc, '[', '1', ';', '3', 'D'}, NavPrevSibling},
	}
	for _, c := range cases {
		var d Decoder
		acts := feedAll(&d, c.seq...)
		require.Len(t, acts, 1)
		assert.Equal(t, c.want, acts[0].Type)
	}
}

func TestMouseSGRScroll(t *testing.T) {
	var d Decoder
	acts := feedAll(&d, esc, '[', '<', '6', '4', ';', '1', ';', '2', 'M')
	require.Len(t, acts, 1)
	assert.Equal(t, ScrollUp, acts[0].Type)

	var d2 Decoder
	acts2 := feedAll(&d2, esc, '[', '<', '6', '5', ';', '1', ';', '2', 'M')
	require.Len(t, acts2, 1)
	assert.Equal(t, ScrollDown, acts2[0].Type)
}

func TestMouseSGRClickDiscarded(t *testing.T) {
	var d Decoder
	acts := feedAll(&d, esc, '[', '<', '0', ';', '1', ';', '2', 'M')
	assert.Empty(t, acts)
}

func TestSGRColorSequenceDiscarded(t *testing.T) {
	var d Decoder
	acts := feedAll(&d, esc, '[', '3', '8', ';', '5', ';', '2', '4', '2', 'm')
	assert.Empty(t, acts)
}

func TestDoubleEscapeEmitsEscapeAndRestarts(t *testing.T) {
	var d Decoder
	act := d.Feed(esc)
	assert.Equal(t, Unknown, act.Type)
	act = d.Feed(esc)
	assert.Equal(t, Escape, act.Type)

	// Escape mode restarted: a following arrow sequence still parses.
	acts := feedAll(&d, '[', 'A')
	require.Len(t, acts, 1)
	assert.Equal(t, ArrowUp, acts[0].Type)
}

func TestEscapeBufferOverflowResets(t *testing.T) {
	var d Decoder
	d.Feed(esc)
	for i := 0; i < 20; i++ {
		d.Feed('9')
	}
	assert.False(t, d.inEscape)
}

func TestUTF8TwoByteValid(t *testing.T) {
	var d Decoder
	// U+00E9 'é' = 0xC3 0xA9
	acts := feedAll(&d, 0xC3, 0xA9)
	require.Len(t, acts, 1)
	assert.Equal(t, Char, acts[0].Type)
	assert.Equal(t, rune(0x00E9), acts[0].Codepoint)
}

func TestUTF8ThreeByteValid(t *testing.T) {
	var d Decoder
	// U+4E2D '中' = 0xE4 0xB8 0xAD
	acts := feedAll(&d, 0xE4, 0xB8, 0xAD)
	require.Len(t, acts, 1)
	assert.Equal(t, rune(0x4E2D), acts[0].Codepoint)
}

func TestUTF8FourByteValid(t *testing.T) {
	var d Decoder
	// U+1F600 emoji = 0xF0 0x9F 0x98 0x80
	acts := feedAll(&d, 0xF0, 0x9F, 0x98, 0x80)
	require.Len(t, acts, 1)
	assert.Equal(t, rune(0x1F600), acts[0].Codepoint)
}

func TestUTF8OverlongRejected(t *testing.T) {
	var d Decoder
	// Overlong encoding of U+002F ('/') as 2 bytes: 0xC0 0xAF
	acts := feedAll(&d, 0xC0, 0xAF)
	require.Len(t, acts, 1)
	assert.Equal(t, rune(0xFFFD), acts[0].Codepoint)
}

func TestUTF8SurrogateRejected(t *testing.T) {
	var d Decoder
	// U+D800 encoded as 3 bytes: 0xED 0xA0 0x80
	acts := feedAll(&d, 0xED, 0xA0, 0x80)
	require.Len(t, acts, 1)
	assert.Equal(t, rune(0xFFFD), acts[0].Codepoint)
}

func TestUTF8InvalidContinuationResets(t *testing.T) {
	var d Decoder
	act := d.Feed(0xC3) // expects continuation
	assert.Equal(t, Unknown, act.Type)
	act = d.Feed('a') // not a continuation byte
	assert.Equal(t, Unknown, act.Type)
	assert.False(t, d.inUTF8)

	// Decoder recovered: next plain ASCII byte parses normally.
	act = d.Feed('b')
	assert.Equal(t, Char, act.Type)
	assert.Equal(t, rune('b'), act.Codepoint)
}

func TestNoByteLost_PartialSequenceHeldBack(t *testing.T) {
	var d Decoder
	act := d.Feed(0xE4) // first byte of a 3-byte sequence
	assert.Equal(t, Unknown, act.Type)
	act = d.Feed(0xB8)
	assert.Equal(t, Unknown, act.Type)
	act = d.Feed(0xAD)
	assert.Equal(t, Char, act.Type)
	assert.Equal(t, rune(0x4E2D), act.Codepoint)
}

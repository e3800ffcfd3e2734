package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikigai-cli/ikigai/internal/agent"
)

func newTestAgent() *agent.Agent {
	return agent.New(agent.NewID(), "", "openai", "gpt-test")
}

func TestDocumentRowCount(t *testing.T) {
	a := newTestAgent()
	a.Scrollback.AppendLine("hello")
	a.Scrollback.AppendLine("world")
	a.Input.InsertCodepoint('h')
	a.Input.InsertCodepoint('i')

	lines, _, _ := Document(a, 80)
	// 2 scrollback rows + 1 separator + 1 input row + 1 bottom separator.
	assert.Len(t, lines, 5)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, "world", lines[1])
	assert.Equal(t, "hi", lines[3])
}

func TestDocumentInputNeverCollapsesToZeroRows(t *testing.T) {
	a := newTestAgent()
	lines, _, _ := Document(a, 80)
	// 0 scrollback rows + 1 separator + 1 (empty) input row + 1 bottom separator.
	assert.Len(t, lines, 3)
}

func TestCursorRowColTracksInput(t *testing.T) {
	a := newTestAgent()
	a.Input.InsertCodepoint('a')
	a.Input.InsertCodepoint('b')
	a.Input.InsertCodepoint('c')

	_, row, col := Document(a, 80)
	assert.Equal(t, 1, row) // separator is row 0, input is row 1
	assert.Equal(t, 3, col)
}

func TestClampOffsetWithinBounds(t *testing.T) {
	assert.Equal(t, 5, ClampOffset(5, 20, 10))
	assert.Equal(t, 0, ClampOffset(-3, 20, 10))
	assert.Equal(t, 10, ClampOffset(999, 20, 10))
	// Document shorter than the terminal: only offset 0 is valid.
	assert.Equal(t, 0, ClampOffset(5, 3, 10))
}

func TestPageDeltaClamps(t *testing.T) {
	// documentRows=100, terminalRows=20 -> max offset 80.
	assert.Equal(t, 20, PageDelta(0, 1, 100, 20))
	assert.Equal(t, 0, PageDelta(10, -1, 100, 20))
	assert.Equal(t, 80, PageDelta(75, 1, 100, 20))
}

func TestWheelDeltaClamps(t *testing.T) {
	assert.Equal(t, 1, WheelDelta(0, 1, 100, 20))
	assert.Equal(t, 0, WheelDelta(0, -1, 100, 20))
}

func TestResetOnEditIsZero(t *testing.T) {
	assert.Equal(t, 0, ResetOnEdit())
}

func TestRenderFirstFrameDrawsEveryRow(t *testing.T) {
	a := newTestAgent()
	a.Scrollback.AppendLine("line one")

	r := New()
	var buf strings.Builder
	offset, err := r.Render(&buf, a, 40, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Contains(t, buf.String(), "line one")
}

func TestRenderSecondFrameSkipsUnchangedRows(t *testing.T) {
	a := newTestAgent()
	a.Scrollback.AppendLine("static line")

	r := New()
	var first strings.Builder
	_, err := r.Render(&first, a, 40, 5)
	require.NoError(t, err)

	var second strings.Builder
	_, err = r.Render(&second, a, 40, 5)
	require.NoError(t, err)

	// Nothing changed between frames, so the second frame shouldn't redraw
	// the scrollback line's text again.
	assert.NotContains(t, second.String(), "static line")
}

func TestRenderClampsViewportOffsetOnResize(t *testing.T) {
	a := newTestAgent()
	for i := 0; i < 20; i++ {
		a.Scrollback.AppendLine("row")
	}
	a.ViewportOffset = 1000

	r := New()
	var buf strings.Builder
	offset, err := r.Render(&buf, a, 40, 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, offset, 18) // documentRows(23) - terminalRows(5) = 18
	assert.Equal(t, offset, a.ViewportOffset)
}

func TestRenderZeroSizeIsNoop(t *testing.T) {
	a := newTestAgent()
	r := New()
	var buf strings.Builder
	offset, err := r.Render(&buf, a, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Empty(t, buf.String())
}

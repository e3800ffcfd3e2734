package scrollback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLineCount(t *testing.T) {
	sb := New()
	sb.AppendLine("hello")
	sb.AppendLine("world")
	assert.Equal(t, 2, sb.LineCount())
	assert.Equal(t, "hello", sb.LineText(0))
	assert.Equal(t, "world", sb.LineText(1))
}

func TestLineCountNeverDecreases(t *testing.T) {
	sb := New()
	for i := 0; i < 10; i++ {
		sb.AppendLine("x")
	}
	assert.Equal(t, 10, sb.LineCount())
}

func TestTotalPhysicalRowsSumsPerLine(t *testing.T) {
	sb := New()
	sb.AppendLine("abcdefgh") // wraps to 2 rows at width 4
	sb.AppendLine("ab")       // 1 row

	width := 4
	total := sb.TotalPhysicalRows(width)
	sum := 0
	for i := 0; i < sb.LineCount(); i++ {
		sum += sb.LinePhysicalRows(width, i)
	}
	assert.Equal(t, sum, total)
}

func TestLineStartRowAccumulates(t *testing.T) {
	sb := New()
	sb.AppendLine("abcdefgh")
	sb.AppendLine("ab")
	width := 4
	sb.ensureLayout(width)
	assert.Equal(t, 0, sb.LineStartRow(width, 0))
	assert.Equal(t, sb.LinePhysicalRows(width, 0), sb.LineStartRow(width, 1))
}

func TestLayoutCacheInvalidatesOnAppend(t *testing.T) {
	sb := New()
	sb.AppendLine("a")
	first := sb.TotalPhysicalRows(80)
	sb.AppendLine("b")
	second := sb.TotalPhysicalRows(80)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestLayoutCacheInvalidatesOnWidthChange(t *testing.T) {
	sb := New()
	sb.AppendLine("abcdefgh")
	wide := sb.TotalPhysicalRows(80)
	narrow := sb.TotalPhysicalRows(4)
	assert.Equal(t, 1, wide)
	assert.Equal(t, 2, narrow)
}

func TestLayoutStableOnRepeatedQuery(t *testing.T) {
	sb := New()
	sb.AppendLine("hello world this wraps")
	a := sb.TotalPhysicalRows(10)
	b := sb.TotalPhysicalRows(10)
	assert.Equal(t, a, b)
}

func TestPhysicalLinesPropagatesStyleAcrossWrap(t *testing.T) {
	sb := New()
	sb.AppendLine("\x1b[31mredredred\x1b[0m plain")
	lines := sb.PhysicalLines(5)
	require.True(t, len(lines) >= 2)
	assert.Contains(t, lines[1], "\x1b[31m")
}

func TestEmptyScrollbackZeroRows(t *testing.T) {
	sb := New()
	assert.Equal(t, 0, sb.TotalPhysicalRows(80))
	assert.Equal(t, 0, sb.LineCount())
}

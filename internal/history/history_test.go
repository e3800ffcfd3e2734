package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddIgnoresBlank(t *testing.T) {
	h := New(3)
	h.Add("")
	assert.Equal(t, 0, h.Count())
}

func TestAddAndNewest(t *testing.T) {
	h := New(3)
	h.Add("one")
	h.Add("two")
	got, ok := h.Newest()
	assert.True(t, ok)
	assert.Equal(t, "two", got)
	assert.Equal(t, 2, h.Count())
}

func TestAddDuplicateOfNewestIsNoop(t *testing.T) {
	h := New(3)
	h.Add("one")
	h.Add("two")
	h.Add("two")
	assert.Equal(t, 2, h.Count())
}

func TestAddDuplicateElsewhereMovesToNewest(t *testing.T) {
	h := New(3)
	h.Add("one")
	h.Add("two")
	h.Add("three")
	h.Add("one")
	assert.Equal(t, 3, h.Count())
	got, _ := h.Newest()
	assert.Equal(t, "one", got)
}

func TestCapacityEvictsOldest(t *testing.T) {
	h := New(2)
	h.Add("one")
	h.Add("two")
	h.Add("three")
	assert.Equal(t, 2, h.Count())
	h.StartBrowsing("")
	first, ok := h.Prev()
	assert.True(t, ok)
	assert.Equal(t, "two", first)
}

func TestIdleAfterAdd(t *testing.T) {
	h := New(3)
	h.Add("one")
	assert.False(t, h.IsBrowsing())
}

func TestStartBrowsingEmptyHistoryStaysIdle(t *testing.T) {
	h := New(3)
	h.StartBrowsing("draft")
	assert.False(t, h.IsBrowsing())
	cur, ok := h.Current()
	assert.True(t, ok)
	assert.Equal(t, "draft", cur)
}

func TestBrowsePrevNext(t *testing.T) {
	h := New(5)
	h.Add("one")
	h.Add("two")
	h.Add("three")
	h.StartBrowsing("draft")

	assert.True(t, h.IsBrowsing())
	cur, _ := h.Current()
	assert.Equal(t, "three", cur)

	prev, ok := h.Prev()
	assert.True(t, ok)
	assert.Equal(t, "two", prev)

	prev, ok = h.Prev()
	assert.True(t, ok)
	assert.Equal(t, "one", prev)

	_, ok = h.Prev()
	assert.False(t, ok) // already at oldest

	next, ok := h.Next()
	assert.True(t, ok)
	assert.Equal(t, "two", next)

	next, ok = h.Next()
	assert.True(t, ok)
	assert.Equal(t, "three", next)

	// one more Next at the boundary returns pending exactly once
	next, ok = h.Next()
	assert.True(t, ok)
	assert.Equal(t, "draft", next)

	// further Next calls return nothing
	_, ok = h.Next()
	assert.False(t, ok)
}

func TestStopBrowsingDiscardsPendingAndReturnsIdle(t *testing.T) {
	h := New(5)
	h.Add("one")
	h.StartBrowsing("draft")
	h.Prev()
	h.StopBrowsing()
	assert.False(t, h.IsBrowsing())
	_, ok := h.Current()
	assert.False(t, ok)
}

func TestEditingWhileBrowsingStopsBrowsingViaCaller(t *testing.T) {
	// history itself only exposes StopBrowsing; the REPL's input-edit
	// handler is expected to call it whenever the buffer is mutated
	// while browsing. This test just confirms the primitive used for
	// that wiring behaves as the previous tests assume.
	h := New(5)
	h.Add("one")
	h.StartBrowsing("")
	assert.True(t, h.IsBrowsing())
	h.StopBrowsing()
	assert.False(t, h.IsBrowsing())
}

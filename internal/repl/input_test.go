package repl

import (
	"testing"

	"github.com/ikigai-cli/ikigai/internal/action"
	"github.com/ikigai-cli/ikigai/internal/scrolldetect"
)

func TestApplyActionCharInsertsIntoInputAndResetsViewport(t *testing.T) {
	l := newTestLoop(t)
	a := l.tree.Current()
	a.ViewportOffset = 5

	l.applyAction(action.Action{Type: action.Char, Codepoint: 'h'})
	l.applyAction(action.Action{Type: action.Char, Codepoint: 'i'})

	if got := string(a.Input.Text()); got != "hi" {
		t.Fatalf("input = %q, want %q", got, "hi")
	}
	if a.ViewportOffset != 0 {
		t.Fatalf("ViewportOffset = %d, want 0 after edit", a.ViewportOffset)
	}
}

func TestApplyActionBackspaceStopsHistoryBrowsing(t *testing.T) {
	l := newTestLoop(t)
	a := l.tree.Current()
	l.hist.Add("earlier command")
	l.hist.StartBrowsing("")
	if !l.hist.IsBrowsing() {
		t.Fatal("expected browsing to have started")
	}

	a.Input.InsertCodepoint('x')
	l.applyAction(action.Action{Type: action.Backspace})

	if l.hist.IsBrowsing() {
		t.Fatal("backspace should stop history browsing")
	}
}

func TestApplyArrowUpStartsHistoryBrowsingOnEmptyInput(t *testing.T) {
	l := newTestLoop(t)
	a := l.tree.Current()
	l.hist.Add("first")
	l.hist.Add("second")

	l.applyArrow(scrolldetect.Up)

	if got := string(a.Input.Text()); got != "second" {
		t.Fatalf("input = %q, want most recent history entry %q", got, "second")
	}
}

func TestApplyActionCtrlCQuits(t *testing.T) {
	l := newTestLoop(t)
	l.applyAction(action.Action{Type: action.CtrlC})
	if !l.quit {
		t.Fatal("expected CtrlC to set quit")
	}
}

func TestNavigateSiblingCyclesAmongChildren(t *testing.T) {
	l := newTestLoop(t)
	root := l.tree.Current()
	child1, err := l.tree.Fork(root)
	if err != nil {
		t.Fatalf("fork 1: %v", err)
	}
	_, _ = l.tree.Switch(root.ID)
	child2, err := l.tree.Fork(root)
	if err != nil {
		t.Fatalf("fork 2: %v", err)
	}

	_, _ = l.tree.Switch(child1.ID)
	l.navigateSiblingOrChild(child1, action.NavNextSibling)
	if l.tree.Current().ID != child2.ID {
		t.Fatalf("next sibling = %s, want %s", l.tree.Current().ID, child2.ID)
	}

	l.navigateSiblingOrChild(l.tree.Current(), action.NavPrevSibling)
	if l.tree.Current().ID != child1.ID {
		t.Fatalf("prev sibling = %s, want %s", l.tree.Current().ID, child1.ID)
	}
}

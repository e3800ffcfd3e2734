package repl

import (
	"time"

	"github.com/ikigai-cli/ikigai/internal/action"
	"github.com/ikigai-cli/ikigai/internal/agent"
	"github.com/ikigai-cli/ikigai/internal/editbuf"
	"github.com/ikigai-cli/ikigai/internal/render"
	"github.com/ikigai-cli/ikigai/internal/scrolldetect"
)

// handleByte feeds one raw byte to the input decoder and applies whatever
// action it completes to the current agent.
func (l *Loop) handleByte(b byte) {
	act := l.decoder.Feed(b)
	if act.Type == action.Unknown {
		return
	}
	l.applyAction(act)
}

func (l *Loop) applyAction(act action.Action) {
	cur := l.tree.Current()
	if cur == nil {
		return
	}

	switch act.Type {
	case action.CtrlC:
		l.quit = true
	case action.CtrlD:
		l.quit = true
	case action.Newline:
		l.handleSubmit()
	case action.InsertNewline:
		cur.Input.InsertNewline()
		l.resetAutoScroll(cur)
	case action.Char:
		cur.Input.InsertCodepoint(act.Codepoint)
		l.stopBrowsingOnEdit()
		l.resetAutoScroll(cur)
	case action.Backspace:
		cur.Input.Backspace()
		l.stopBrowsingOnEdit()
		l.resetAutoScroll(cur)
	case action.Delete:
		cur.Input.Delete()
		l.resetAutoScroll(cur)
	case action.Home:
		cur.Input.CursorToLineStart()
	case action.End:
		cur.Input.CursorToLineEnd()
	case action.KillToEnd:
		cur.Input.KillToLineEnd()
		l.resetAutoScroll(cur)
	case action.KillLine:
		cur.Input.KillLine()
		l.resetAutoScroll(cur)
	case action.DeleteWordBack:
		cur.Input.DeleteWordBackward()
		l.stopBrowsingOnEdit()
		l.resetAutoScroll(cur)
	case action.Tab:
		cur.Input.InsertCodepoint('\t')
		l.resetAutoScroll(cur)
	case action.ArrowLeft:
		cur.Input.CursorLeft()
	case action.ArrowRight:
		cur.Input.CursorRight()
	case action.ArrowUp:
		l.handleArrow(scrolldetect.Up)
	case action.ArrowDown:
		l.handleArrow(scrolldetect.Down)
	case action.PageUp:
		cur.ViewportOffset = render.PageDelta(cur.ViewportOffset, 1, l.documentRows(cur), l.terminalRows())
	case action.PageDown:
		cur.ViewportOffset = render.PageDelta(cur.ViewportOffset, -1, l.documentRows(cur), l.terminalRows())
	case action.ScrollUp:
		cur.ViewportOffset = render.WheelDelta(cur.ViewportOffset, 1, l.documentRows(cur), l.terminalRows())
	case action.ScrollDown:
		cur.ViewportOffset = render.WheelDelta(cur.ViewportOffset, -1, l.documentRows(cur), l.terminalRows())
	case action.NavParent:
		if cur.ParentID != "" {
			_, _ = l.tree.Switch(cur.ParentID)
		}
	case action.NavPrevSibling, action.NavNextSibling, action.NavChild:
		l.navigateSiblingOrChild(cur, act.Type)
	case action.Escape:
		// No-op: nothing in this design currently binds bare Escape.
	}
}

// handleArrow routes a decoded arrow key through the scroll detector: a
// burst of arrows close together becomes a wheel scroll, a lone arrow is
// either history browsing (on an empty/unsubmitted buffer) or ordinary
// vertical cursor movement.
func (l *Loop) handleArrow(dir scrolldetect.Direction) {
	result := l.detector.Process(dir, time.Now())
	switch result.Type {
	case scrolldetect.WheelUp:
		cur := l.tree.Current()
		cur.ViewportOffset = render.WheelDelta(cur.ViewportOffset, 1, l.documentRows(cur), l.terminalRows())
	case scrolldetect.WheelDown:
		cur := l.tree.Current()
		cur.ViewportOffset = render.WheelDelta(cur.ViewportOffset, -1, l.documentRows(cur), l.terminalRows())
	case scrolldetect.KeyboardArrow:
		l.applyArrow(result.Dir)
	case scrolldetect.Absorbed, scrolldetect.None:
		// Pending: resolved on a later arrow or by onTimeout's flush.
	}
}

// applyArrow is a keyboard arrow that survived the burst detector: either
// continues history browsing or moves the input cursor vertically.
func (l *Loop) applyArrow(dir scrolldetect.Direction) {
	cur := l.tree.Current()
	if cur == nil {
		return
	}

	if dir == scrolldetect.Up {
		if !l.hist.IsBrowsing() {
			if !canStartBrowsing(cur.Input) {
				cur.Input.CursorUp()
				return
			}
			l.hist.StartBrowsing(string(cur.Input.Text()))
			if entry, ok := l.hist.Current(); ok {
				setInputText(cur.Input, entry)
				return
			}
			cur.Input.CursorUp()
			return
		}
		if entry, ok := l.hist.Prev(); ok {
			setInputText(cur.Input, entry)
			return
		}
		cur.Input.CursorUp()
		return
	}

	if l.hist.IsBrowsing() {
		if entry, ok := l.hist.Next(); ok {
			setInputText(cur.Input, entry)
			return
		}
	}
	cur.Input.CursorDown()
}

// canStartBrowsing reports whether the cursor is on the buffer's first line
// (always true for an empty buffer), the condition required before up
// begins history browsing rather than moving the cursor within the buffer.
func canStartBrowsing(buf *editbuf.Buffer) bool {
	line, _ := buf.CursorPosition()
	return line == 0
}

func setInputText(buf *editbuf.Buffer, text string) {
	buf.Clear()
	for _, r := range text {
		buf.InsertCodepoint(r)
	}
}

// stopBrowsingOnEdit cancels history browsing the moment the user edits
// the buffer instead of just paging through it.
func (l *Loop) stopBrowsingOnEdit() {
	if l.hist.IsBrowsing() {
		l.hist.StopBrowsing()
	}
}

// resetAutoScroll resets the viewport to the bottom whenever the input
// buffer is edited, so typing always scrolls into view.
func (l *Loop) resetAutoScroll(a *agent.Agent) {
	a.ViewportOffset = render.ResetOnEdit()
}

// documentRows reports how many physical rows a's current document occupies
// at the terminal's current width, for viewport-offset clamping.
func (l *Loop) documentRows(a *agent.Agent) int {
	width, _, err := l.term.Size()
	if err != nil {
		return 0
	}
	lines, _, _ := render.Document(a, width)
	return len(lines)
}

func (l *Loop) terminalRows() int {
	_, height, err := l.term.Size()
	if err != nil {
		return 0
	}
	return height
}

// navigateSiblingOrChild implements the agent-tree arrow navigation
// commands: NavChild moves focus to the most recently forked child of cur,
// NavPrevSibling/NavNextSibling cycle among cur's parent's children.
func (l *Loop) navigateSiblingOrChild(cur *agent.Agent, t action.Type) {
	switch t {
	case action.NavChild:
		children := l.childrenOf(cur.ID)
		if len(children) > 0 {
			_, _ = l.tree.Switch(children[len(children)-1].ID)
		}
	case action.NavPrevSibling, action.NavNextSibling:
		if cur.ParentID == "" {
			return
		}
		siblings := l.childrenOf(cur.ParentID)
		idx := indexOfAgent(siblings, cur.ID)
		if idx < 0 || len(siblings) < 2 {
			return
		}
		delta := 1
		if t == action.NavPrevSibling {
			delta = -1
		}
		next := (idx + delta + len(siblings)) % len(siblings)
		_, _ = l.tree.Switch(siblings[next].ID)
	}
}

func (l *Loop) childrenOf(parentID string) []*agent.Agent {
	var out []*agent.Agent
	for _, a := range l.tree.All() {
		if a.ParentID == parentID {
			out = append(out, a)
		}
	}
	return out
}

func indexOfAgent(agents []*agent.Agent, id string) int {
	for i, a := range agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}

package repl

import (
	"strings"
	"testing"

	"github.com/ikigai-cli/ikigai/internal/agent"
	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/store"
)

func TestHandleSubmitRunsSlashCommand(t *testing.T) {
	l := newTestLoop(t)
	a := l.tree.Current()

	a.Input.InsertCodepoint('/')
	for _, r := range "unknown" {
		a.Input.InsertCodepoint(r)
	}
	l.handleSubmit()

	n := a.Scrollback.LineCount()
	if n == 0 || !strings.Contains(a.Scrollback.LineText(n-1), "unknown command") {
		t.Fatalf("scrollback last line = %q, want an unknown-command error", a.Scrollback.LineText(n-1))
	}
}

func TestCmdForkCreatesChildAndSwitchesFocus(t *testing.T) {
	l := newTestLoop(t)
	root := l.tree.Current()

	l.cmdFork(root, "")

	if l.tree.Current().ID == root.ID {
		t.Fatal("expected focus to move to the forked child")
	}
	if l.tree.Current().ParentID != root.ID {
		t.Fatalf("child parent = %s, want %s", l.tree.Current().ParentID, root.ID)
	}
}

func TestCmdForkWithQuotedPromptSubmitsOnChild(t *testing.T) {
	l := newTestLoop(t, provider.MockTurn{Text: "ack", FinishReason: provider.FinishStop})
	root := l.tree.Current()

	l.cmdFork(root, `"hello child"`)
	child := l.tree.Current()

	res := awaitRound(t, l)
	if res.agentID != child.ID {
		t.Fatalf("round came from %s, want child %s", res.agentID, child.ID)
	}
}

func TestCmdKillRefusesRoot(t *testing.T) {
	l := newTestLoop(t)
	root := l.tree.Current()

	l.cmdKill(root, "")

	if l.tree.Current() == nil || l.tree.Current().ID != root.ID {
		t.Fatal("root agent should survive /kill with no target")
	}
}

func TestCmdKillRemovesForkedChild(t *testing.T) {
	l := newTestLoop(t)
	root := l.tree.Current()
	child, err := l.tree.Fork(root)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}

	l.cmdKill(child, "")

	if _, err := l.tree.Resolve(child.ID); err == nil {
		t.Fatal("expected the killed child to be gone from the tree")
	}
}

// TestCmdKillLeavesTreeUntouchedWhenPersistFails verifies the
// persist-before-mutate ordering: a /kill whose DB commit fails must not
// have already removed the victim from the in-memory tree.
func TestCmdKillLeavesTreeUntouchedWhenPersistFails(t *testing.T) {
	l := newTestLoop(t)
	root := l.tree.Current()
	child, err := l.tree.Fork(root)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}

	db, err := store.Open(t.TempDir()+"/kill-fail-test.db", 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	db.Close() // closed DB: KillAgentsCascade's tx.Begin will fail
	l.store = db
	l.sessionID = "sess-1"

	l.cmdKill(child, "")

	if _, err := l.tree.Resolve(child.ID); err != nil {
		t.Fatalf("expected child to still be in the tree after a failed persist, resolve error: %v", err)
	}
	if child.Status() != agent.StatusLive {
		t.Fatalf("expected child to remain live after a failed persist, status = %v", child.Status())
	}

	// cmdKill reports errors on the agent that issued the command: here the
	// child, which is also the kill target.
	n := child.Scrollback.LineCount()
	if n == 0 || !strings.Contains(child.Scrollback.LineText(n-1), "kill failed to persist") {
		t.Fatalf("scrollback last line = %q, want a persist-failure error", child.Scrollback.LineText(n-1))
	}
}

func TestCmdSwitchMovesFocus(t *testing.T) {
	l := newTestLoop(t)
	root := l.tree.Current()
	child, err := l.tree.Fork(root)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	_, _ = l.tree.Switch(root.ID)

	l.cmdSwitch(child.ID)

	if l.tree.Current().ID != child.ID {
		t.Fatalf("current = %s, want %s", l.tree.Current().ID, child.ID)
	}
}

func TestCmdMailDeliversAndLists(t *testing.T) {
	l := newTestLoop(t)
	root := l.tree.Current()
	child, err := l.tree.Fork(root)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	_, _ = l.tree.Switch(root.ID)

	l.cmdMail(root, child.ID+" hello there")

	if len(child.Inbox) != 1 {
		t.Fatalf("child inbox = %d messages, want 1", len(child.Inbox))
	}

	l.cmdMail(child, "")

	n := child.Scrollback.LineCount()
	if n == 0 || !strings.Contains(child.Scrollback.LineText(n-1), "hello there") {
		t.Fatalf("scrollback last line = %q, want the listed message body", child.Scrollback.LineText(n-1))
	}
}

package repl

import (
	"fmt"
	"strings"

	"github.com/ikigai-cli/ikigai/internal/agent"
	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/store"
)

// handleSubmit is called when the current agent's input buffer is
// submitted with Enter: either dispatch a slash command or start an
// ordinary turn.
func (l *Loop) handleSubmit() {
	a := l.tree.Current()
	if a == nil {
		return
	}
	text := string(a.Input.Text())
	a.Input.Clear()
	a.ViewportOffset = 0

	if text == "" {
		return
	}
	l.hist.Add(text)
	l.hist.StopBrowsing()

	if strings.HasPrefix(text, "/") {
		l.dispatchCommand(a, text)
		return
	}

	l.submitText(a, text)
}

// dispatchCommand parses and runs one slash command against the current
// agent tree.
func (l *Loop) dispatchCommand(a *agent.Agent, line string) {
	cmd, args := splitCommand(line)
	switch cmd {
	case "/fork":
		l.cmdFork(a, args)
	case "/kill":
		l.cmdKill(a, args)
	case "/switch":
		l.cmdSwitch(args)
	case "/mail":
		l.cmdMail(a, args)
	case "/pp":
		l.cmdPrettyPrint(a)
	default:
		a.Scrollback.AppendLine(fmt.Sprintf("Error: unknown command %q", cmd))
	}
}

func splitCommand(line string) (cmd, args string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimLeft(line[idx:], " \t")
}

// cmdFork implements /fork ["prompt"]: a single-flight guarded copy of the
// parent's conversation into a new child, persisted as one SaveAgent row
// (the child is killed again if that write fails), with an optional
// quoted prompt submitted on the new child afterward.
func (l *Loop) cmdFork(parent *agent.Agent, args string) {
	if l.forkPending {
		parent.Scrollback.AppendLine("Error: a fork is already pending")
		return
	}
	l.forkPending = true
	defer func() { l.forkPending = false }()

	child, err := l.tree.Fork(parent)
	if err != nil {
		parent.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
		return
	}

	if l.store != nil {
		rec := store.AgentRecord{
			ID:            child.ID,
			SessionID:     l.sessionID,
			ParentID:      child.ParentID,
			ProviderName:  child.ProviderName,
			ModelName:     child.ModelName,
			ForkMessageID: child.ForkMessageID,
			Status:        "live",
			CreatedAt:     child.CreatedAt,
		}
		if err := l.store.SaveAgent(rec); err != nil {
			if _, killErr := l.tree.Kill(child, false); killErr != nil {
				parent.Scrollback.AppendLine(fmt.Sprintf("Error: fork rollback failed: %s", killErr))
			}
			parent.Scrollback.AppendLine(fmt.Sprintf("Error: fork failed to persist: %s", err))
			return
		}
	}

	if prompt, ok := parseQuotedPrompt(args); ok && prompt != "" {
		l.submitText(child, prompt)
	}
}

// parseQuotedPrompt extracts an optional "quoted prompt" argument.
func parseQuotedPrompt(args string) (string, bool) {
	args = strings.TrimSpace(args)
	if len(args) < 2 || args[0] != '"' || args[len(args)-1] != '"' {
		return "", false
	}
	return args[1 : len(args)-1], true
}

// cmdKill implements /kill [uuid-prefix] [--cascade].
func (l *Loop) cmdKill(current *agent.Agent, args string) {
	cascade := false
	target := current
	for _, tok := range strings.Fields(args) {
		if tok == "--cascade" {
			cascade = true
			continue
		}
		resolved, err := l.tree.Resolve(tok)
		if err != nil {
			current.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
			return
		}
		target = resolved
	}

	victims, err := l.tree.KillVictims(target, cascade)
	if err != nil {
		current.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
		return
	}

	if l.store != nil {
		ids := make([]string, len(victims))
		for i, v := range victims {
			ids[i] = v.ID
		}
		if err := l.store.KillAgentsCascade(ids); err != nil {
			current.Scrollback.AppendLine(fmt.Sprintf("Error: kill failed to persist: %s", err))
			return
		}
	}

	l.tree.ApplyKill(target, victims)
}

// cmdSwitch implements /switch uuid-prefix.
func (l *Loop) cmdSwitch(args string) {
	target := strings.TrimSpace(args)
	if target == "" {
		return
	}
	if _, err := l.tree.Switch(target); err != nil {
		if cur := l.tree.Current(); cur != nil {
			cur.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
		}
	}
}

// cmdMail implements the supplemented /mail command: "/mail <target> <body>"
// delivers, "/mail" lists the current agent's inbox, "/mail read <n>" marks
// a message read.
func (l *Loop) cmdMail(a *agent.Agent, args string) {
	if strings.TrimSpace(args) == "" {
		for _, line := range agent.RenderInbox(a.Inbox) {
			a.Scrollback.AppendLine(line)
		}
		return
	}

	fields := strings.Fields(args)
	if fields[0] == "read" {
		idx, ok := agent.ParseMailIndex(strings.TrimPrefix(args, "read"))
		if !ok {
			a.Scrollback.AppendLine("Error: usage: /mail read <n>")
			return
		}
		if err := a.MarkRead(idx); err != nil {
			a.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
		}
		return
	}

	target, body, ok := agent.ParseMailTarget(args)
	if !ok || body == "" {
		a.Scrollback.AppendLine("Error: usage: /mail <uuid-prefix> <message>")
		return
	}
	recipient, err := l.tree.Resolve(target)
	if err != nil {
		a.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
		return
	}
	recipient.Deliver(agent.NewMail(a.ID, recipient.ID, body))
	a.Scrollback.AppendLine(fmt.Sprintf("Mail sent to %s", recipient.ID))
}

// cmdPrettyPrint implements /pp, the debug pretty-printer that dumps the
// current agent's conversation to its own scrollback.
func (l *Loop) cmdPrettyPrint(a *agent.Agent) {
	for i, m := range a.Messages() {
		a.Scrollback.AppendLine(fmt.Sprintf("[%d] %s:", i, m.Role))
		for _, b := range m.Blocks {
			a.Scrollback.AppendLine("    " + prettyBlock(b))
		}
	}
}

// prettyBlock renders one content block as a single debug line, switching
// on Type rather than inferring the variant from which fields are set.
func prettyBlock(b provider.ContentBlock) string {
	switch b.Type {
	case provider.BlockText:
		return fmt.Sprintf("text: %q", b.Text)
	case provider.BlockThinking:
		return fmt.Sprintf("thinking: %q", b.Text)
	case provider.BlockToolCall:
		return fmt.Sprintf("tool_call %s(%s) args=%s", b.ToolCallName, b.ToolCallID, b.ToolCallArgsJSON)
	case provider.BlockToolResult:
		return fmt.Sprintf("tool_result %s error=%v: %q", b.ToolResultCallID, b.ToolResultIsError, b.ToolResultText)
	default:
		return "unknown block"
	}
}

// Package agent implements the conversation unit the rest of ikigai
// revolves around: a tree-addressable Agent holding its own transcript,
// input buffer, scrollback, and request state machine, plus the Tree that
// forks, kills, and switches between them.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/ikigai-cli/ikigai/internal/editbuf"
	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/scrollback"
	"github.com/ikigai-cli/ikigai/internal/toolloop"
)

// Status is whether an agent is still part of the live tree.
type Status int

const (
	StatusLive Status = iota
	StatusDead
)

// RequestState is the agent's position in the tool loop's state machine.
type RequestState int

const (
	StateIdle RequestState = iota
	StateWaitingForLLM
	StateExecutingTool
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForLLM:
		return "waiting-for-llm"
	case StateExecutingTool:
		return "executing-tool"
	default:
		return "unknown"
	}
}

// spinnerGlyphs is the braille dot sequence the renderer cycles through
// while an agent's spinner is visible — the same frame set bubbles'
// spinner.Dot uses, reproduced here because this core draws its own
// escape-sequence frames rather than running inside a Bubbletea program.
var spinnerGlyphs = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Agent is one conversation: a stable identity in the tree, its own
// transcript and line-editing state, and the request state machine that
// drives the tool loop.
type Agent struct {
	ID        string
	ParentID  string // "" for a root agent
	CreatedAt time.Time

	ProviderName string
	ModelName    string
	Thinking     provider.Thinking

	Input      *editbuf.Buffer
	Scrollback *scrollback.Scrollback

	ViewportOffset int
	TargetColumn   int // renderer's desired cursor column, independent of editbuf's own vertical-move target column

	// ForkMessageID is the index into the parent's conversation at the
	// moment this agent was forked — the history-inheritance cut point.
	ForkMessageID int

	Inbox []Mail

	mu                 sync.Mutex
	status             Status
	state              RequestState
	conversation       []provider.Message
	toolIterationCount int
	requestsInFlight   int
	pendingToolCall    *provider.ContentBlock
	toolThreadRunning  bool
	toolThreadComplete bool
	toolOutput         string
	toolIsError        bool

	spinnerVisible bool
	spinnerFrame   int

	providerOnce     sync.Once
	providerInstance provider.Provider
}

// New creates a live, idle agent. id should already be a generated UUID
// (see NewID); parentID is "" for a root agent.
func New(id, parentID, providerName, modelName string) *Agent {
	return &Agent{
		ID:           id,
		ParentID:     parentID,
		CreatedAt:    time.Now(),
		ProviderName: providerName,
		ModelName:    modelName,
		Input:        editbuf.New(),
		Scrollback:   scrollback.New(),
		status:       StatusLive,
		state:        StateIdle,
	}
}

// IsRoot reports whether this agent has no parent.
func (a *Agent) IsRoot() bool { return a.ParentID == "" }

// Status returns the agent's liveness.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// markDead flips status to dead. Internal — callers go through Tree.Kill,
// which enforces the root-agent-cannot-be-killed invariant first.
func (a *Agent) markDead() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusDead
}

// State returns the agent's current request state.
func (a *Agent) State() RequestState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Messages returns a snapshot of the conversation so far.
func (a *Agent) Messages() []provider.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]provider.Message, len(a.conversation))
	copy(out, a.conversation)
	return out
}

// AppendMessage appends one message to the conversation. The conversation
// is append-only: there is no remove/replace operation.
func (a *Agent) AppendMessage(msg provider.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = append(a.conversation, msg)
}

// WarnLastToolResult appends the tool loop's stop-repeating reminder to the
// most recently appended message, if it carries a tool-result block. Called
// once per round when the round's calls match toolloop.Repeating.
func (a *Agent) WarnLastToolResult() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.conversation) == 0 {
		return
	}
	toolloop.WarnRepetition(&a.conversation[len(a.conversation)-1])
}

// InjectRecitation appends reminder to the most recent tool-result block in
// the conversation, replacing any reminder block already there. A no-op if
// reminder is empty or no tool-result message exists yet. Delegates to
// toolloop's own recitation-injection rule so a round-by-round caller and
// toolloop.Run apply the identical reminder format.
func (a *Agent) InjectRecitation(reminder string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	toolloop.InjectRecitationText(a.conversation, reminder)
}

// SetConversation replaces the conversation wholesale — used only when
// forking a child, to seed it with the parent's history up to the fork
// point. Not used for ordinary turn-by-turn appends.
func (a *Agent) SetConversation(msgs []provider.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = append([]provider.Message(nil), msgs...)
}

// ToolIterationCount returns how many tool-calling rounds this turn has run.
func (a *Agent) ToolIterationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.toolIterationCount
}

// ResetToolIterationCount zeroes the counter — done when a fresh user
// submission starts a new turn.
func (a *Agent) ResetToolIterationCount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolIterationCount = 0
}

// StartWaitingForLLM transitions idle -> waiting-for-llm when a user submits
// a non-slash input, and re-arms waiting-for-llm when the tool loop sends a
// further request from that state (the tool-free request after the
// iteration ceiling). It refuses executing-tool, which returns to
// waiting-for-llm only through HarvestToolResult.
func (a *Agent) StartWaitingForLLM() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle && a.state != StateWaitingForLLM {
		return fmt.Errorf("agent %s: cannot start waiting-for-llm from state %s", a.ID, a.state)
	}
	a.state = StateWaitingForLLM
	a.requestsInFlight++
	a.spinnerVisible = true
	return nil
}

// RequestsInFlight returns the count of HTTP requests this agent currently
// has outstanding.
func (a *Agent) RequestsInFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requestsInFlight
}

// FinishRequest decrements the in-flight request counter, called once an
// HTTP completion for this agent has been harvested.
func (a *Agent) FinishRequest() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.requestsInFlight > 0 {
		a.requestsInFlight--
	}
}

// StartToolCall pins a tool call parsed from the most recent response and
// transitions waiting-for-llm -> executing-tool. Returns an error if the
// agent isn't currently waiting for an LLM response.
func (a *Agent) StartToolCall(call provider.ContentBlock) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateWaitingForLLM {
		return fmt.Errorf("agent %s: cannot start tool call from state %s", a.ID, a.state)
	}
	a.state = StateExecutingTool
	a.pendingToolCall = &call
	a.toolThreadRunning = true
	a.toolThreadComplete = false
	a.toolIterationCount++
	return nil
}

// HasRunningTool reports whether a tool worker is currently in flight —
// the condition /fork must wait out before proceeding.
func (a *Agent) HasRunningTool() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.toolThreadRunning && !a.toolThreadComplete
}

// CompleteToolCall is called by the tool worker goroutine when it finishes.
// It never mutates request state directly — only the event loop's harvest
// does that — so the worker's write is confined to the three flags and the
// result fields the mutex guards.
func (a *Agent) CompleteToolCall(output string, isError bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolOutput = output
	a.toolIsError = isError
	a.toolThreadComplete = true
}

// HarvestToolResult is polled by the event loop. When the worker has
// finished, it returns the result, clears the running/complete flags and
// pending call, transitions back to waiting-for-llm, and reports ok=true.
// Calling it before completion reports ok=false and changes nothing.
func (a *Agent) HarvestToolResult() (output string, isError bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.toolThreadComplete {
		return "", false, false
	}
	output, isError = a.toolOutput, a.toolIsError
	a.toolThreadRunning = false
	a.toolThreadComplete = false
	a.pendingToolCall = nil
	a.toolOutput = ""
	a.toolIsError = false
	a.state = StateWaitingForLLM
	return output, isError, true
}

// PendingToolCall returns the tool call currently pinned, if any.
func (a *Agent) PendingToolCall() (provider.ContentBlock, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pendingToolCall == nil {
		return provider.ContentBlock{}, false
	}
	return *a.pendingToolCall, true
}

// FinishToIdle transitions waiting-for-llm (or executing-tool) -> idle: the
// path taken when a response ends the turn without tool calls, including
// the final tool-free request after the iteration ceiling, or when the
// request fails.
func (a *Agent) FinishToIdle() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateExecutingTool && a.state != StateWaitingForLLM {
		return fmt.Errorf("agent %s: cannot finish to idle from state %s", a.ID, a.state)
	}
	a.state = StateIdle
	a.spinnerVisible = false
	return nil
}

// ForceIdle resets request state unconditionally — used when an agent is
// killed mid-turn and its in-flight work is simply discarded.
func (a *Agent) ForceIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateIdle
	a.spinnerVisible = false
	a.toolThreadRunning = false
	a.toolThreadComplete = false
	a.pendingToolCall = nil
}

// SpinnerVisible reports whether the agent's spinner should be drawn.
func (a *Agent) SpinnerVisible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spinnerVisible
}

// TickSpinner advances the spinner one frame and returns its glyph.
func (a *Agent) TickSpinner() rune {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spinnerFrame = (a.spinnerFrame + 1) % len(spinnerGlyphs)
	return spinnerGlyphs[a.spinnerFrame]
}

// Provider returns this agent's lazily created provider instance, creating
// it via create on first use and reusing it thereafter.
func (a *Agent) Provider(create func() provider.Provider) provider.Provider {
	a.providerOnce.Do(func() {
		a.providerInstance = create()
	})
	return a.providerInstance
}

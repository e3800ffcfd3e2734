// Package toolloop implements the tool-calling cycle: submit a request,
// stream the response, and — while the model keeps
// asking for tools — run each tool call and feed its result back, until
// the model produces a non-tool-calls finish reason or the iteration
// ceiling forces a final, tool-free request.
package toolloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/ikigai-cli/ikigai/internal/constants"
	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/tools"
)

// DeltaFunc is called for each stream event as a response streams in.
type DeltaFunc func(evt provider.StreamEvent)

// MessageFunc is called whenever a complete message is appended to the
// conversation — the assistant's turn, and each tool result.
type MessageFunc func(msg provider.Message)

// ToolCallFunc is called once per round, just before any tool calls in
// that round are executed.
type ToolCallFunc func(calls []provider.ContentBlock)

// RecitationSource supplies the text injected as a recitation reminder
// every constants.RecitationInterval rounds. Returning "" means no plan is
// available and the loop falls back to echoing the original user request.
type RecitationSource interface {
	Content() string
}

// Options configures one call to Run.
type Options struct {
	Provider   provider.Provider
	Registry   *tools.Registry
	Messages   []provider.Message // conversation so far; Run appends to a copy
	System     string
	Model      string
	Thinking   provider.Thinking
	MaxTurns   int // 0 uses constants.DefaultMaxToolTurns
	Recitation RecitationSource

	OnDelta    DeltaFunc
	OnMessage  MessageFunc
	OnToolCall ToolCallFunc
}

// Run drives the tool loop to completion and returns the final message
// history (the input Messages plus every assistant/tool message produced).
// It terminates either because the model returned a non-tool-calls finish
// reason, or because the iteration ceiling forced a tool-free final
// request — the loop's one safety property: it always terminates.
func Run(ctx context.Context, opts Options) ([]provider.Message, error) {
	maxTurns := opts.MaxTurns
	if maxTurns == 0 {
		maxTurns = constants.DefaultMaxToolTurns
	}

	history := append([]provider.Message(nil), opts.Messages...)
	toolDefs := opts.Registry.Definitions()

	var recent []RecentCall
	for round := 0; round < maxTurns; round++ {
		injectRecitation(history, opts.Recitation, round)

		resp, err := streamAndCollect(ctx, opts, history, toolDefs, provider.ToolChoice{Mode: provider.ToolChoiceAuto})
		if err != nil {
			return history, fmt.Errorf("tool loop: %w", err)
		}

		assistantMsg := provider.Message{Role: "assistant", Blocks: resp.Blocks}
		history = appendMessage(history, assistantMsg, opts.OnMessage)

		calls := toolCallBlocks(resp.Blocks)
		if len(calls) == 0 {
			return history, nil
		}

		if opts.OnToolCall != nil {
			opts.OnToolCall(calls)
		}

		results := runToolCalls(ctx, opts.Registry, calls)
		for _, r := range results {
			history = appendMessage(history, r, opts.OnMessage)
		}

		recent = AppendRecent(recent, calls)
		if Repeating(recent) && len(history) > 0 {
			WarnRepetition(&history[len(history)-1])
		}
	}

	if err := ctx.Err(); err != nil {
		return history, err
	}

	limitMsg := provider.Message{
		Role:   "user",
		Blocks: []provider.ContentBlock{provider.TextBlock("You have exhausted your tool call limit for this turn. Respond in text only. Summarize what you accomplished and what remains.")},
	}
	history = appendMessage(history, limitMsg, opts.OnMessage)

	resp, err := streamAndCollect(ctx, opts, history, nil, provider.ToolChoice{Mode: provider.ToolChoiceNone})
	if err != nil {
		return history, fmt.Errorf("tool loop final request: %w", err)
	}

	finalMsg := provider.Message{Role: "assistant", Blocks: resp.Blocks}
	history = appendMessage(history, finalMsg, opts.OnMessage)

	// A provider that returns tool_calls on the tool-free final request
	// has violated its contract (tool_choice: none). Treat it the same as
	// a normal stop so the loop's termination guarantee never depends on
	// provider behavior past this point.
	return history, nil
}

func appendMessage(history []provider.Message, msg provider.Message, onMessage MessageFunc) []provider.Message {
	if onMessage != nil {
		onMessage(msg)
	}
	return append(history, msg)
}

func toolCallBlocks(blocks []provider.ContentBlock) []provider.ContentBlock {
	var calls []provider.ContentBlock
	for _, b := range blocks {
		if b.Type == provider.BlockToolCall {
			calls = append(calls, b)
		}
	}
	return calls
}

func streamAndCollect(ctx context.Context, opts Options, history []provider.Message, toolDefs []provider.Tool, choice provider.ToolChoice) (*provider.Response, error) {
	req := provider.Request{
		Model:      opts.Model,
		System:     opts.System,
		Messages:   history,
		Tools:      toolDefs,
		ToolChoice: choice,
		Thinking:   opts.Thinking,
	}

	for attempt := 0; attempt <= constants.MaxEmptyResponseRetries; attempt++ {
		ch, err := opts.Provider.ChatStream(ctx, req)
		if err != nil {
			return nil, err
		}
		resp, err := collectStream(ch, opts.OnDelta)
		if err != nil {
			return nil, err
		}
		if !IsEmptyResponse(resp) {
			return resp, nil
		}
	}

	return nil, fmt.Errorf("empty response from provider %s", opts.Provider.Name())
}

// IsEmptyResponse reports whether resp carries no content at all — no
// text, no thinking, no tool calls — the condition the empty-response
// retry guards against.
func IsEmptyResponse(resp *provider.Response) bool {
	if resp == nil {
		return true
	}
	return len(resp.Blocks) == 0
}

func collectStream(ch <-chan provider.StreamEvent, onDelta DeltaFunc) (*provider.Response, error) {
	var resp provider.Response
	acc := newToolCallAccumulator()

	for evt := range ch {
		if onDelta != nil {
			onDelta(evt)
		}

		switch evt.Type {
		case provider.EvStart:
			resp.Model = evt.Model
		case provider.EvTextDelta:
			appendTextBlock(&resp.Blocks, evt.Text)
		case provider.EvThinkingDelta:
			appendThinkingBlock(&resp.Blocks, evt.Text)
		case provider.EvToolCallStart:
			acc.begin(evt)
		case provider.EvToolCallDelta:
			acc.delta(evt)
		case provider.EvToolCallDone:
			// argument accumulation finalizes in acc.finalize()
		case provider.EvDone:
			resp.FinishReason = evt.FinishReason
			resp.Usage = evt.Usage
		case provider.EvError:
			return nil, fmt.Errorf("%s: %s", evt.Category, evt.Message)
		}
	}

	resp.Blocks = append(resp.Blocks, acc.finalize()...)
	return &resp, nil
}

// appendTextBlock coalesces consecutive text deltas into one BlockText so a
// multi-delta response yields one text block, matching what a
// non-streaming response would look like.
func appendTextBlock(blocks *[]provider.ContentBlock, text string) {
	if n := len(*blocks); n > 0 && (*blocks)[n-1].Type == provider.BlockText {
		(*blocks)[n-1].Text += text
		return
	}
	*blocks = append(*blocks, provider.TextBlock(text))
}

func appendThinkingBlock(blocks *[]provider.ContentBlock, text string) {
	if n := len(*blocks); n > 0 && (*blocks)[n-1].Type == provider.BlockThinking {
		(*blocks)[n-1].Text += text
		return
	}
	*blocks = append(*blocks, provider.ThinkingBlock(text))
}

// toolCallAccumulator assembles streamed tool-call-start/delta events into
// finished BlockToolCall content blocks, keyed by stream index.
type toolCallAccumulator struct {
	order   []int
	byIndex map[int]*provider.ContentBlock
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]*provider.ContentBlock)}
}

func (a *toolCallAccumulator) begin(evt provider.StreamEvent) {
	block := provider.ToolCallBlock(evt.ToolCallID, evt.ToolCallName, "")
	block.ThoughtSignature = evt.ThoughtSignature
	a.byIndex[evt.ToolCallIndex] = &block
	a.order = append(a.order, evt.ToolCallIndex)
}

func (a *toolCallAccumulator) delta(evt provider.StreamEvent) {
	if b, ok := a.byIndex[evt.ToolCallIndex]; ok {
		b.ToolCallArgsJSON += evt.ToolCallArgsDelta
	}
}

func (a *toolCallAccumulator) finalize() []provider.ContentBlock {
	blocks := make([]provider.ContentBlock, 0, len(a.order))
	for _, idx := range a.order {
		blocks = append(blocks, *a.byIndex[idx])
	}
	return blocks
}

// runToolCalls executes every tool call in a round and produces the
// corresponding tool-result messages, in call order.
func runToolCalls(ctx context.Context, reg *tools.Registry, calls []provider.ContentBlock) []provider.Message {
	results := make([]provider.Message, 0, len(calls))
	for _, call := range calls {
		tool, ok := reg.Lookup(call.ToolCallName)
		if !ok {
			results = append(results, toolResultMessage(call.ToolCallID, fmt.Sprintf("unknown tool %q", call.ToolCallName), true))
			continue
		}
		output, isError := tools.Invoke(ctx, tool, []byte(call.ToolCallArgsJSON))
		results = append(results, toolResultMessage(call.ToolCallID, output, isError))
	}
	return results
}

func toolResultMessage(callID, text string, isError bool) provider.Message {
	return provider.Message{
		Role:   "tool",
		Blocks: []provider.ContentBlock{provider.ToolResultBlock(callID, text, isError)},
	}
}

// RecentCall is one round's worth of (name, args) pairs, tracked to detect
// the model looping on an identical call. Exported so a caller driving its
// own round-by-round loop (rather than Run) can reuse the same repetition
// guard instead of reimplementing it.
type RecentCall struct {
	name string
	args string
}

// AppendRecent records one round's tool calls onto the running history used
// by Repeating.
func AppendRecent(recent []RecentCall, calls []provider.ContentBlock) []RecentCall {
	for _, c := range calls {
		recent = append(recent, RecentCall{name: c.ToolCallName, args: c.ToolCallArgsJSON})
	}
	return recent
}

// Repeating reports whether the last constants.RepeatedToolCallLimit calls
// are all identical.
func Repeating(recent []RecentCall) bool {
	n := constants.RepeatedToolCallLimit
	if len(recent) < n {
		return false
	}
	last := recent[len(recent)-n:]
	for i := 1; i < len(last); i++ {
		if last[i] != last[0] {
			return false
		}
	}
	return true
}

// WarnRepetition appends a stop-repeating reminder to every tool-result
// block in msg.
func WarnRepetition(msg *provider.Message) {
	warning := "\n\n<system-reminder>WARNING: You are repeating the same tool call with the same arguments. This is wasteful. Stop and either try a different approach, summarize what you know, or ask the user for help.</system-reminder>"
	for i := range msg.Blocks {
		if msg.Blocks[i].Type == provider.BlockToolResult {
			msg.Blocks[i].ToolResultText += warning
		}
	}
}

// injectRecitation appends a reminder to the most recent tool-result block
// every constants.RecitationInterval rounds, so a long tool-calling loop
// doesn't let the model drift from its goal. Appending to an existing
// message (rather than inserting a new one) avoids shifting prior message
// positions and invalidating a provider's prompt cache.
func injectRecitation(history []provider.Message, src RecitationSource, round int) {
	if round == 0 || round%constants.RecitationInterval != 0 {
		return
	}

	reminder := ""
	if src != nil {
		reminder = src.Content()
	}
	if reminder == "" {
		reminder = OriginalRequest(history)
	}
	InjectRecitationText(history, reminder)
}

// InjectRecitationText appends reminder to the most recent tool-result
// block in history, replacing any reminder block it already carries. A
// no-op if reminder is empty or no tool-result message exists. Exported so
// a caller driving its own round loop can apply the same reminder-injection
// rule Run uses internally.
func InjectRecitationText(history []provider.Message, reminder string) {
	if reminder == "" {
		return
	}

	const tag = "\n\n<system-reminder>\n"
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "tool" {
			continue
		}
		for j := range history[i].Blocks {
			b := &history[i].Blocks[j]
			if b.Type != provider.BlockToolResult {
				continue
			}
			if idx := strings.Index(b.ToolResultText, tag); idx >= 0 {
				b.ToolResultText = b.ToolResultText[:idx]
			}
			b.ToolResultText += tag + reminder + "\n</system-reminder>"
			return
		}
	}
}

// OriginalRequest returns the first user message's text, prefixed for use
// as a recitation reminder, or "" if there is none.
func OriginalRequest(history []provider.Message) string {
	for _, m := range history {
		if m.Role != "user" {
			continue
		}
		for _, b := range m.Blocks {
			if b.Type == provider.BlockText && b.Text != "" {
				return "The user's request: " + b.Text
			}
		}
	}
	return ""
}

package repl

import (
	"context"
	"fmt"

	"github.com/ikigai-cli/ikigai/internal/agent"
	"github.com/ikigai-cli/ikigai/internal/constants"
	"github.com/ikigai-cli/ikigai/internal/highlight"
	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/tools"
	"github.com/ikigai-cli/ikigai/internal/toolloop"
)

// roundResult is delivered on Loop.rounds when a streamed LLM round for one
// agent finishes, successfully or not.
type roundResult struct {
	agentID string
	resp    *provider.Response
	err     error
}

// submitText appends a user message to a and starts its tool loop's first
// round. Called both for an ordinary Enter submission and for the prompt
// that follows a successful /fork.
func (l *Loop) submitText(a *agent.Agent, text string) {
	a.ResetToolIterationCount()
	delete(l.recentCalls, a.ID)
	a.AppendMessage(provider.Message{Role: "user", Blocks: []provider.ContentBlock{provider.TextBlock(text)}})
	l.persistMessage(a, "user", []provider.ContentBlock{provider.TextBlock(text)})
	if err := a.StartWaitingForLLM(); err != nil {
		a.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
		return
	}
	l.startRound(a, provider.ToolChoice{Mode: provider.ToolChoiceAuto})
}

// startRound launches the streaming goroutine for one LLM round. Its result
// arrives on l.rounds, picked up by the main loop's select.
func (l *Loop) startRound(a *agent.Agent, choice provider.ToolChoice) {
	prov := a.Provider(func() provider.Provider { return l.createProvider(a) })
	req := provider.Request{
		Model:      a.ModelName,
		System:     l.cfg.Agent.SystemMessage,
		Messages:   a.Messages(),
		Tools:      l.tools.Definitions(),
		ToolChoice: choice,
		Thinking:   a.Thinking,
	}
	if choice.Mode == provider.ToolChoiceNone {
		req.Tools = nil
	}

	go func() {
		var resp *provider.Response
		var err error
		for attempt := 0; attempt <= constants.MaxEmptyResponseRetries; attempt++ {
			resp, err = l.streamOne(l.ctx, prov, req)
			if err != nil || !toolloop.IsEmptyResponse(resp) {
				break
			}
		}
		l.rounds <- roundResult{agentID: a.ID, resp: resp, err: err}
	}()
}

// streamOne drives one ChatStream call to completion, collecting its
// content blocks and finish reason. Grounded on toolloop's collectStream,
// adapted to a single round rather than a whole multi-round loop, since the
// REPL drives each round through the agent's own state machine instead of
// toolloop's blocking Run. startRound retries a call whose response comes
// back empty, carrying toolloop's own empty-response-retry rule over into
// the round-at-a-time dispatch.
func (l *Loop) streamOne(ctx context.Context, prov provider.Provider, req provider.Request) (*provider.Response, error) {
	ch, err := prov.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp provider.Response
	var toolOrder []int
	byIndex := make(map[int]*provider.ContentBlock)

	for evt := range ch {
		switch evt.Type {
		case provider.EvStart:
			resp.Model = evt.Model
		case provider.EvTextDelta:
			appendText(&resp.Blocks, evt.Text)
		case provider.EvThinkingDelta:
			appendThinking(&resp.Blocks, evt.Text)
		case provider.EvToolCallStart:
			block := provider.ToolCallBlock(evt.ToolCallID, evt.ToolCallName, "")
			block.ThoughtSignature = evt.ThoughtSignature
			byIndex[evt.ToolCallIndex] = &block
			toolOrder = append(toolOrder, evt.ToolCallIndex)
		case provider.EvToolCallDelta:
			if b, ok := byIndex[evt.ToolCallIndex]; ok {
				b.ToolCallArgsJSON += evt.ToolCallArgsDelta
			}
		case provider.EvDone:
			resp.FinishReason = evt.FinishReason
			resp.Usage = evt.Usage
		case provider.EvError:
			return nil, fmt.Errorf("%s: %s", evt.Category, evt.Message)
		}
	}

	for _, idx := range toolOrder {
		resp.Blocks = append(resp.Blocks, *byIndex[idx])
	}
	return &resp, nil
}

func appendText(blocks *[]provider.ContentBlock, text string) {
	if n := len(*blocks); n > 0 && (*blocks)[n-1].Type == provider.BlockText {
		(*blocks)[n-1].Text += text
		return
	}
	*blocks = append(*blocks, provider.TextBlock(text))
}

func appendThinking(blocks *[]provider.ContentBlock, text string) {
	if n := len(*blocks); n > 0 && (*blocks)[n-1].Type == provider.BlockThinking {
		(*blocks)[n-1].Text += text
		return
	}
	*blocks = append(*blocks, provider.ThinkingBlock(text))
}

// handleRoundResult is called from the main loop when a roundResult arrives.
// It implements the waiting-for-llm leg of the agent state machine: either
// hand off to a tool worker, or return the agent to idle.
func (l *Loop) handleRoundResult(res roundResult) {
	a, err := l.tree.Resolve(res.agentID)
	if err != nil {
		return
	}
	a.FinishRequest()

	if res.err != nil {
		a.Scrollback.AppendLine(fmt.Sprintf("Error: %s", res.err))
		_ = a.FinishToIdle()
		return
	}

	assistant := provider.Message{Role: "assistant", Blocks: res.resp.Blocks}
	a.AppendMessage(assistant)
	l.persistMessage(a, "assistant", res.resp.Blocks)
	l.echoAssistantText(a, res.resp.Blocks)

	calls := toolCalls(res.resp.Blocks)
	if res.resp.FinishReason != provider.FinishToolCalls || len(calls) == 0 {
		_ = a.FinishToIdle()
		return
	}

	if a.ToolIterationCount() >= l.cfg.Agent.MaxToolTurnsOrDefault() {
		// Ceiling reached: one more request, tool-free, forces a
		// terminating text reply.
		if err := a.StartWaitingForLLM(); err != nil {
			a.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
			return
		}
		limitMsg := provider.Message{
			Role:   "user",
			Blocks: []provider.ContentBlock{provider.TextBlock("You have exhausted your tool call limit for this turn. Respond in text only.")},
		}
		a.AppendMessage(limitMsg)
		l.persistMessage(a, "user", limitMsg.Blocks)
		l.startRound(a, provider.ToolChoice{Mode: provider.ToolChoiceNone})
		return
	}

	if err := a.StartToolCall(calls[0]); err != nil {
		a.Scrollback.AppendLine(fmt.Sprintf("Error: %s", err))
		return
	}
	l.runToolRound(a, calls)
}

// runToolRound executes every tool call from one round on a dedicated
// goroutine, one per agent with calls in flight. Each call's result is
// appended to the conversation before CompleteToolCall marks the round
// done, preserving the ordering invariant that a tool result is persisted
// before any follow-up request is sent.
func (l *Loop) runToolRound(a *agent.Agent, calls []provider.ContentBlock) {
	go func() {
		ctx := tools.WithAgentID(l.ctx, a.ID)
		for _, call := range calls {
			output, isError := invokeTool(ctx, l.tools, call)
			msg := provider.Message{
				Role:   "tool",
				Blocks: []provider.ContentBlock{provider.ToolResultBlock(call.ToolCallID, output, isError)},
			}
			a.AppendMessage(msg)
			l.persistMessage(a, "tool", msg.Blocks)
		}
		l.applyToolLoopGuards(a, calls)
		a.CompleteToolCall("", false)
	}()
}

// applyToolLoopGuards carries toolloop.Run's repeated-tool-call guard and
// periodic recitation reminder over into the round-at-a-time dispatch: both
// act on the tool-result message(s) runToolRound just appended, the same
// way they act on the last history entry inside Run's own loop body.
func (l *Loop) applyToolLoopGuards(a *agent.Agent, calls []provider.ContentBlock) {
	recent := toolloop.AppendRecent(l.recentCalls[a.ID], calls)
	l.recentCalls[a.ID] = recent
	if toolloop.Repeating(recent) {
		a.WarnLastToolResult()
	}

	round := a.ToolIterationCount()
	if round == 0 || round%constants.RecitationInterval != 0 {
		return
	}
	reminder := ""
	if l.scratchpad != nil {
		reminder = l.scratchpad.Content(a.ID)
	}
	if reminder == "" {
		reminder = toolloop.OriginalRequest(a.Messages())
	}
	a.InjectRecitation(reminder)
}

func invokeTool(ctx context.Context, reg *tools.Registry, call provider.ContentBlock) (string, bool) {
	tool, ok := reg.Lookup(call.ToolCallName)
	if !ok {
		return fmt.Sprintf("unknown tool %q", call.ToolCallName), true
	}
	return tools.Invoke(ctx, tool, []byte(call.ToolCallArgsJSON))
}

func toolCalls(blocks []provider.ContentBlock) []provider.ContentBlock {
	var calls []provider.ContentBlock
	for _, b := range blocks {
		if b.Type == provider.BlockToolCall {
			calls = append(calls, b)
		}
	}
	return calls
}

// echoAssistantText writes the assistant's visible text (not its internal
// thinking or tool-call blocks) to the scrollback as it would appear in the
// transcript, syntax-highlighting any fenced code blocks along the way.
func (l *Loop) echoAssistantText(a *agent.Agent, blocks []provider.ContentBlock) {
	theme := l.cfg.UI.SyntaxThemeOrDefault()
	for _, b := range blocks {
		if b.Type != provider.BlockText || b.Text == "" {
			continue
		}
		for _, line := range highlight.FormatMessage(b.Text, theme) {
			a.Scrollback.AppendLine(line)
		}
	}
}

// harvestTools polls every agent for a finished tool worker and, for each
// one found, appends the follow-up LLM round.
func (l *Loop) harvestTools() {
	for _, a := range l.tree.All() {
		if a.Status() != agent.StatusLive {
			continue
		}
		if _, _, ok := a.HarvestToolResult(); ok {
			l.startRound(a, provider.ToolChoice{Mode: provider.ToolChoiceAuto})
		}
	}
}

// persistMessage is a no-op when persistence is disabled (nil store).
func (l *Loop) persistMessage(a *agent.Agent, role string, blocks []provider.ContentBlock) {
	if l.store == nil {
		return
	}
	l.store.SaveMessage(l.sessionID, storeMessageOf(a.ID, role, blocks))
}

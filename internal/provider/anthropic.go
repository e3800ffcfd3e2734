package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const anthropicDefaultMaxTokens = 8192

// AnthropicProvider implements Provider against the Messages API.
type AnthropicProvider struct {
	model    string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewAnthropic constructs an Anthropic provider for the given model.
func NewAnthropic(model, endpoint, apiKey string) *AnthropicProvider {
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}
	return &AnthropicProvider{
		model:    model,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 0},
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.model}}, nil
}

// anthropicRequest / anthropicMessage / block types — the wire shapes
// the Messages API expects.

type anthropicRequest struct {
	Model       string                `json:"model"`
	Messages    []anthropicMessage    `json:"messages"`
	System      []anthropicCacheBlock `json:"system,omitempty"`
	MaxTokens   int                   `json:"max_tokens"`
	Stream      bool                  `json:"stream"`
	Tools       []anthropicTool       `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice  `json:"tool_choice,omitempty"`
	Thinking    *anthropicThinking    `json:"thinking,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"` // "enabled" | "disabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type anthropicToolChoice struct {
	Type string `json:"type"` // "auto" | "none" | "any"
}

type anthropicCacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

type anthropicCacheBlock struct {
	Type         string                 `json:"type"` // "text"
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []interface{} of blocks
}

type anthropicTextBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

type anthropicToolUseBlock struct {
	Type  string          `json:"type"` // "tool_use"
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResultBlock struct {
	Type      string `json:"type"` // "tool_result"
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  json.RawMessage        `json:"input_schema"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

// SSE event payloads.

type anthropicMessageStart struct {
	Message struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

type anthropicMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContentBlockStart struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"` // "text" | "thinking" | "tool_use"
		Text string `json:"text,omitempty"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block"`
}

type anthropicContentBlockDelta struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"` // text_delta | thinking_delta | input_json_delta | signature_delta
		Text        string `json:"text,omitempty"`
		Thinking    string `json:"thinking,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		Signature   string `json:"signature,omitempty"`
	} `json:"delta"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toAnthropicMessages hoists system messages out and converts the tool role
// into a user message with a tool_result block; the last system block is
// marked cache_control:ephemeral (toAnthropicTools marks the last tool the
// same way) so the provider can reuse the cached prefix across turns.
func toAnthropicMessages(messages []Message) ([]anthropicCacheBlock, []anthropicMessage) {
	var systemParts []string
	var result []anthropicMessage

	for _, m := range messages {
		switch m.Role {
		case "system":
			for _, b := range m.Blocks {
				if b.Type == BlockText {
					systemParts = append(systemParts, b.Text)
				}
			}
		case "tool":
			for _, b := range m.Blocks {
				if b.Type != BlockToolResult {
					continue
				}
				result = append(result, anthropicMessage{
					Role: "user",
					Content: []interface{}{anthropicToolResultBlock{
						Type:      "tool_result",
						ToolUseID: b.ToolResultCallID,
						Content:   b.ToolResultText,
						IsError:   b.ToolResultIsError,
					}},
				})
			}
		default:
			var blocks []interface{}
			for _, b := range m.Blocks {
				switch b.Type {
				case BlockText:
					if b.Text != "" {
						blocks = append(blocks, anthropicTextBlock{Type: "text", Text: b.Text})
					}
				case BlockToolCall:
					input := json.RawMessage(b.ToolCallArgsJSON)
					if len(input) == 0 {
						input = json.RawMessage(`{}`)
					}
					blocks = append(blocks, anthropicToolUseBlock{
						Type: "tool_use", ID: b.ToolCallID, Name: b.ToolCallName, Input: input,
					})
				}
			}
			if len(blocks) == 1 {
				if tb, ok := blocks[0].(anthropicTextBlock); ok {
					result = append(result, anthropicMessage{Role: m.Role, Content: tb.Text})
					continue
				}
			}
			result = append(result, anthropicMessage{Role: m.Role, Content: blocks})
		}
	}

	var system []anthropicCacheBlock
	if len(systemParts) > 0 {
		system = make([]anthropicCacheBlock, len(systemParts))
		for i, part := range systemParts {
			system[i] = anthropicCacheBlock{Type: "text", Text: part}
		}
		system[len(system)-1].CacheControl = &anthropicCacheControl{Type: "ephemeral"}
	}
	return system, result
}

func toAnthropicTools(tools []Tool) []anthropicTool {
	if tools == nil {
		return nil
	}
	emptySchema := json.RawMessage(`{"type":"object","properties":{}}`)
	result := make([]anthropicTool, len(tools))
	for i, t := range tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = emptySchema
		}
		result[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: schema}
	}
	if len(result) > 0 {
		result[len(result)-1].CacheControl = &anthropicCacheControl{Type: "ephemeral"}
	}
	return result
}

func toAnthropicToolChoice(tc ToolChoice) *anthropicToolChoice {
	switch tc.Mode {
	case ToolChoiceNone:
		return &anthropicToolChoice{Type: "none"}
	case ToolChoiceRequired, ToolChoiceRequiredName:
		return &anthropicToolChoice{Type: "any"}
	default:
		return nil
	}
}

// anthropicThinkingBudgets maps a canonical level to a token budget. Anthropic
// budgets are power-of-2 token counts; this table uses the documented
// minimums for the Sonnet/Opus thinking-capable family.
var anthropicThinkingBudgets = map[ThinkingLevel]int{
	ThinkingLow:    1024,
	ThinkingMedium: 4096,
	ThinkingHigh:   16384,
}

func toAnthropicThinking(t Thinking) *anthropicThinking {
	if t.Level == ThinkingNone {
		return nil
	}
	budget, ok := anthropicThinkingBudgets[t.Level]
	if !ok {
		return nil
	}
	return &anthropicThinking{Type: "enabled", BudgetTokens: budget}
}

func (p *AnthropicProvider) ChatStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	sysMsgs := req.Messages
	if req.System != "" {
		sysMsgs = append([]Message{{Role: "system", Blocks: []ContentBlock{TextBlock(req.System)}}}, sysMsgs...)
	}
	system, messages := toAnthropicMessages(sysMsgs)

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	body := anthropicRequest{
		Model:      p.model,
		Messages:   messages,
		System:     system,
		MaxTokens:  maxTokens,
		Stream:     true,
		Tools:      toAnthropicTools(req.Tools),
		ToolChoice: toAnthropicToolChoice(req.ToolChoice),
		Thinking:   toAnthropicThinking(req.Thinking),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Category: CategoryInvalidArgument, Provider: p.Name(), Message: "marshal request", Cause: err}
	}

	ch := make(chan StreamEvent, 64)
	go p.stream(ctx, payload, ch)
	return ch, nil
}

func (p *AnthropicProvider) stream(ctx context.Context, payload []byte, ch chan<- StreamEvent) {
	defer close(ch)

	cfg := httpRequestConfig{
		Method: http.MethodPost,
		URL:    p.endpoint,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			"Accept":            "text/event-stream",
			"x-api-key":         p.apiKey,
			"anthropic-version": "2023-06-01",
		},
		Body: payload,
	}

	body, status, err := httpDoSSE(ctx, p.client, cfg)
	if err != nil {
		trySend(ctx, ch, classifyTransportError(err))
		return
	}
	defer body.Close()

	if status < 200 || status >= 300 {
		trySend(ctx, ch, classifyAnthropicHTTPError(status, body))
		return
	}

	trySend(ctx, ch, StreamEvent{Type: EvStart, Model: p.model})
	parseAnthropicSSEStream(ctx, body, ch)
}

func classifyAnthropicHTTPError(status int, body io.Reader) StreamEvent {
	data, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	var eb anthropicErrorBody
	_ = json.Unmarshal(data, &eb)

	cat := CategoryUnknown
	switch {
	case eb.Error.Type == "content_policy_violation" || status == http.StatusUnprocessableEntity:
		cat = CategoryContentFilter
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		cat = CategoryAuth
	case status == http.StatusTooManyRequests:
		cat = CategoryRateLimit
	case status == http.StatusNotFound:
		cat = CategoryNotFound
	case status == http.StatusBadRequest:
		cat = CategoryInvalidArgument
	case status >= 500:
		cat = CategoryServer
	}
	msg := eb.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("http %d", status)
	}
	return StreamEvent{Type: EvError, Category: cat, Message: msg}
}

func classifyTransportError(err error) StreamEvent {
	return StreamEvent{Type: EvError, Category: CategoryNetwork, Message: err.Error()}
}

type anthropicBlockTracker struct {
	toolCallCount  int
	blockIsToolUse map[int]bool
	blockToolIndex map[int]int
}

func newAnthropicBlockTracker() *anthropicBlockTracker {
	return &anthropicBlockTracker{
		blockIsToolUse: make(map[int]bool),
		blockToolIndex: make(map[int]int),
	}
}

func parseAnthropicSSEStream(ctx context.Context, reader io.Reader, ch chan<- StreamEvent) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)

	bt := newAnthropicBlockTracker()
	var currentEventType string
	var finish FinishReason = FinishStop
	var usage Usage

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			currentEventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEventType {
		case "message_stop":
			trySend(ctx, ch, StreamEvent{Type: EvDone, FinishReason: finish, Usage: usage})
			return
		case "content_block_start":
			if !bt.handleBlockStart(ctx, ch, data) {
				return
			}
		case "content_block_delta":
			if !bt.handleBlockDelta(ctx, ch, data) {
				return
			}
		case "message_start":
			handleAnthropicMessageStart(&usage, data)
		case "message_delta":
			finish = handleAnthropicMessageDelta(&usage, data, bt.toolCallCount)
		case "ping", "content_block_stop":
		}

		currentEventType = ""
	}

	if err := scanner.Err(); err != nil {
		trySend(ctx, ch, StreamEvent{Type: EvError, Category: CategoryParse, Message: err.Error()})
		return
	}
	trySend(ctx, ch, StreamEvent{Type: EvDone, FinishReason: finish, Usage: usage})
}

func (bt *anthropicBlockTracker) handleBlockStart(ctx context.Context, ch chan<- StreamEvent, data string) bool {
	var evt anthropicContentBlockStart
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		log.Warn().Err(err).Msg("anthropic: parse content_block_start")
		return true
	}
	if evt.ContentBlock.Type != "tool_use" {
		return true
	}
	idx := bt.toolCallCount
	bt.toolCallCount++
	bt.blockIsToolUse[evt.Index] = true
	bt.blockToolIndex[evt.Index] = idx
	return trySend(ctx, ch, StreamEvent{
		Type: EvToolCallStart, ToolCallIndex: idx, ToolCallID: evt.ContentBlock.ID, ToolCallName: evt.ContentBlock.Name,
	})
}

func (bt *anthropicBlockTracker) handleBlockDelta(ctx context.Context, ch chan<- StreamEvent, data string) bool {
	var evt anthropicContentBlockDelta
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		log.Warn().Err(err).Msg("anthropic: parse content_block_delta")
		return true
	}
	switch evt.Delta.Type {
	case "text_delta":
		if evt.Delta.Text != "" {
			return trySend(ctx, ch, StreamEvent{Type: EvTextDelta, Text: evt.Delta.Text})
		}
	case "thinking_delta":
		if evt.Delta.Thinking != "" {
			return trySend(ctx, ch, StreamEvent{Type: EvThinkingDelta, Text: evt.Delta.Thinking})
		}
	case "input_json_delta":
		if evt.Delta.PartialJSON != "" && bt.blockIsToolUse[evt.Index] {
			return trySend(ctx, ch, StreamEvent{
				Type: EvToolCallDelta, ToolCallIndex: bt.blockToolIndex[evt.Index], ToolCallArgsDelta: evt.Delta.PartialJSON,
			})
		}
	}
	return true
}

func handleAnthropicMessageStart(usage *Usage, data string) {
	var ms anthropicMessageStart
	if err := json.Unmarshal([]byte(data), &ms); err != nil {
		return
	}
	usage.InputTokens = ms.Message.Usage.InputTokens
	usage.OutputTokens = ms.Message.Usage.OutputTokens
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
}

func handleAnthropicMessageDelta(usage *Usage, data string, toolCalls int) FinishReason {
	var md anthropicMessageDelta
	if err := json.Unmarshal([]byte(data), &md); err != nil {
		return FinishStop
	}
	if md.Usage.OutputTokens > 0 {
		usage.OutputTokens = md.Usage.OutputTokens
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	switch md.Delta.StopReason {
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	case "", "end_turn", "stop_sequence":
		if toolCalls > 0 {
			return FinishToolCalls
		}
		return FinishStop
	default:
		return FinishUnknown
	}
}

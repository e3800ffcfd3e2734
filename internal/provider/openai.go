package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIProvider implements Provider against the Chat Completions API. The
// same wire shape serves OpenAI-compatible endpoints (vLLM, Ollama's OpenAI
// shim) by pointing Endpoint at a different base URL.
type OpenAIProvider struct {
	model    string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewOpenAI constructs an OpenAI-compatible provider for the given model.
func NewOpenAI(model, endpoint, apiKey string) *OpenAIProvider {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	return &OpenAIProvider{model: model, endpoint: endpoint, apiKey: apiKey, client: &http.Client{}}
}

func (p *OpenAIProvider) Name() string { return "openai" }
func (p *OpenAIProvider) Close() error { return nil }
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.model}}, nil
}

// Wire types.

type chatMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCalls  []chatToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

type chatToolDef struct {
	Type     string          `json:"type"` // "function"
	Function chatFunctionDef `json:"function"`
}

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	Stream          bool          `json:"stream"`
	StreamOptions   *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
	Tools           []chatToolDef `json:"tools,omitempty"`
	ToolChoice      interface{}   `json:"tool_choice,omitempty"`
	MaxTokens       int           `json:"max_completion_tokens,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
}

type chatNamedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			Reasoning string         `json:"reasoning_content"`
			ToolCalls []chatToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toChatMessages(messages []Message, system string) []chatMessage {
	var out []chatMessage
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			for _, b := range m.Blocks {
				if b.Type == BlockText {
					out = append(out, chatMessage{Role: "system", Content: b.Text})
				}
			}
		case "tool":
			for _, b := range m.Blocks {
				if b.Type == BlockToolResult {
					out = append(out, chatMessage{Role: "tool", Content: b.ToolResultText, ToolCallID: b.ToolResultCallID})
				}
			}
		case "assistant":
			cm := chatMessage{Role: "assistant"}
			for _, b := range m.Blocks {
				switch b.Type {
				case BlockText:
					cm.Content += b.Text
				case BlockToolCall:
					args := b.ToolCallArgsJSON
					if args == "" {
						args = "{}"
					}
					cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
						ID: b.ToolCallID, Type: "function",
						Function: chatToolCallFunc{Name: b.ToolCallName, Arguments: args},
					})
				}
			}
			out = append(out, cm)
		default:
			var text strings.Builder
			for _, b := range m.Blocks {
				if b.Type == BlockText {
					text.WriteString(b.Text)
				}
			}
			out = append(out, chatMessage{Role: m.Role, Content: text.String()})
		}
	}
	return out
}

func toChatTools(tools []Tool) []chatToolDef {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatToolDef, len(tools))
	for i, t := range tools {
		out[i] = chatToolDef{Type: "function", Function: chatFunctionDef{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters, Strict: t.Strict,
		}}
	}
	return out
}

func toChatToolChoice(tc ToolChoice) interface{} {
	switch tc.Mode {
	case ToolChoiceNone:
		return "none"
	case ToolChoiceRequired:
		return "required"
	case ToolChoiceRequiredName:
		c := chatNamedToolChoice{Type: "function"}
		c.Function.Name = tc.Name
		return c
	default:
		return "auto"
	}
}

// openaiReasoningEffortTable maps a canonical thinking level to the
// per-reasoning-model effort string. Non-reasoning models ignore this field.
var openaiReasoningEffortTable = map[ThinkingLevel]string{
	ThinkingNone:   "minimal",
	ThinkingLow:    "low",
	ThinkingMedium: "medium",
	ThinkingHigh:   "high",
}

func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4") || strings.Contains(model, "gpt-5")
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body := chatRequest{
		Model:      p.model,
		Messages:   toChatMessages(req.Messages, req.System),
		Stream:     true,
		Tools:      toChatTools(req.Tools),
		ToolChoice: toChatToolChoice(req.ToolChoice),
		MaxTokens:  req.MaxOutputTokens,
	}
	body.StreamOptions = &struct {
		IncludeUsage bool `json:"include_usage"`
	}{IncludeUsage: true}

	if isReasoningModel(p.model) {
		body.ReasoningEffort = openaiReasoningEffortTable[req.Thinking.Level]
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Category: CategoryInvalidArgument, Provider: p.Name(), Message: "marshal request", Cause: err}
	}

	ch := make(chan StreamEvent, 64)
	go p.stream(ctx, payload, ch)
	return ch, nil
}

func (p *OpenAIProvider) stream(ctx context.Context, payload []byte, ch chan<- StreamEvent) {
	defer close(ch)

	cfg := httpRequestConfig{
		Method: http.MethodPost,
		URL:    p.endpoint,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Accept":        "text/event-stream",
			"Authorization": "Bearer " + p.apiKey,
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
		trySend(ctx, ch, classifyOpenAIHTTPError(status, body))
		return
	}

	trySend(ctx, ch, StreamEvent{Type: EvStart, Model: p.model})
	parseOpenAISSEStream(ctx, body, ch)
}

func classifyOpenAIHTTPError(status int, body io.Reader) StreamEvent {
	data, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	var eb chatErrorBody
	_ = json.Unmarshal(data, &eb)

	cat := CategoryUnknown
	switch {
	case eb.Error.Code == "content_filter":
		cat = CategoryContentFilter
	case status == http.StatusUnauthorized:
		cat = CategoryAuth
	case status == http.StatusTooManyRequests:
		cat = CategoryRateLimit
	case status == http.StatusNotFound:
		cat = CategoryNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
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

// toolCallAccumulator records, by tool-call index, which tool calls have
// already emitted their EvToolCallStart; argument deltas are forwarded as
// they arrive, not accumulated here.
type toolCallAccumulator struct {
	started map[int]bool
}

func parseOpenAISSEStream(ctx context.Context, reader io.Reader, ch chan<- StreamEvent) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)

	acc := &toolCallAccumulator{started: make(map[int]bool)}
	finish := FinishStop
	usage := Usage{}
	sawToolCalls := false

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if chunk.Usage != nil {
			usage = Usage{
				InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens: chunk.Usage.TotalTokens,
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if !trySend(ctx, ch, StreamEvent{Type: EvTextDelta, Text: choice.Delta.Content}) {
				return
			}
		}
		if choice.Delta.Reasoning != "" {
			if !trySend(ctx, ch, StreamEvent{Type: EvThinkingDelta, Text: choice.Delta.Reasoning}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			sawToolCalls = true
			if !acc.started[tc.Index] {
				acc.started[tc.Index] = true
				if !trySend(ctx, ch, StreamEvent{
					Type: EvToolCallStart, ToolCallIndex: tc.Index, ToolCallID: tc.ID, ToolCallName: tc.Function.Name,
				}) {
					return
				}
			}
			if tc.Function.Arguments != "" {
				if !trySend(ctx, ch, StreamEvent{Type: EvToolCallDelta, ToolCallIndex: tc.Index, ToolCallArgsDelta: tc.Function.Arguments}) {
					return
				}
			}
		}

		if choice.FinishReason != "" {
			finish = mapOpenAIFinishReason(choice.FinishReason, sawToolCalls)
		}
	}

	for idx := range acc.started {
		trySend(ctx, ch, StreamEvent{Type: EvToolCallDone, ToolCallIndex: idx})
	}

	if err := scanner.Err(); err != nil {
		trySend(ctx, ch, StreamEvent{Type: EvError, Category: CategoryParse, Message: err.Error()})
		return
	}
	trySend(ctx, ch, StreamEvent{Type: EvDone, FinishReason: finish, Usage: usage})
}

func mapOpenAIFinishReason(reason string, sawToolCalls bool) FinishReason {
	switch reason {
	case "tool_calls":
		return FinishToolCalls
	case "stop":
		if sawToolCalls {
			return FinishToolCalls
		}
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}

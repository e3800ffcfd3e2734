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

// GoogleProvider implements Provider against the Gemini generateContent
// streaming API (streamGenerateContent?alt=sse).
type GoogleProvider struct {
	model    string
	endpoint string
	apiKey   string
	client   *http.Client

	lastThoughtSignature string // re-attached to the next request (Gemini 3 only)
}

// NewGoogle constructs a Google provider for the given model.
func NewGoogle(model, endpoint, apiKey string) *GoogleProvider {
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:streamGenerateContent", model)
	}
	return &GoogleProvider{model: model, endpoint: endpoint, apiKey: apiKey, client: &http.Client{}}
}

func (p *GoogleProvider) Name() string { return "google" }
func (p *GoogleProvider) Close() error { return nil }
func (p *GoogleProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.model}}, nil
}

// Gemini wire types.

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResponse `json:"functionResponse,omitempty"`
	Thought          bool                `json:"thought,omitempty"`
	ThoughtSignature string              `json:"thoughtSignature,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFuncResponse struct {
	Name     string           `json:"name"`
	Response geminiRespWrapper `json:"response"`
}

type geminiRespWrapper struct {
	Content string `json:"content"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" | "model"
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiToolConfig struct {
	FunctionCallingConfig struct {
		Mode string `json:"mode"` // NONE | AUTO | ANY
	} `json:"functionCallingConfig"`
}

type geminiThinkingConfig struct {
	ThinkingBudget  *int   `json:"thinkingBudget,omitempty"`
	Level           string `json:"level,omitempty"` // Gemini 3: minimal|low|medium|high
	IncludeThoughts bool   `json:"includeThoughts,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiStreamChunk struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// toGeminiContents converts canonical messages to Gemini `contents`. Tool
// results become role="function" parts (role="user" for the Gemini 3 wire
// shape is handled by callers that set useUserToolRole).
func toGeminiContents(messages []Message, useUserToolRole bool) []geminiContent {
	var out []geminiContent
	for _, m := range messages {
		switch m.Role {
		case "system":
			continue
		case "tool":
			role := "function"
			if useUserToolRole {
				role = "user"
			}
			var parts []geminiPart
			for _, b := range m.Blocks {
				if b.Type != BlockToolResult {
					continue
				}
				parts = append(parts, geminiPart{
					FunctionResponse: &geminiFuncResponse{
						Name:     b.ToolResultCallID,
						Response: geminiRespWrapper{Content: b.ToolResultText},
					},
				})
			}
			out = append(out, geminiContent{Role: role, Parts: parts})
		default:
			role := "user"
			if m.Role == "assistant" {
				role = "model"
			}
			var parts []geminiPart
			for _, b := range m.Blocks {
				switch b.Type {
				case BlockText:
					if b.Text != "" {
						parts = append(parts, geminiPart{Text: b.Text})
					}
				case BlockToolCall:
					parts = append(parts, geminiPart{
						FunctionCall:     &geminiFunctionCall{Name: b.ToolCallName, Args: json.RawMessage(b.ToolCallArgsJSON)},
						ThoughtSignature: b.ThoughtSignature,
					})
				}
			}
			out = append(out, geminiContent{Role: role, Parts: parts})
		}
	}
	return out
}

func toGeminiTools(tools []Tool) []geminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]geminiFunctionDecl, len(tools))
	for i, t := range tools {
		decls[i] = geminiFunctionDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  stripAdditionalProperties(t.Parameters),
		}
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

// stripAdditionalProperties removes the additionalProperties key, which the
// Gemini function-declaration schema validator rejects.
func stripAdditionalProperties(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return schema
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(schema, &m); err != nil {
		return schema
	}
	delete(m, "additionalProperties")
	out, err := json.Marshal(m)
	if err != nil {
		return schema
	}
	return out
}

func toGeminiToolConfig(tc ToolChoice) *geminiToolConfig {
	cfg := &geminiToolConfig{}
	switch tc.Mode {
	case ToolChoiceNone:
		cfg.FunctionCallingConfig.Mode = "NONE"
	case ToolChoiceRequired, ToolChoiceRequiredName:
		cfg.FunctionCallingConfig.Mode = "ANY"
	default:
		cfg.FunctionCallingConfig.Mode = "AUTO"
	}
	return cfg
}

// geminiThinkingConfigFor builds the thinkingConfig block. Gemini 2.5 models
// use a token budget; Gemini 3 models use a level string; 2.5 Flash-Lite
// cannot disable thinking at all, so ThinkingNone is silently upgraded to low.
func geminiThinkingConfigFor(model string, t Thinking) *geminiThinkingConfig {
	isGemini3 := strings.HasPrefix(model, "gemini-3")
	if isGemini3 {
		level := "low"
		switch t.Level {
		case ThinkingNone:
			level = "minimal"
		case ThinkingLow:
			level = "low"
		case ThinkingMedium:
			level = "medium"
		case ThinkingHigh:
			level = "high"
		}
		return &geminiThinkingConfig{Level: level, IncludeThoughts: t.IncludeSummary}
	}

	level := t.Level
	if strings.Contains(model, "flash-lite") && level == ThinkingNone {
		level = ThinkingLow
	}
	if level == ThinkingNone {
		zero := 0
		return &geminiThinkingConfig{ThinkingBudget: &zero}
	}
	budgets := map[ThinkingLevel]int{ThinkingLow: 1024, ThinkingMedium: 8192, ThinkingHigh: 24576}
	b := budgets[level]
	return &geminiThinkingConfig{ThinkingBudget: &b, IncludeThoughts: t.IncludeSummary}
}

func (p *GoogleProvider) ChatStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	isGemini3 := strings.HasPrefix(p.model, "gemini-3")
	contents := toGeminiContents(req.Messages, isGemini3)

	// Re-attach the most recent thought signature to the first assistant
	// message's first part, per the Gemini 3 thought-continuity contract.
	if isGemini3 && p.lastThoughtSignature != "" {
		for i := range contents {
			if contents[i].Role == "model" && len(contents[i].Parts) > 0 {
				contents[i].Parts[0].ThoughtSignature = p.lastThoughtSignature
				break
			}
		}
	}

	body := geminiRequest{
		Contents:   contents,
		Tools:      toGeminiTools(req.Tools),
		ToolConfig: toGeminiToolConfig(req.ToolChoice),
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: req.MaxOutputTokens,
			ThinkingConfig:  geminiThinkingConfigFor(p.model, req.Thinking),
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Category: CategoryInvalidArgument, Provider: p.Name(), Message: "marshal request", Cause: err}
	}

	ch := make(chan StreamEvent, 64)
	go p.stream(ctx, payload, ch)
	return ch, nil
}

func (p *GoogleProvider) stream(ctx context.Context, payload []byte, ch chan<- StreamEvent) {
	defer close(ch)

	url := fmt.Sprintf("%s?alt=sse&key=%s", p.endpoint, p.apiKey)
	cfg := httpRequestConfig{
		Method:  http.MethodPost,
		URL:     url,
		Headers: map[string]string{"Content-Type": "application/json", "Accept": "text/event-stream"},
		Body:    payload,
	}

	body, status, err := httpDoSSE(ctx, p.client, cfg)
	if err != nil {
		trySend(ctx, ch, classifyTransportError(err))
		return
	}
	defer body.Close()

	if status < 200 || status >= 300 {
		trySend(ctx, ch, classifyGoogleHTTPError(status, body))
		return
	}

	trySend(ctx, ch, StreamEvent{Type: EvStart, Model: p.model})
	p.parseStream(ctx, body, ch)
}

func classifyGoogleHTTPError(status int, body io.Reader) StreamEvent {
	data, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	var eb geminiErrorBody
	_ = json.Unmarshal(data, &eb)

	cat := CategoryUnknown
	switch {
	case eb.Error.Status == "RESOURCE_EXHAUSTED" || status == http.StatusTooManyRequests:
		cat = CategoryRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		cat = CategoryAuth
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

// parseStream reads Gemini's alt=sse event stream: each "data: {json}" line
// carries one GenerateContentResponse chunk.
func (p *GoogleProvider) parseStream(ctx context.Context, reader io.Reader, ch chan<- StreamEvent) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	toolIndex := 0
	finish := FinishStop
	usage := Usage{}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if chunk.UsageMetadata.TotalTokenCount > 0 {
			usage = Usage{
				InputTokens:    chunk.UsageMetadata.PromptTokenCount,
				OutputTokens:   chunk.UsageMetadata.CandidatesTokenCount,
				ThinkingTokens: chunk.UsageMetadata.ThoughtsTokenCount,
				TotalTokens:    chunk.UsageMetadata.TotalTokenCount,
			}
		}

		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]

		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				if part.ThoughtSignature != "" {
					p.lastThoughtSignature = part.ThoughtSignature
				}
				if !trySend(ctx, ch, StreamEvent{
					Type: EvToolCallStart, ToolCallIndex: toolIndex,
					ToolCallID: fmt.Sprintf("call_%d", toolIndex), ToolCallName: part.FunctionCall.Name,
					ThoughtSignature: part.ThoughtSignature,
				}) {
					return
				}
				argsJSON := "{}"
				if len(part.FunctionCall.Args) > 0 {
					argsJSON = string(part.FunctionCall.Args)
				}
				if !trySend(ctx, ch, StreamEvent{Type: EvToolCallDelta, ToolCallIndex: toolIndex, ToolCallArgsDelta: argsJSON}) {
					return
				}
				if !trySend(ctx, ch, StreamEvent{Type: EvToolCallDone, ToolCallIndex: toolIndex}) {
					return
				}
				toolIndex++
			case part.Thought:
				if part.Text != "" && !trySend(ctx, ch, StreamEvent{Type: EvThinkingDelta, Text: part.Text}) {
					return
				}
			case part.Text != "":
				if !trySend(ctx, ch, StreamEvent{Type: EvTextDelta, Text: part.Text}) {
					return
				}
			}
		}

		if cand.FinishReason != "" {
			finish = mapGeminiFinishReason(cand.FinishReason, toolIndex > 0)
		}
	}

	if err := scanner.Err(); err != nil {
		trySend(ctx, ch, StreamEvent{Type: EvError, Category: CategoryParse, Message: err.Error()})
		return
	}
	trySend(ctx, ch, StreamEvent{Type: EvDone, FinishReason: finish, Usage: usage})
}

func mapGeminiFinishReason(reason string, hasToolCalls bool) FinishReason {
	if hasToolCalls {
		return FinishToolCalls
	}
	switch reason {
	case "STOP":
		return FinishStop
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}

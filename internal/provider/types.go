// Package provider defines the canonical, provider-agnostic message model and
// the adapters that translate it to and from each LLM provider's wire format.
package provider

import "encoding/json"

// ThinkingLevel is the canonical level of a provider's extended-reasoning feature.
type ThinkingLevel int

const (
	ThinkingNone ThinkingLevel = iota
	ThinkingLow
	ThinkingMedium
	ThinkingHigh
)

// Thinking bundles the canonical reasoning-effort setting carried on a Request.
type Thinking struct {
	Level          ThinkingLevel
	IncludeSummary bool
}

// ToolChoice selects whether and how the model must call a tool.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string // set only when Mode == ToolChoiceRequiredName
}

// ToolChoiceMode enumerates the ways a request can constrain tool calling.
type ToolChoiceMode int

const (
	ToolChoiceAuto ToolChoiceMode = iota
	ToolChoiceNone
	ToolChoiceRequired
	// ToolChoiceRequiredName forces a specific named tool (OpenAI-style).
	ToolChoiceRequiredName
)

// Tool is a callable function definition offered to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
	Strict      bool
}

// ContentBlockType discriminates the variants of ContentBlock. Implemented as
// a tagged union: callers must switch on Type and never infer the variant
// from which fields happen to be set.
type ContentBlockType int

const (
	BlockText ContentBlockType = iota
	BlockThinking
	BlockToolCall
	BlockToolResult
)

// ContentBlock is one element of a message's content. Exactly one of the
// per-variant field groups is meaningful, selected by Type.
type ContentBlock struct {
	Type ContentBlockType

	// BlockText / BlockThinking
	Text string

	// BlockToolCall
	ToolCallID       string
	ToolCallName     string
	ToolCallArgsJSON string // syntactically valid JSON
	ThoughtSignature string // opaque, re-attached verbatim by the Google adapter

	// BlockToolResult
	ToolResultCallID string
	ToolResultText   string
	ToolResultIsError bool
}

// TextBlock constructs a BlockText content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ThinkingBlock constructs a BlockThinking content block.
func ThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Text: text}
}

// ToolCallBlock constructs a BlockToolCall content block.
func ToolCallBlock(id, name, argsJSON string) ContentBlock {
	return ContentBlock{Type: BlockToolCall, ToolCallID: id, ToolCallName: name, ToolCallArgsJSON: argsJSON}
}

// ToolResultBlock constructs a BlockToolResult content block.
func ToolResultBlock(callID, text string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolResultCallID: callID, ToolResultText: text, ToolResultIsError: isError}
}

// Message is one turn: a role plus an ordered sequence of content blocks, and
// opaque per-message metadata an adapter may stash and later re-read (for
// example a Gemini 3 thought signature).
type Message struct {
	Role     string // "user" | "assistant" | "system" | "tool"
	Blocks   []ContentBlock
	Metadata json.RawMessage
}

// Request bundles everything needed to ask a model for a completion.
type Request struct {
	Model         string
	System        string
	Messages      []Message
	Tools         []Tool
	ToolChoice    ToolChoice
	MaxOutputTokens int
	Thinking      Thinking
}

// FinishReason is why the model stopped producing output this turn.
type FinishReason int

const (
	FinishStop FinishReason = iota
	FinishLength
	FinishToolCalls
	FinishContentFilter
	FinishError
	FinishUnknown
)

func (f FinishReason) String() string {
	switch f {
	case FinishStop:
		return "stop"
	case FinishLength:
		return "length"
	case FinishToolCalls:
		return "tool_calls"
	case FinishContentFilter:
		return "content_filter"
	case FinishError:
		return "error"
	default:
		return "unknown"
	}
}

// Usage is token accounting for one response.
type Usage struct {
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	ThinkingTokens int
}

// Response is the canonical result of a completed (non-streaming view of a)
// model turn.
type Response struct {
	Model        string
	FinishReason FinishReason
	Usage        Usage
	Blocks       []ContentBlock
}

// StreamEventType discriminates StreamEvent variants.
type StreamEventType int

const (
	EvStart StreamEventType = iota
	EvTextDelta
	EvThinkingDelta
	EvToolCallStart
	EvToolCallDelta
	EvToolCallDone
	EvDone
	EvError
)

// StreamEvent is one tagged notification emitted while a response streams.
// Deltas for one ToolCallIndex never interleave with deltas for another;
// exactly one EvDone or EvError ends the sequence.
type StreamEvent struct {
	Type StreamEventType

	Model string // EvStart

	Text string // EvTextDelta, EvThinkingDelta

	ToolCallIndex     int    // EvToolCallStart, EvToolCallDelta, EvToolCallDone
	ToolCallID        string // EvToolCallStart
	ToolCallName      string // EvToolCallStart
	ToolCallArgsDelta string // EvToolCallDelta
	ThoughtSignature  string // EvToolCallStart, optional

	FinishReason FinishReason // EvDone
	Usage        Usage        // EvDone

	Category ErrorCategory // EvError
	Message  string        // EvError
}

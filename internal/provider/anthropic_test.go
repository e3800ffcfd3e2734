package provider

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAnthropicMessages_HoistsSystemAndCaches(t *testing.T) {
	messages := []Message{
		{Role: "system", Blocks: []ContentBlock{TextBlock("be terse")}},
		{Role: "user", Blocks: []ContentBlock{TextBlock("hi")}},
	}
	system, msgs := toAnthropicMessages(messages)

	require.Len(t, system, 1)
	assert.Equal(t, "be terse", system[0].Text)
	require.NotNil(t, system[0].CacheControl)
	assert.Equal(t, "ephemeral", system[0].CacheControl.Type)

	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestToAnthropicMessages_ToolResultBecomesUserBlock(t *testing.T) {
	messages := []Message{
		{Role: "tool", Blocks: []ContentBlock{ToolResultBlock("call_1", "42", false)}},
	}
	_, msgs := toAnthropicMessages(messages)

	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	blocks, ok := msgs[0].Content.([]interface{})
	require.True(t, ok)
	require.Len(t, blocks, 1)
	block := blocks[0].(anthropicToolResultBlock)
	assert.Equal(t, "call_1", block.ToolUseID)
	assert.Equal(t, "42", block.Content)
}

func TestToAnthropicMessages_AssistantToolCall(t *testing.T) {
	messages := []Message{
		{Role: "assistant", Blocks: []ContentBlock{
			TextBlock("let me check"),
			ToolCallBlock("call_1", "glob", `{"pattern":"*.go"}`),
		}},
	}
	_, msgs := toAnthropicMessages(messages)

	require.Len(t, msgs, 1)
	blocks := msgs[0].Content.([]interface{})
	require.Len(t, blocks, 2)
	assert.Equal(t, anthropicTextBlock{Type: "text", Text: "let me check"}, blocks[0])
	tb := blocks[1].(anthropicToolUseBlock)
	assert.Equal(t, "glob", tb.Name)
}

func TestToAnthropicTools_MarksLastCacheControl(t *testing.T) {
	tools := []Tool{
		{Name: "a", Parameters: json.RawMessage(`{}`)},
		{Name: "b", Parameters: json.RawMessage(`{}`)},
	}
	out := toAnthropicTools(tools)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].CacheControl)
	require.NotNil(t, out[1].CacheControl)
}

func TestParseAnthropicSSEStream_TextAndToolCall(t *testing.T) {
	stream := "" +
		"event: message_start\n" +
		"data: {\"message\":{\"usage\":{\"input_tokens\":10}}}\n\n" +
		"event: content_block_start\n" +
		"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\n" +
		"event: content_block_start\n" +
		"data: {\"type\":\"content_block_start\",\"index\":1,\"content_block\":{\"type\":\"tool_use\",\"id\":\"call_1\",\"name\":\"glob\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":1,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{}\"}}\n\n" +
		"event: message_delta\n" +
		"data: {\"delta\":{\"stop_reason\":\"tool_use\"},\"usage\":{\"output_tokens\":5}}\n\n" +
		"event: message_stop\n" +
		"data: {}\n\n"

	ch := make(chan StreamEvent, 64)
	parseAnthropicSSEStream(context.Background(), strings.NewReader(stream), ch)
	close(ch)

	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EvDone, last.Type)
	assert.Equal(t, FinishToolCalls, last.FinishReason)

	var sawText, sawToolStart bool
	for _, ev := range events {
		if ev.Type == EvTextDelta && ev.Text == "hi" {
			sawText = true
		}
		if ev.Type == EvToolCallStart && ev.ToolCallID == "call_1" {
			sawToolStart = true
		}
	}
	assert.True(t, sawText)
	assert.True(t, sawToolStart)
}

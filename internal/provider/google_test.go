package provider

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGeminiContents_ToolRoleVariesByGeneration(t *testing.T) {
	messages := []Message{
		{Role: "tool", Blocks: []ContentBlock{ToolResultBlock("call_1", "ok", false)}},
	}

	out := toGeminiContents(messages, false)
	require.Len(t, out, 1)
	assert.Equal(t, "function", out[0].Role)

	out3 := toGeminiContents(messages, true)
	require.Len(t, out3, 1)
	assert.Equal(t, "user", out3[0].Role)
}

func TestStripAdditionalProperties(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}},"additionalProperties":false}`)
	out := stripAdditionalProperties(schema)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	_, present := m["additionalProperties"]
	assert.False(t, present)
	_, present = m["properties"]
	assert.True(t, present)
}

func TestGeminiThinkingConfigFor_Gemini3UsesLevel(t *testing.T) {
	cfg := geminiThinkingConfigFor("gemini-3-pro", Thinking{Level: ThinkingNone})
	require.NotNil(t, cfg)
	assert.Equal(t, "minimal", cfg.Level)
	assert.Nil(t, cfg.ThinkingBudget)
}

func TestGeminiThinkingConfigFor_FlashLiteCannotFullyDisable(t *testing.T) {
	cfg := geminiThinkingConfigFor("gemini-2.5-flash-lite", Thinking{Level: ThinkingNone})
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.ThinkingBudget)
	assert.Equal(t, 1024, *cfg.ThinkingBudget)
}

func TestGeminiThinkingConfigFor_TokenBudgetModels(t *testing.T) {
	cfg := geminiThinkingConfigFor("gemini-2.5-pro", Thinking{Level: ThinkingHigh})
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.ThinkingBudget)
	assert.Equal(t, 24576, *cfg.ThinkingBudget)
}

func TestMapGeminiFinishReason(t *testing.T) {
	assert.Equal(t, FinishToolCalls, mapGeminiFinishReason("STOP", true))
	assert.Equal(t, FinishStop, mapGeminiFinishReason("STOP", false))
	assert.Equal(t, FinishLength, mapGeminiFinishReason("MAX_TOKENS", false))
	assert.Equal(t, FinishContentFilter, mapGeminiFinishReason("RECITATION", false))
	assert.Equal(t, FinishUnknown, mapGeminiFinishReason("WEIRD", false))
}

func TestGoogleParseStream_TextToolCallAndUsage(t *testing.T) {
	stream := "" +
		`data: {"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}` + "\n\n" +
		`data: {"candidates":[{"content":{"parts":[{"functionCall":{"name":"glob","args":{"pattern":"*.go"}},"thoughtSignature":"sig1"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":4,"totalTokenCount":7}}` + "\n\n"

	p := NewGoogle("gemini-3-pro", "", "key")
	ch := make(chan StreamEvent, 64)
	p.parseStream(context.Background(), strings.NewReader(stream), ch)
	close(ch)

	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EvDone, last.Type)
	assert.Equal(t, FinishToolCalls, last.FinishReason)
	assert.Equal(t, 7, last.Usage.TotalTokens)
	assert.Equal(t, "sig1", p.lastThoughtSignature)

	var sawToolStart bool
	for _, ev := range events {
		if ev.Type == EvToolCallStart && ev.ToolCallName == "glob" {
			sawToolStart = true
		}
	}
	assert.True(t, sawToolStart)
}

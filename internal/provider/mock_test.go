package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectStream(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestMockProvider_TextTurn(t *testing.T) {
	p := NewMock("mock", MockTurn{Text: "hello", FinishReason: FinishStop})
	ch, err := p.ChatStream(context.Background(), Request{})
	require.NoError(t, err)

	events := collectStream(t, ch)
	require.Len(t, events, 3) // start, text, done
	assert.Equal(t, EvStart, events[0].Type)
	assert.Equal(t, EvTextDelta, events[1].Type)
	assert.Equal(t, "hello", events[1].Text)
	assert.Equal(t, EvDone, events[2].Type)
	assert.Equal(t, FinishStop, events[2].FinishReason)
}

func TestMockProvider_ToolCallTurnUpgradesFinish(t *testing.T) {
	p := NewMock("mock", MockTurn{
		ToolCalls: []MockToolCall{{ID: "call_1", Name: "glob", ArgsJSON: `{"pattern":"*.go"}`}},
	})
	ch, err := p.ChatStream(context.Background(), Request{})
	require.NoError(t, err)

	events := collectStream(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, EvDone, last.Type)
	assert.Equal(t, FinishToolCalls, last.FinishReason)

	var sawStart, sawDelta, sawDone bool
	for _, ev := range events {
		switch ev.Type {
		case EvToolCallStart:
			sawStart = ev.ToolCallID == "call_1"
		case EvToolCallDelta:
			sawDelta = ev.ToolCallArgsDelta == `{"pattern":"*.go"}`
		case EvToolCallDone:
			sawDone = true
		}
	}
	assert.True(t, sawStart)
	assert.True(t, sawDelta)
	assert.True(t, sawDone)
}

func TestMockProvider_ErrorTurn(t *testing.T) {
	p := NewMock("mock", MockTurn{Err: &ProviderError{Category: CategoryRateLimit, Message: "slow down"}})
	ch, err := p.ChatStream(context.Background(), Request{})
	require.NoError(t, err)

	events := collectStream(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, EvError, last.Type)
	assert.Equal(t, CategoryRateLimit, last.Category)
}

func TestMockProvider_RepliesLastTurnOnOverrun(t *testing.T) {
	p := NewMock("mock", MockTurn{Text: "first"}, MockTurn{Text: "second"})

	var last []StreamEvent
	for i := 0; i < 3; i++ {
		ch, err := p.ChatStream(context.Background(), Request{})
		require.NoError(t, err)
		last = collectStream(t, ch)
	}
	assert.Equal(t, 3, p.call)
	require.Len(t, last, 3) // start, text, done
	assert.Equal(t, "second", last[1].Text)
}

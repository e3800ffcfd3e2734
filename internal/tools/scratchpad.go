package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ikigai-cli/ikigai/internal/provider"
)

// ScratchpadStore holds one agent-local plan per agent ID — a todo list the
// model maintains across a long tool-calling turn. The recitation reminder
// prefers this content, when non-empty, over the raw original user request.
type ScratchpadStore struct {
	mu      sync.RWMutex
	content map[string]string
}

// NewScratchpadStore returns an empty ScratchpadStore.
func NewScratchpadStore() *ScratchpadStore {
	return &ScratchpadStore{content: make(map[string]string)}
}

// Content returns the plan currently recorded for agentID, or "" if none.
func (s *ScratchpadStore) Content(agentID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content[agentID]
}

// Set replaces the plan recorded for agentID.
func (s *ScratchpadStore) Set(agentID, plan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[agentID] = plan
}

// NewScratchpadTool returns the scratchpad_write tool: it lets the model
// record or replace its own running plan, keyed by the calling agent's ID
// (threaded in via WithAgentID). There is no scratchpad_read tool — the
// plan surfaces to the model automatically in the periodic recitation
// reminder rather than through a separate read call.
func NewScratchpadTool(store *ScratchpadStore) Tool {
	return Tool{
		Definition: provider.Tool{
			Name:        "scratchpad_write",
			Description: "Write or replace your running plan for this task: what you're doing, what's left, and any notes to remember. Shown back to you periodically as a reminder. Call this whenever your plan changes.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"plan": {"type": "string", "description": "The full plan text, replacing whatever was written before"}
				},
				"required": ["plan"]
			}`),
		},
		Handler: scratchpadHandler(store),
	}
}

type scratchpadArgs struct {
	Plan string `json:"plan"`
}

func scratchpadHandler(store *ScratchpadStore) Handler {
	return func(ctx context.Context, argsJSON json.RawMessage) (string, bool) {
		var args scratchpadArgs
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return errorf("invalid arguments: %v", err)
		}
		if args.Plan == "" {
			return errorf("plan is required")
		}

		agentID := agentIDFrom(ctx)
		if agentID == "" {
			return errorf("scratchpad_write: no agent identity on context")
		}

		store.Set(agentID, args.Plan)
		return "plan recorded", false
	}
}

package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ikigai-cli/ikigai/internal/constants"
)

// Tree is the in-memory registry of every live agent in the session: the
// root and every descendant reachable by fork (killed agents are removed
// from it). It owns UUID-prefix
// resolution, fork, and cascade-kill — all pure in-memory operations. A
// caller that needs these durable wraps Tree's mutations in a store
// transaction; Tree itself never talks to storage.
type Tree struct {
	mu      sync.Mutex
	agents  []*Agent
	current string // ID of the agent currently in focus
}

// NewTree creates a tree with a single root agent in focus.
func NewTree(providerName, modelName string) *Tree {
	root := New(NewID(), "", providerName, modelName)
	return &Tree{agents: []*Agent{root}, current: root.ID}
}

// NewID generates a fresh agent identifier.
func NewID() string {
	return uuid.NewString()
}

// Current returns the agent currently in focus.
func (t *Tree) Current() *Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.find(t.current)
}

// All returns every agent in the tree, in registration order. Killed agents
// are no longer in the tree, so every agent returned is live.
func (t *Tree) All() []*Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Agent, len(t.agents))
	copy(out, t.agents)
	return out
}

// find looks up an agent by exact ID. Caller must hold t.mu.
func (t *Tree) find(id string) *Agent {
	for _, a := range t.agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// add appends a new agent to the registry.
func (t *Tree) add(a *Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents = append(t.agents, a)
}

// remove deletes an agent from the registry by exact ID, clearing the
// current pointer if it was the removed agent.
func (t *Tree) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, a := range t.agents {
		if a.ID == id {
			t.agents = append(t.agents[:i], t.agents[i+1:]...)
			break
		}
	}
	if t.current == id {
		t.current = ""
	}
}

// ErrAmbiguousUUID is returned by Resolve when a prefix matches more than
// one agent and no exact match disambiguates it.
type ErrAmbiguousUUID struct {
	Prefix  string
	Matches int
}

func (e *ErrAmbiguousUUID) Error() string {
	return fmt.Sprintf("agent id prefix %q is ambiguous (%d matches)", e.Prefix, e.Matches)
}

// ErrUnknownAgent is returned by Resolve when no agent matches.
type ErrUnknownAgent struct{ Prefix string }

func (e *ErrUnknownAgent) Error() string {
	return fmt.Sprintf("no agent matching %q", e.Prefix)
}

// ErrPrefixTooShort is returned by Resolve for prefixes under
// constants.UUIDPrefixMinLength (4) characters — too short to be a
// meaningful disambiguator even if only one agent happens to match today.
type ErrPrefixTooShort struct{ Prefix string }

func (e *ErrPrefixTooShort) Error() string {
	return fmt.Sprintf("agent id prefix %q is too short (need at least 4 characters)", e.Prefix)
}

const minPrefixLength = constants.UUIDPrefixMinLength

// Resolve finds the agent named by a UUID or UUID prefix. An exact match
// always wins even if shorter prefixes of it would also match other
// agents; otherwise a unique prefix match wins; multiple prefix matches
// with no exact match is ambiguous.
func (t *Tree) Resolve(idOrPrefix string) (*Agent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(idOrPrefix) < minPrefixLength {
		return nil, &ErrPrefixTooShort{Prefix: idOrPrefix}
	}

	if exact := t.find(idOrPrefix); exact != nil {
		return exact, nil
	}

	var matches []*Agent
	for _, a := range t.agents {
		if strings.HasPrefix(a.ID, idOrPrefix) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &ErrUnknownAgent{Prefix: idOrPrefix}
	case 1:
		return matches[0], nil
	default:
		return nil, &ErrAmbiguousUUID{Prefix: idOrPrefix, Matches: len(matches)}
	}
}

// Ambiguous reports whether idOrPrefix matches more than one agent without
// an exact match resolving it — used by callers that want a yes/no check
// without handling Resolve's distinct error types.
func (t *Tree) Ambiguous(idOrPrefix string) bool {
	_, err := t.Resolve(idOrPrefix)
	var amb *ErrAmbiguousUUID
	return err != nil && asAmbiguous(err, &amb)
}

func asAmbiguous(err error, target **ErrAmbiguousUUID) bool {
	if e, ok := err.(*ErrAmbiguousUUID); ok {
		*target = e
		return true
	}
	return false
}

// Switch moves focus to the agent named by idOrPrefix.
func (t *Tree) Switch(idOrPrefix string) (*Agent, error) {
	a, err := t.Resolve(idOrPrefix)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.current = a.ID
	t.mu.Unlock()
	return a, nil
}

// Fork creates a new live child of parent, inheriting parent's conversation
// up to (and including) its current message count as the fork point, and
// switches focus to the child. The parent must not have a tool call
// in flight — callers are expected to have waited that out first (the
// sync-barrier /fork performs before forking).
func (t *Tree) Fork(parent *Agent) (*Agent, error) {
	if parent.HasRunningTool() {
		return nil, fmt.Errorf("agent %s: cannot fork while a tool call is running", parent.ID)
	}

	parentMessages := parent.Messages()
	child := New(NewID(), parent.ID, parent.ProviderName, parent.ModelName)
	child.Thinking = parent.Thinking
	child.ForkMessageID = len(parentMessages)
	child.SetConversation(parentMessages)

	t.add(child)
	t.mu.Lock()
	t.current = child.ID
	t.mu.Unlock()
	return child, nil
}

// collectDescendants recursively gathers every agent whose parent chain
// leads back to root, depth-first, mirroring the original's fixed-array
// victim collection without its size cap.
func (t *Tree) collectDescendants(rootID string) []*Agent {
	var victims []*Agent
	var walk func(id string)
	walk = func(id string) {
		for _, a := range t.agents {
			if a.ParentID == id {
				victims = append(victims, a)
				walk(a.ID)
			}
		}
	}
	walk(rootID)
	return victims
}

// Kill marks target and, if cascade is true, every descendant of target as
// dead, then removes them from the registry. If target is the currently
// focused agent, focus moves to its parent first (so the caller is never
// left with a dead agent in focus). Killing the root agent is refused.
//
// Kill mutates immediately; a caller that must persist the kill durably
// before committing to the in-memory change should use KillVictims followed
// by ApplyKill instead, so a failed persist leaves the tree untouched.
func (t *Tree) Kill(target *Agent, cascade bool) ([]*Agent, error) {
	victims, err := t.KillVictims(target, cascade)
	if err != nil {
		return nil, err
	}
	return t.ApplyKill(target, victims), nil
}

// KillVictims computes the victim set a Kill(target, cascade) call would
// remove, without mutating the tree or any agent. Refuses to name the root
// agent as a victim. Pair with ApplyKill once persistence (if any) has
// succeeded, so the in-memory tree is never mutated ahead of a durable
// commit.
func (t *Tree) KillVictims(target *Agent, cascade bool) ([]*Agent, error) {
	if target.IsRoot() {
		return nil, fmt.Errorf("cannot kill the root agent")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	victims := []*Agent{target}
	if cascade {
		victims = append(t.collectDescendants(target.ID), target)
	}
	return victims, nil
}

// ApplyKill marks every victim dead and removes it from the registry,
// moving focus to target's parent first if target was in focus. Callers
// that need the kill durable before mutating memory call KillVictims, then
// ApplyKill only after their own commit succeeds.
func (t *Tree) ApplyKill(target *Agent, victims []*Agent) []*Agent {
	t.mu.Lock()
	wasCurrent := t.current == target.ID
	parentID := target.ParentID
	t.mu.Unlock()

	for _, v := range victims {
		v.markDead()
		v.ForceIdle()
	}

	if wasCurrent {
		t.mu.Lock()
		t.current = parentID
		t.mu.Unlock()
	}

	for _, v := range victims {
		t.remove(v.ID)
	}

	return victims
}

// KillSelf kills the currently focused agent (and its descendants when
// cascade is true), refusing if it is the root. This is the no-argument form of /kill.
func (t *Tree) KillSelf(cascade bool) ([]*Agent, error) {
	cur := t.Current()
	if cur == nil {
		return nil, fmt.Errorf("no current agent")
	}
	return t.Kill(cur, cascade)
}

// Package repl implements the cooperative, single-threaded event loop that
// drives the whole terminal front-end: it reads the terminal byte stream,
// decodes it into actions, applies those actions to the current agent,
// steps every agent's in-flight request forward, renders one frame, and
// dispatches the slash commands that operate on the agent tree.
package repl

import (
	"context"
	"fmt"
	"time"

	"github.com/ikigai-cli/ikigai/internal/action"
	"github.com/ikigai-cli/ikigai/internal/agent"
	"github.com/ikigai-cli/ikigai/internal/config"
	"github.com/ikigai-cli/ikigai/internal/constants"
	"github.com/ikigai-cli/ikigai/internal/history"
	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/render"
	"github.com/ikigai-cli/ikigai/internal/scrolldetect"
	"github.com/ikigai-cli/ikigai/internal/store"
	"github.com/ikigai-cli/ikigai/internal/termio"
	"github.com/ikigai-cli/ikigai/internal/tools"
	"github.com/ikigai-cli/ikigai/internal/toolloop"
)

// Loop is the REPL: the agent tree, its providers and tools, and every
// piece of per-terminal state (decoder, scroll detector, history, renderer)
// needed to turn a byte stream into frames.
type Loop struct {
	ctx        context.Context
	tree       *agent.Tree
	providers  *provider.Registry
	tools      *tools.Registry
	scratchpad *tools.ScratchpadStore
	cfg        *config.Config
	creds      *config.Credentials
	store      *store.Cache
	sessionID  string

	term     *termio.Terminal
	renderer *render.Renderer
	decoder  action.Decoder
	detector scrolldetect.Detector
	hist     *history.History

	rounds chan roundResult

	// recentCalls tracks, per agent, the tool-loop repeated-call guard's
	// recent-call window across rounds — the round-by-round equivalent of
	// toolloop.Run's own local `recent` variable.
	recentCalls map[string][]toolloop.RecentCall

	forkPending bool
	quit        bool
}

// New assembles a Loop ready to Run. sessionID must already exist in store
// (or store may be nil to disable persistence).
func New(ctx context.Context, t *termio.Terminal, tree *agent.Tree, providers *provider.Registry, reg *tools.Registry, scratchpad *tools.ScratchpadStore, cfg *config.Config, creds *config.Credentials, st *store.Cache, sessionID string) *Loop {
	return &Loop{
		ctx:         ctx,
		tree:        tree,
		providers:   providers,
		tools:       reg,
		scratchpad:  scratchpad,
		cfg:         cfg,
		creds:       creds,
		store:       st,
		sessionID:   sessionID,
		term:        t,
		renderer:    render.New(),
		hist:        history.New(cfg.Agent.HistorySizeOrDefault()),
		rounds:      make(chan roundResult, 8),
		recentCalls: make(map[string][]toolloop.RecentCall),
	}
}

// createProvider builds the provider instance for a, resolving its API key
// through credentials the same way every adapter in this design expects:
// environment variable first, then the credentials file.
func (l *Loop) createProvider(a *agent.Agent) provider.Provider {
	pc := l.cfg.Providers[a.ProviderName]
	apiKey := l.creds.ResolveAPIKey(a.ProviderName, pc.APIKeyEnv)
	p, err := l.providers.Create(a.ProviderName, a.ModelName, provider.Options{
		Temperature: pc.Temperature,
		APIKey:      apiKey,
		Endpoint:    pc.Endpoint,
	})
	if err != nil {
		return provider.NewMock(a.ProviderName, provider.MockTurn{
			FinishReason: provider.FinishError,
			Err:          &provider.ProviderError{Category: provider.CategoryMissingCredentials},
		})
	}
	return p
}

func storeMessageOf(agentID, role string, blocks []provider.ContentBlock) store.SessionMessage {
	return store.SessionMessage{AgentID: agentID, Role: role, Blocks: blocks, CreatedAt: time.Now()}
}

// Run is the event loop. It returns when Ctrl-C (or an unrecoverable input
// read error) sets quit.
func (l *Loop) Run() error {
	inputCh := make(chan byte, 64)
	readErrCh := make(chan error, 1)
	go l.readInput(inputCh, readErrCh)

	width, height, err := l.term.Size()
	if err != nil {
		return fmt.Errorf("terminal size: %w", err)
	}

	for !l.quit {
		timeout := l.selectTimeout()

		select {
		case b, ok := <-inputCh:
			if !ok {
				l.quit = true
			} else {
				l.handleByte(b)
			}
		case res := <-l.rounds:
			l.handleRoundResult(res)
		case <-readErrCh:
			l.quit = true
		case <-time.After(timeout):
			l.onTimeout()
		}

		l.harvestTools()

		if w, h, err := l.term.Size(); err == nil {
			width, height = w, h
		}
		if cur := l.tree.Current(); cur != nil {
			if _, err := l.renderer.Render(l.term.File(), cur, width, height); err != nil {
				return fmt.Errorf("render: %w", err)
			}
		}
	}
	return nil
}

// readInput feeds the terminal's bytes to ch one at a time until the file
// errors or closes, at which point it reports the error and returns.
func (l *Loop) readInput(ch chan<- byte, errCh chan<- error) {
	buf := make([]byte, 1)
	for {
		n, err := l.term.File().Read(buf)
		if n > 0 {
			select {
			case ch <- buf[0]:
			case <-l.ctx.Done():
				close(ch)
				return
			}
		}
		if err != nil {
			errCh <- err
			close(ch)
			return
		}
	}
}

// selectTimeout computes how long the main select may block: the
// smallest of whichever deadlines currently apply.
func (l *Loop) selectTimeout() time.Duration {
	timeout := constants.SelectFallback

	anySpinner := false
	anyTool := false
	for _, a := range l.tree.All() {
		if a.SpinnerVisible() {
			anySpinner = true
		}
		if a.HasRunningTool() {
			anyTool = true
		}
	}
	if anySpinner && constants.SpinnerFrameInterval < timeout {
		timeout = constants.SpinnerFrameInterval
	}
	if anyTool && constants.ToolPollInterval < timeout {
		timeout = constants.ToolPollInterval
	}
	if d := l.detector.Timeout(time.Now()); d >= 0 && d < timeout {
		timeout = d
	}
	return timeout
}

// onTimeout is step 4: flush a pending scroll-burst arrow whose deadline
// passed. Rendering, which also advances a visible spinner by one frame,
// happens unconditionally after every loop iteration in Run.
func (l *Loop) onTimeout() {
	now := time.Now()
	if result := l.detector.CheckTimeout(now); result.Type == scrolldetect.KeyboardArrow {
		l.applyArrow(result.Dir)
	}
}

// Command ikigai is the terminal front-end: it loads configuration and
// credentials, opens the session store, assembles the provider and tool
// registries, and hands control to the REPL event loop (internal/repl).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ikigai-cli/ikigai/internal/agent"
	"github.com/ikigai-cli/ikigai/internal/config"
	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/repl"
	"github.com/ikigai-cli/ikigai/internal/shell"
	"github.com/ikigai-cli/ikigai/internal/store"
	"github.com/ikigai-cli/ikigai/internal/termio"
	"github.com/ikigai-cli/ikigai/internal/tools"
)

func main() {
	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to setup logging: %v\n", err)
	}

	flagSession := flag.String("s", "", "resume a session by ID")
	flagList := flag.Bool("l", false, "list sessions")
	flagContinue := flag.Bool("c", false, "continue most recent session")
	flag.StringVar(flagSession, "session", "", "resume a session by ID")
	flag.BoolVar(flagList, "list", false, "list sessions")
	flag.BoolVar(flagContinue, "continue", false, "continue most recent session")
	flag.Parse()

	configPath := filepath.Join(".", "config.toml")
	if dataDir, err := config.DataDir(); err == nil {
		dataDirPath := filepath.Join(dataDir, "config.toml")
		if _, err := os.Stat(dataDirPath); err == nil {
			configPath = dataDirPath
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error in config: %v\n", err)
		os.Exit(1)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		fmt.Printf("Error loading credentials: %v\n", err)
		os.Exit(1)
	}

	registry := buildProviderRegistry(cfg)
	providerName, providerCfg := resolveProvider(cfg, registry)

	db := openStore(cfg)
	if db != nil {
		defer db.Close()
	}

	if *flagList {
		listSessions(db)
		return
	}

	scratchpad := tools.NewScratchpadStore()
	toolRegistry := buildToolRegistry(scratchpad)

	sessionID, tree := resolveSession(*flagSession, *flagContinue, db, providerName, providerCfg.Model)

	code := termio.Run(func(t *termio.Terminal) error {
		loop := repl.New(context.Background(), t, tree, registry, toolRegistry, scratchpad, cfg, creds, db, sessionID)
		return loop.Run()
	})
	os.Exit(code)
}

// buildProviderRegistry registers a factory for every configured provider
// under its configured name, choosing the adapter by its "kind" (anthropic |
// google; any other kind gets the OpenAI adapter).
func buildProviderRegistry(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	for name, pc := range cfg.Providers {
		switch pc.Kind {
		case "anthropic":
			registry.RegisterFactory(name, provider.NewAnthropicFactory(name, pc.Endpoint, ""))
		case "google":
			registry.RegisterFactory(name, provider.NewGoogleFactory(name, pc.Endpoint, ""))
		default:
			registry.RegisterFactory(name, provider.NewOpenAIFactory(name, pc.Endpoint, ""))
		}
	}
	return registry
}

func resolveProvider(cfg *config.Config, registry *provider.Registry) (string, config.ProviderConfig) {
	name := cfg.DefaultProvider
	if name == "" {
		providers := registry.List()
		if len(providers) == 0 {
			fmt.Println("Error: No providers configured")
			os.Exit(1)
		}
		name = providers[0]
	}
	pcfg, ok := cfg.Providers[name]
	if !ok {
		fmt.Printf("Error: Provider %q not found\n", name)
		os.Exit(1)
	}
	return name, pcfg
}

// buildToolRegistry wires the builtin tool set: filesystem read/glob, the
// sandboxed shell interpreter, and the scratchpad plan-write tool backed by
// scratchpad.
func buildToolRegistry(scratchpad *tools.ScratchpadStore) *tools.Registry {
	reg := tools.NewRegistry()
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	reg.Register(tools.NewGlobTool(cwd))
	reg.Register(tools.NewFileReadTool(cwd))
	sh := shell.New(cwd, shell.DefaultBlockFuncs())
	reg.Register(tools.NewShellTool(sh))
	reg.Register(tools.NewScratchpadTool(scratchpad))
	return reg
}

func openStore(cfg *config.Config) *store.Cache {
	path := cfg.Database.Path
	if path == "" {
		dataDir, err := config.EnsureDataDir()
		if err != nil {
			fmt.Printf("Warning: data dir failed: %v\n", err)
			return nil
		}
		path = filepath.Join(dataDir, "ikigai.db")
	}
	db, err := store.Open(path, 0)
	if err != nil {
		fmt.Printf("Warning: store open failed: %v\n", err)
		return nil
	}
	return db
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Warn().Err(err).Msg("failed to read random bytes for session id")
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}
	logFile := filepath.Join(logDir, "ikigai.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	log.Logger = log.Output(file)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return nil
}

func listSessions(db *store.Cache) {
	if db == nil {
		fmt.Println("No store available")
		return
	}
	sessions, err := db.ListSessions()
	if err != nil {
		fmt.Printf("Error listing sessions: %v\n", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return
	}
	for _, s := range sessions {
		ts := s.Timestamp.Format("2006-01-02 15:04")
		preview := strings.ReplaceAll(s.Preview, "\n", " ")
		if len(preview) > 50 {
			preview = preview[:50]
		}
		fmt.Printf("%s  %s  %s\n", s.ID, ts, preview)
	}
}

// resolveSession picks the session ID to use (explicit, most-recent, or
// freshly created) and rebuilds the in-memory agent tree from the store —
// every persisted agent row, with every agent's own message history
// replayed into its conversation.
func resolveSession(flagSession string, flagContinue bool, db *store.Cache, providerName, model string) (string, *agent.Tree) {
	switch {
	case flagSession != "":
		if db != nil {
			ok, err := db.SessionExists(flagSession)
			if err != nil || !ok {
				fmt.Printf("Session %q not found\n", flagSession)
				os.Exit(1)
			}
		}
		return flagSession, rebuildTree(db, flagSession, providerName, model)

	case flagContinue:
		if db == nil {
			fmt.Println("No store available")
			os.Exit(1)
		}
		id, err := db.LatestSessionID()
		if err != nil {
			fmt.Printf("No sessions to continue: %v\n", err)
			os.Exit(1)
		}
		return id, rebuildTree(db, id, providerName, model)

	default:
		sid := newSessionID()
		tree := agent.NewTree(providerName, model)
		if db != nil {
			if err := db.CreateSession(sid); err != nil {
				fmt.Printf("Warning: failed to create session: %v\n", err)
			}
			root := tree.Current()
			rec := store.AgentRecord{
				ID: root.ID, SessionID: sid, ProviderName: providerName, ModelName: model,
				Status: "live", CreatedAt: root.CreatedAt,
			}
			if err := db.SaveAgent(rec); err != nil {
				fmt.Printf("Warning: failed to persist root agent: %v\n", err)
			}
		}
		return sid, tree
	}
}

// rebuildTree reconstructs an agent.Tree from a session's persisted agent
// rows and replays each agent's own message history into its conversation.
// Rows are loaded in insertion order, so every parent is already present by
// the time a child row needing SetConversation's fork point is reached.
func rebuildTree(db *store.Cache, sessionID, providerName, model string) *agent.Tree {
	tree := agent.NewTree(providerName, model)
	if db == nil {
		return tree
	}

	records, err := db.LoadAgents(sessionID)
	if err != nil || len(records) == 0 {
		loadRootMessages(db, sessionID, tree.Current())
		return tree
	}

	byID := map[string]*agent.Agent{}
	for _, rec := range records {
		if rec.Status == "dead" {
			continue
		}
		var a *agent.Agent
		if rec.ParentID == "" {
			a = tree.Current()
			a.ID = rec.ID
			_, _ = tree.Switch(rec.ID)
		} else {
			parent, ok := byID[rec.ParentID]
			if !ok {
				continue
			}
			a, err = tree.Fork(parent)
			if err != nil {
				continue
			}
		}
		a.ProviderName = rec.ProviderName
		a.ModelName = rec.ModelName
		a.ForkMessageID = rec.ForkMessageID
		a.CreatedAt = rec.CreatedAt
		byID[rec.ID] = a

		msgs, err := db.LoadMessages(sessionID, rec.ID)
		if err == nil {
			a.SetConversation(store.ToProviderMessages(msgs))
		}
	}

	if root := byID[records[0].ID]; root != nil {
		_, _ = tree.Switch(root.ID)
	}
	return tree
}

func loadRootMessages(db *store.Cache, sessionID string, root *agent.Agent) {
	msgs, err := db.LoadMessages(sessionID, root.ID)
	if err != nil {
		return
	}
	root.SetConversation(store.ToProviderMessages(msgs))
}

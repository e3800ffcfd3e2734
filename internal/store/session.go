package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/rs/zerolog/log"
)

const (
	SQLiteBusyMaxRetries    = 10
	SQLiteBusyBackoffStepMs = 50
	SQLiteBusyMaxBackoff    = time.Second
)

// Session represents a conversation session — the root of a tree of agents.
type Session struct {
	ID      string
	Title   string
	Created time.Time
	Updated time.Time
}

// SessionMessage is a persisted chat message belonging to one agent's
// transcript within a session.
type SessionMessage struct {
	AgentID      string
	Role         string
	Blocks       []provider.ContentBlock
	CreatedAt    time.Time
	InputTokens  int
	OutputTokens int
}

// AgentRecord is the persisted row for one entry in an agent tree: enough
// to rebuild an agent.Tree on session resume without this package needing
// to import internal/agent (callers convert at the boundary, the same way
// ToProviderMessages converts SessionMessage to provider.Message).
type AgentRecord struct {
	ID            string
	SessionID     string
	ParentID      string
	ProviderName  string
	ModelName     string
	ForkMessageID int
	Status        string // "live" or "dead"
	CreatedAt     time.Time
}

// CreateSession inserts a new session and returns its ID.
func (c *Cache) CreateSession(id string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()
	_, err := c.db.Exec(
		"INSERT INTO sessions (id, title, created, updated) VALUES (?, '', ?, ?)",
		id, now, now,
	)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to create session")
	}
	return err
}

// SaveMessage persists a message synchronously.
func (c *Cache) SaveMessage(sessionID string, msg SessionMessage) {
	if err := c.SaveMessages(sessionID, []SessionMessage{msg}); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("failed to save message")
	}
}

// SaveMessages persists a batch of messages atomically.
func (c *Cache) SaveMessages(sessionID string, msgs []SessionMessage) error {
	if c == nil || len(msgs) == 0 {
		return nil
	}

	var err error
	for attempt := 0; attempt <= SQLiteBusyMaxRetries; attempt++ {
		err = c.saveMessagesOnce(sessionID, msgs)
		if err == nil {
			return nil
		}
		if !IsSQLiteBusy(err) || attempt == SQLiteBusyMaxRetries {
			return err
		}
		backoff := time.Duration((attempt+1)*SQLiteBusyBackoffStepMs) * time.Millisecond
		if backoff > SQLiteBusyMaxBackoff {
			backoff = SQLiteBusyMaxBackoff
		}
		time.Sleep(backoff)
	}
	return err
}

// SaveMessageSync persists a message synchronously and returns its DB row ID.
// Used for turn-start messages where the caller needs the ID immediately
// (e.g. to record it as a fork point).
func (c *Cache) SaveMessageSync(sessionID string, msg SessionMessage) (int64, error) {
	if c == nil {
		return 0, nil
	}

	var err error
	for attempt := 0; attempt <= SQLiteBusyMaxRetries; attempt++ {
		id, attemptErr := c.saveMessageSyncOnce(sessionID, msg)
		if attemptErr == nil {
			return id, nil
		}
		err = attemptErr
		if !IsSQLiteBusy(err) || attempt == SQLiteBusyMaxRetries {
			return 0, err
		}
		backoff := time.Duration((attempt+1)*SQLiteBusyBackoffStepMs) * time.Millisecond
		if backoff > SQLiteBusyMaxBackoff {
			backoff = SQLiteBusyMaxBackoff
		}
		time.Sleep(backoff)
	}
	return 0, err
}

func (c *Cache) saveMessagesOnce(sessionID string, msgs []SessionMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		blocks, err := json.Marshal(msg.Blocks)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn().Err(rbErr).Msg("failed to rollback message save")
			}
			return fmt.Errorf("marshal message blocks: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO messages (session_id, agent_id, role, blocks, created, input_tokens, output_tokens)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, msg.AgentID, msg.Role, string(blocks), msg.CreatedAt.Unix(),
			msg.InputTokens, msg.OutputTokens,
		); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn().Err(rbErr).Msg("failed to rollback message save")
			}
			return err
		}
	}

	if _, err := tx.Exec("UPDATE sessions SET updated = ? WHERE id = ?", time.Now().Unix(), sessionID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("failed to rollback message save")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("failed to rollback message save")
		}
		return err
	}
	return nil
}

func (c *Cache) saveMessageSyncOnce(sessionID string, msg SessionMessage) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return 0, err
	}

	blocks, err := json.Marshal(msg.Blocks)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("failed to rollback message save")
		}
		return 0, fmt.Errorf("marshal message blocks: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO messages (session_id, agent_id, role, blocks, created, input_tokens, output_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.AgentID, msg.Role, string(blocks), msg.CreatedAt.Unix(),
		msg.InputTokens, msg.OutputTokens,
	)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("failed to rollback message save")
		}
		return 0, err
	}

	if _, err := tx.Exec("UPDATE sessions SET updated = ? WHERE id = ?", time.Now().Unix(), sessionID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("failed to rollback message save")
		}
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("failed to rollback message save")
		}
		return 0, err
	}

	return res.LastInsertId()
}

func IsSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// DeleteMessagesFrom removes all messages with id >= minID for a session.
func (c *Cache) DeleteMessagesFrom(sessionID string, minID int64) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"DELETE FROM messages WHERE session_id = ? AND id >= ?",
		sessionID, minID,
	)
	return err
}

// LoadLastMessage returns the most recent message for one agent, or nil if none.
func (c *Cache) LoadLastMessage(sessionID, agentID string) (*SessionMessage, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var m SessionMessage
	var blocks string
	var created int64
	err := c.db.QueryRow(
		`SELECT role, blocks, created, input_tokens, output_tokens
		 FROM messages WHERE session_id = ? AND agent_id = ? ORDER BY id DESC LIMIT 1`, sessionID, agentID,
	).Scan(&m.Role, &blocks, &created, &m.InputTokens, &m.OutputTokens)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(blocks), &m.Blocks); err != nil {
		return nil, fmt.Errorf("unmarshal message blocks: %w", err)
	}
	m.AgentID = agentID
	m.CreatedAt = time.Unix(created, 0)
	return &m, nil
}

// LoadMessages returns all messages for one agent, ordered by ID.
func (c *Cache) LoadMessages(sessionID, agentID string) ([]SessionMessage, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(
		`SELECT role, blocks, created, input_tokens, output_tokens
		 FROM messages WHERE session_id = ? AND agent_id = ? ORDER BY id`, sessionID, agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []SessionMessage
	for rows.Next() {
		var m SessionMessage
		var blocks string
		var created int64
		if err := rows.Scan(&m.Role, &blocks, &created, &m.InputTokens, &m.OutputTokens); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(blocks), &m.Blocks); err != nil {
			continue
		}
		m.AgentID = agentID
		m.CreatedAt = time.Unix(created, 0)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SessionSummary holds info for listing sessions.
type SessionSummary struct {
	ID        string
	Timestamp time.Time
	Preview   string // first 50 chars of last user message
}

// ListSessions returns sessions ordered by most recent user message, across
// every agent in the session.
func (c *Cache) ListSessions() ([]SessionSummary, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT s.id, m.created, m.blocks
		FROM sessions s
		JOIN messages m ON m.session_id = s.id
		WHERE m.role = 'user'
		  AND m.id = (
		    SELECT MAX(m2.id) FROM messages m2
		    WHERE m2.session_id = s.id AND m2.role = 'user'
		  )
		ORDER BY m.created DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var ts int64
		var blocksJSON string
		if err := rows.Scan(&s.ID, &ts, &blocksJSON); err != nil {
			continue
		}
		s.Timestamp = time.Unix(ts, 0)
		s.Preview = previewText(blocksJSON)
		out = append(out, s)
	}
	return out, rows.Err()
}

// previewText extracts the first text block from a marshaled block array
// and truncates it to 50 characters, for a session list preview line.
func previewText(blocksJSON string) string {
	var blocks []provider.ContentBlock
	if err := json.Unmarshal([]byte(blocksJSON), &blocks); err != nil {
		return ""
	}
	for _, b := range blocks {
		if b.Type == provider.BlockText && b.Text != "" {
			if r := []rune(b.Text); len(r) > 50 {
				return string(r[:50])
			}
			return b.Text
		}
	}
	return ""
}

// LatestSessionID returns the session with the most recent user message.
func (c *Cache) LatestSessionID() (string, error) {
	if c == nil {
		return "", fmt.Errorf("no cache")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var id string
	err := c.db.QueryRow(`
		SELECT s.id FROM sessions s
		JOIN messages m ON m.session_id = s.id
		WHERE m.role = 'user'
		ORDER BY m.created DESC
		LIMIT 1`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("no sessions found")
	}
	return id, nil
}

// ToProviderMessages converts stored messages to provider messages.
func ToProviderMessages(msgs []SessionMessage) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.Message{Role: m.Role, Blocks: m.Blocks})
	}
	return out
}

// SessionExists returns true if a session with the given ID exists.
func (c *Cache) SessionExists(id string) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveAgent inserts or updates an agent's registry row — used both when a
// root agent is first created and when /fork adds a child.
func (c *Cache) SaveAgent(rec AgentRecord) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		`INSERT INTO agents (id, session_id, parent_id, provider_name, model_name, fork_message_id, status, created)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		rec.ID, rec.SessionID, rec.ParentID, rec.ProviderName, rec.ModelName, rec.ForkMessageID, rec.Status, rec.CreatedAt.Unix(),
	)
	return err
}

// LoadAgents returns every agent row for a session, in insertion order.
func (c *Cache) LoadAgents(sessionID string) ([]AgentRecord, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(
		`SELECT id, session_id, parent_id, provider_name, model_name, fork_message_id, status, created
		 FROM agents WHERE session_id = ? ORDER BY created, rowid`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentRecord
	for rows.Next() {
		var r AgentRecord
		var created int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ParentID, &r.ProviderName, &r.ModelName, &r.ForkMessageID, &r.Status, &created); err != nil {
			continue
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// KillAgentsCascade marks every agent ID in ids dead in one transaction —
// the durable half of Tree.Kill's cascade, matching the original's
// begin/mark-dead-each/commit sequence. Callers remove the agents from
// their in-memory Tree only after this returns successfully.
func (c *Cache) KillAgentsCascade(ids []string) error {
	if c == nil || len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.Exec("UPDATE agents SET status = 'dead' WHERE id = ?", id); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn().Err(rbErr).Msg("failed to rollback agent cascade kill")
			}
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("failed to rollback agent cascade kill")
		}
		return err
	}
	return nil
}

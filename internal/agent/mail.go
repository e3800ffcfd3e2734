package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mail is a short message one agent leaves in another's inbox, the payload
// behind the /mail command.
type Mail struct {
	From      string
	To        string
	Body      string
	Timestamp time.Time
	Read      bool
}

// NewMail builds an unread mail message timestamped now.
func NewMail(from, to, body string) Mail {
	return Mail{From: from, To: to, Body: body, Timestamp: time.Now(), Read: false}
}

// Deliver appends a mail message to the recipient agent's inbox.
func (a *Agent) Deliver(m Mail) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Inbox = append(a.Inbox, m)
}

// UnreadCount returns how many inbox messages haven't been marked read.
func (a *Agent) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, m := range a.Inbox {
		if !m.Read {
			n++
		}
	}
	return n
}

// MarkRead marks the message at the given 1-based index (as shown in the
// rendered list) read. Returns an error if the index is out of range.
func (a *Agent) MarkRead(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := index - 1
	if i < 0 || i >= len(a.Inbox) {
		return fmt.Errorf("no mail at index %d", index)
	}
	a.Inbox[i].Read = true
	return nil
}

// formatRelativeTime renders a duration-since as "N sec/min/hour/day ago",
// the same bucketing the original mail renderer used.
func formatRelativeTime(diff time.Duration) string {
	secs := int64(diff.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%d sec ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%d min ago", secs/60)
	case secs < 86400:
		hours := secs / 3600
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := secs / 86400
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// RenderInbox formats an agent's inbox as the lines /mail prints: a header
// line per message (index, read marker, sender, relative time) followed by
// a quoted, truncated body preview.
func RenderInbox(inbox []Mail) []string {
	lines := make([]string, 0, len(inbox)*2)
	now := time.Now()
	for i, m := range inbox {
		marker := " "
		if !m.Read {
			marker = "*"
		}
		from := m.From
		if len(from) > 22 {
			from = from[:22]
		}
		lines = append(lines, fmt.Sprintf("  [%d] %s from %s... (%s)", i+1, marker, from, formatRelativeTime(now.Sub(m.Timestamp))))

		body := m.Body
		if len(body) > 50 {
			lines = append(lines, fmt.Sprintf("      %q...", body[:50]))
		} else {
			lines = append(lines, fmt.Sprintf("      %q", body))
		}
	}
	return lines
}

// ParseMailTarget splits the leading whitespace-delimited token (an agent
// UUID or prefix) off a /mail command's argument string, returning it and
// the remainder trimmed of its own leading whitespace.
func ParseMailTarget(args string) (target, rest string, ok bool) {
	args = strings.TrimLeft(args, " \t")
	idx := strings.IndexAny(args, " \t")
	if idx < 0 {
		if args == "" {
			return "", "", false
		}
		return args, "", true
	}
	return args[:idx], strings.TrimLeft(args[idx:], " \t"), true
}

// ParseMailIndex parses the 1-based message index /mail read expects.
func ParseMailIndex(args string) (int, bool) {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0, false
	}
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

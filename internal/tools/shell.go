package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ikigai-cli/ikigai/internal/provider"
	"github.com/ikigai-cli/ikigai/internal/shell"
)

// defaultShellTimeout and maxShellTimeout bound how long a single shell
// tool call may run absent (or despite) a caller-supplied timeout.
const (
	defaultShellTimeout = 60 * time.Second
	maxShellTimeout     = 10 * time.Minute
	maxShellOutputChars = 30000
)

// NewShellTool returns the shell tool: it runs a command through sh,
// persisting cwd and environment across calls within the same agent.
func NewShellTool(sh *shell.Shell) Tool {
	return Tool{
		Definition: provider.Tool{
			Name: "shell",
			Description: `Execute a shell command in an in-process POSIX interpreter rooted at the project directory.
Shell state (cwd, environment) persists across calls within the same agent. Dangerous commands (network access, sudo, package managers, system modification) are blocked.`,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "The shell command to execute"},
					"timeout_seconds": {"type": "integer", "description": "Timeout in seconds (default 60, max 600)"}
				},
				"required": ["command"]
			}`),
		},
		Handler: shellHandler(sh),
	}
}

type shellArgs struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func shellHandler(sh *shell.Shell) Handler {
	return func(ctx context.Context, argsJSON json.RawMessage) (string, bool) {
		var args shellArgs
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return errorf("invalid arguments: %v", err)
		}
		if strings.TrimSpace(args.Command) == "" {
			return errorf("command is required")
		}

		timeout := defaultShellTimeout
		if args.TimeoutSeconds > 0 {
			timeout = time.Duration(args.TimeoutSeconds) * time.Second
		}
		if timeout > maxShellTimeout {
			timeout = maxShellTimeout
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		stdout, stderr, err := sh.Exec(ctx, args.Command)
		exitCode := shell.ExitCode(err)
		output := formatShellOutput(stdout, stderr, exitCode, ctx.Err())
		if output == "" {
			output = "(no output)\n"
		}
		if len([]rune(output)) > maxShellOutputChars {
			output = truncateMiddle(output, maxShellOutputChars)
		}
		return output, exitCode != 0
	}
}

func formatShellOutput(stdout, stderr string, exitCode int, ctxErr error) string {
	var b strings.Builder
	if stdout != "" {
		b.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if stderr != "" {
		b.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	if ctxErr != nil {
		fmt.Fprintf(&b, "[timed out]\n")
	}
	if exitCode != 0 {
		fmt.Fprintf(&b, "[exit code: %d]\n", exitCode)
	}
	return b.String()
}

func truncateMiddle(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	half := maxChars / 2
	return string(runes[:half]) + "\n\n... [truncated] ...\n\n" + string(runes[len(runes)-half:])
}

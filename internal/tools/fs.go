package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ikigai-cli/ikigai/internal/provider"
)

// maxGlobMatches caps how many paths a single glob call returns, so a
// pattern like "*" over a large tree can't blow up a tool-result
// message.
const maxGlobMatches = 500

// maxFileReadBytes caps how much of a file file_read returns in one call.
const maxFileReadBytes = 256 * 1024

// NewGlobTool returns the glob tool: it lists paths under root matching a
// shell glob pattern, relative to root.
func NewGlobTool(root string) Tool {
	return Tool{
		Definition: provider.Tool{
			Name:        "glob",
			Description: "List files under the project root matching a glob pattern (e.g. \"*.go\", \"src/*.json\"). The pattern is matched against each file's path relative to the project root and, failing that, against its base name, so \"*.go\" finds Go files at any depth; '*' does not cross '/' and '**' is not recursive. Returns matching paths, one per line, relative to the project root.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"pattern": {"type": "string", "description": "Glob pattern, relative to the project root"}
				},
				"required": ["pattern"]
			}`),
		},
		Handler: globHandler(root),
	}
}

type globArgs struct {
	Pattern string `json:"pattern"`
}

func globHandler(root string) Handler {
	return func(_ context.Context, argsJSON json.RawMessage) (string, bool) {
		var args globArgs
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return errorf("invalid arguments: %v", err)
		}
		if args.Pattern == "" {
			return errorf("pattern is required")
		}

		var matches []string
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if name := d.Name(); name == ".git" || name == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			ok, err := filepath.Match(args.Pattern, rel)
			if err != nil {
				return err
			}
			if !ok {
				// also try matching against the base name, so patterns
				// like "*.go" work without a leading "**/" segment.
				ok, _ = filepath.Match(args.Pattern, d.Name())
			}
			if ok {
				matches = append(matches, rel)
			}
			return nil
		})
		if err != nil {
			return errorf("glob %q: %v", args.Pattern, err)
		}

		sort.Strings(matches)
		truncated := len(matches) > maxGlobMatches
		if truncated {
			matches = matches[:maxGlobMatches]
		}
		if len(matches) == 0 {
			return "(no matches)", false
		}
		out := strings.Join(matches, "\n")
		if truncated {
			out += fmt.Sprintf("\n... (truncated at %d matches)", maxGlobMatches)
		}
		return out, false
	}
}

// NewFileReadTool returns the file_read tool: it reads a file relative to
// root and returns its contents as text.
func NewFileReadTool(root string) Tool {
	return Tool{
		Definition: provider.Tool{
			Name:        "file_read",
			Description: "Read a file's contents, given a path relative to the project root.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Path to the file, relative to the project root"}
				},
				"required": ["path"]
			}`),
		},
		Handler: fileReadHandler(root),
	}
}

type fileReadArgs struct {
	Path string `json:"path"`
}

func fileReadHandler(root string) Handler {
	return func(_ context.Context, argsJSON json.RawMessage) (string, bool) {
		var args fileReadArgs
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return errorf("invalid arguments: %v", err)
		}
		if args.Path == "" {
			return errorf("path is required")
		}

		abs, err := resolveWithinRoot(root, args.Path)
		if err != nil {
			return errorf("%v", err)
		}

		content, err := os.ReadFile(abs)
		if err != nil {
			return errorf("failed to read %q: %v", args.Path, err)
		}
		if len(content) > maxFileReadBytes {
			content = content[:maxFileReadBytes]
			return string(content) + "\n... (truncated)", false
		}
		return string(content), false
	}
}

// resolveWithinRoot joins path onto root and rejects any result that
// escapes root, so a tool call can't read or glob outside the project.
func resolveWithinRoot(root, path string) (string, error) {
	var abs string
	if filepath.IsAbs(path) {
		abs = path
	} else {
		abs = filepath.Join(root, path)
	}
	abs, err := filepath.Abs(abs)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("access denied: %q is outside the project root", path)
	}
	return abs, nil
}

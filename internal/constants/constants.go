// Package constants holds process-wide literal values shared across ikigai.
package constants

import "time"

// SyntaxTheme names the default Chroma syntax theme. Nothing reads this
// constant: config.UIConfig.SyntaxThemeOrDefault returns the same name from
// its own literal. See github.com/alecthomas/chroma/v2/styles for the full list.
const SyntaxTheme = "github-dark"

// ScrollBurstThreshold is the window within which a second arrow key
// following a first is treated as a mouse-wheel burst rather than a
// deliberate keyboard arrow.
const ScrollBurstThreshold = 50 * time.Millisecond

// SpinnerFrameInterval is the select timeout contribution while any
// agent's spinner is visible.
const SpinnerFrameInterval = 80 * time.Millisecond

// ToolPollInterval is the select timeout contribution while any agent is
// executing a tool.
const ToolPollInterval = 50 * time.Millisecond

// SelectFallback is the upper bound on the REPL's readiness-wait timeout
// when nothing else constrains it.
const SelectFallback = time.Second

// SingleFlightPoll is the busy-wait granularity for single-flight guard
// flags such as a pending fork or a running tool thread.
const SingleFlightPoll = 10 * time.Millisecond

// DefaultMaxToolTurns bounds the tool loop absent explicit configuration.
const DefaultMaxToolTurns = 20

// DefaultHistorySize bounds the submitted-line LRU.
const DefaultHistorySize = 200

// EscapeBufferCap is the maximum number of bytes buffered while parsing an
// escape sequence before the decoder gives up and emits an unknown action.
const EscapeBufferCap = 16

// RecitationInterval is how many tool-calling rounds elapse between
// recitation reminders injected into the most recent tool result.
const RecitationInterval = 10

// RepeatedToolCallLimit is how many identical consecutive tool calls
// trigger a warning telling the model to stop repeating itself.
const RepeatedToolCallLimit = 3

// MaxEmptyResponseRetries bounds the number of immediate retries allowed
// when a provider stream completes with no content, reasoning, or tool calls.
const MaxEmptyResponseRetries = 1

// UUIDPrefixMinLength is the minimum prefix length accepted when resolving
// an agent by a shortened UUID.
const UUIDPrefixMinLength = 4

// MaxSubAgentDepth bounds how deeply sub-agents may spawn further sub-agents.
const MaxSubAgentDepth = 1

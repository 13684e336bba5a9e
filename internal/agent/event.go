package agent

import (
	"time"

	"github.com/google/uuid"
)

// Event types appended to a session's log. A "complete" or "error" event is
// always the last one and flips the session's done flag.
const (
	EventReasoning       = "reasoning"
	EventThinking        = "thinking"
	EventToolCall        = "tool_call"
	EventToolResult      = "tool_result"
	EventStatusChange    = "status_change"
	EventCommunication   = "communication_sent"
	EventAgentMessage    = "agent_message"
	EventCodeBlock       = "code_block"
	EventReportGenerated = "report_generated"
	EventComplete        = "complete"
	EventError           = "error"
)

// Event is one immutable progress record. Events are only appended, never
// mutated or reordered.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	SessionID uuid.UUID      `json:"session_id"`
	Timestamp string         `json:"timestamp"`
}

// utcNow formats the current time at second resolution, UTC, with a "Z"
// suffix. All event and row timestamps use this format.
func utcNow() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

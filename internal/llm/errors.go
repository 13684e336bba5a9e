package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when no API key is configured. Agent runs are
// rejected outright rather than degraded to mocked output.
var ErrNotConfigured = errors.New("llm: API key not configured")

// UpstreamError is a non-success response from the model API that survived
// the retry policy (or was never retryable).
type UpstreamError struct {
	StatusCode int
	Body       string // first 300 bytes of the response body
	Transient  bool
}

func (e *UpstreamError) Error() string {
	if e.Transient {
		return fmt.Sprintf("llm: upstream temporary error: %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: upstream request failed (%d): %s", e.StatusCode, e.Body)
}

// ContractError means the model never produced valid, schema-passing JSON
// within the bounded acquisition and repair attempts. Fatal to the run.
type ContractError struct {
	AgentID          string
	Preview          string // flattened preview of the last raw model text
	ValidationErrors []string
}

func (e *ContractError) Error() string {
	if len(e.ValidationErrors) > 0 {
		shown := e.ValidationErrors
		if len(shown) > 3 {
			shown = shown[:3]
		}
		return fmt.Sprintf("%s: model output failed schema validation (%s) (preview: %s)",
			e.AgentID, strings.Join(shown, "; "), e.Preview)
	}
	return fmt.Sprintf("%s: model output was not valid JSON (preview: %s)", e.AgentID, e.Preview)
}

// preview flattens newlines and truncates raw model text for error messages.
func preview(text string) string {
	if len(text) > 180 {
		text = text[:180]
	}
	return strings.ReplaceAll(text, "\n", " ")
}

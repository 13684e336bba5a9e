package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sitedesk/foreman/internal/domain"
)

// Pricing per token (Claude 3.7 Sonnet on OpenRouter).
const (
	inputTokenPrice  = 0.000003
	outputTokenPrice = 0.000015
)

// EventPublisher fans an appended event out to live subscribers. Optional;
// publish failures are logged, never fatal to the run.
type EventPublisher interface {
	PublishEvent(ctx context.Context, sessionID uuid.UUID, payload []byte) error
}

// Emitter appends progress events for one session+agent pair, tracks the
// running token cost, and mirrors every persisted event to the durable
// activity log. Owned by exactly one Runner goroutine.
type Emitter struct {
	registry   *Registry
	activity   domain.ActivityLogRepository
	publisher  EventPublisher // may be nil
	sessionID  uuid.UUID
	agentID    string
	multiplier float64

	TotalCost         float64
	TotalRawCost      float64
	TotalInputTokens  int
	TotalOutputTokens int
}

// NewEmitter creates an Emitter. multiplier scales raw model cost into the
// projected/billed figure shown in the UI.
func NewEmitter(registry *Registry, activity domain.ActivityLogRepository, publisher EventPublisher, sessionID uuid.UUID, agentID string, multiplier float64) *Emitter {
	return &Emitter{
		registry:   registry,
		activity:   activity,
		publisher:  publisher,
		sessionID:  sessionID,
		agentID:    agentID,
		multiplier: multiplier,
	}
}

// Emit appends one event, estimating token cost from text length. Used for
// events that did not come from a model call.
func (e *Emitter) Emit(ctx context.Context, eventType string, payload map[string]any, message string) error {
	inputTokens, outputTokens, cost := estimateTokens(message, payload)
	projected := round6(cost * e.multiplier)
	e.TotalRawCost += cost
	e.TotalCost += projected
	e.TotalInputTokens += inputTokens
	e.TotalOutputTokens += outputTokens

	return e.persist(ctx, eventType, payload, message, projected, inputTokens, outputTokens)
}

// EmitLLM appends one event using real token counts from the model API.
func (e *Emitter) EmitLLM(ctx context.Context, eventType string, payload map[string]any, message string, promptTokens, completionTokens int) error {
	rawCost := round6(float64(promptTokens)*inputTokenPrice + float64(completionTokens)*outputTokenPrice)
	projected := round6(rawCost * e.multiplier)
	e.TotalRawCost += rawCost
	e.TotalCost += projected
	e.TotalInputTokens += promptTokens
	e.TotalOutputTokens += completionTokens

	return e.persist(ctx, eventType, payload, message, projected, promptTokens, completionTokens)
}

// Thinking appends a lightweight thinking event. It streams to the UI only:
// no durable persistence, no cost accounting.
func (e *Emitter) Thinking(ctx context.Context, text string) {
	event := Event{
		Type:      EventThinking,
		Payload:   map[string]any{"text": text},
		SessionID: e.sessionID,
		Timestamp: utcNow(),
	}
	e.registry.AppendEvent(e.sessionID, event)
	e.publish(ctx, event)
}

func (e *Emitter) persist(ctx context.Context, eventType string, payload map[string]any, message string, cost float64, inputTokens, outputTokens int) error {
	event := Event{
		Type:      eventType,
		Payload:   payload,
		SessionID: e.sessionID,
		Timestamp: utcNow(),
	}
	e.registry.AppendEvent(e.sessionID, event)
	e.publish(ctx, event)

	err := e.activity.Insert(ctx, &domain.ActivityLog{
		AgentID:      e.agentID,
		SessionID:    e.sessionID,
		EventType:    eventType,
		Message:      message,
		Cost:         cost,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	})
	if err != nil {
		return fmt.Errorf("agent.Emitter.persist: %w", err)
	}
	return nil
}

func (e *Emitter) publish(ctx context.Context, event Event) {
	if e.publisher == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("session_id", e.sessionID.String()).Msg("agent.Emitter.publish: marshal")
		return
	}
	if err := e.publisher.PublishEvent(ctx, e.sessionID, data); err != nil {
		log.Debug().Err(err).Str("session_id", e.sessionID.String()).Msg("agent.Emitter.publish")
	}
}

// Typed convenience wrappers. These only shape payload/message before
// delegating to Emit.

func (e *Emitter) Reasoning(ctx context.Context, text string) error {
	return e.Emit(ctx, EventReasoning, map[string]any{"text": text}, text)
}

func (e *Emitter) ToolCall(ctx context.Context, tool string, args map[string]any) error {
	return e.Emit(ctx, EventToolCall, map[string]any{"tool": tool, "args": args}, "Tool call: "+tool)
}

func (e *Emitter) ToolResult(ctx context.Context, tool string, result map[string]any, summary string) error {
	return e.Emit(ctx, EventToolResult, map[string]any{"tool": tool, "result": result, "summary": summary}, summary)
}

func (e *Emitter) StatusChange(ctx context.Context, status, detail string) error {
	return e.Emit(ctx, EventStatusChange, map[string]any{"status": status, "detail": detail}, detail)
}

func (e *Emitter) Communication(ctx context.Context, recipient, subject, body string) error {
	return e.Emit(ctx, EventCommunication,
		map[string]any{"recipient": recipient, "subject": subject, "body": body},
		"Communication sent to "+recipient)
}

func (e *Emitter) AgentMessage(ctx context.Context, text, msgType string) error {
	message := text
	if len(message) > 120 {
		message = message[:120]
	}
	return e.Emit(ctx, EventAgentMessage, map[string]any{"text": text, "message_type": msgType}, message)
}

func (e *Emitter) CodeBlock(ctx context.Context, language, code string) error {
	return e.Emit(ctx, EventCodeBlock, map[string]any{"language": language, "code": code}, "Code: "+language)
}

func (e *Emitter) ReportGenerated(ctx context.Context, report map[string]any) error {
	title, _ := report["report_title"].(string)
	if title == "" {
		title = "Financial Report"
	}
	return e.Emit(ctx, EventReportGenerated, report, "Report: "+title)
}

// estimateTokens is the fallback estimation for non-model events.
func estimateTokens(message string, payload any) (inputTokens, outputTokens int, cost float64) {
	payloadText, err := json.Marshal(payload)
	if err != nil {
		payloadText = []byte("{}")
	}
	inputTokens = int(float64(len(message)) / 3.8)
	if inputTokens < 24 {
		inputTokens = 24
	}
	outputTokens = int(float64(len(payloadText)) / 4.4)
	if outputTokens < 18 {
		outputTokens = 18
	}
	cost = round6(float64(inputTokens)*inputTokenPrice + float64(outputTokens)*outputTokenPrice)
	return inputTokens, outputTokens, cost
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

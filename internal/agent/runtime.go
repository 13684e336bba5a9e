package agent

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/llm"
)

// Stores bundles the repositories the runners write through.
type Stores struct {
	Invoices       domain.InvoiceRepository
	Projects       domain.ProjectRepository
	AR             domain.ARRepository
	Collections    domain.CollectionsRepository
	Review         domain.ReviewQueueRepository
	Communications domain.CommunicationRepository
	Tasks          domain.InternalTaskRepository
	AgentStatus    domain.AgentStatusRepository
	Activity       domain.ActivityLogRepository
}

// Escalator pushes a short human-facing note to an external channel when a
// runner parks work for review. Optional.
type Escalator interface {
	Escalate(ctx context.Context, text string)
}

// RuntimeConfig wires a Runtime. All collaborators are injected.
type RuntimeConfig struct {
	Registry      *Registry
	Acquirer      *llm.Acquirer
	Skills        *SkillsStore
	Stores        Stores
	Publisher     EventPublisher // may be nil
	Escalator     Escalator      // may be nil
	MultiplierFor func(agentID string) float64
	Paced         bool // real-time pacing between events, off in tests
}

// Runtime executes agent sessions: it owns the runner table and the
// session-level bookkeeping around each run.
type Runtime struct {
	registry      *Registry
	acquirer      *llm.Acquirer
	skills        *SkillsStore
	stores        Stores
	publisher     EventPublisher
	escalator     Escalator
	multiplierFor func(string) float64
	paced         bool
}

// NewRuntime builds a Runtime from its wiring.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	multiplierFor := cfg.MultiplierFor
	if multiplierFor == nil {
		multiplierFor = func(string) float64 { return 1 }
	}
	return &Runtime{
		registry:      cfg.Registry,
		acquirer:      cfg.Acquirer,
		skills:        cfg.Skills,
		stores:        cfg.Stores,
		publisher:     cfg.Publisher,
		escalator:     cfg.Escalator,
		multiplierFor: multiplierFor,
		paced:         cfg.Paced,
	}
}

// RunResult is the terminal accounting for one completed session.
type RunResult struct {
	Output       map[string]any
	TotalCost    float64
	InputTokens  int
	OutputTokens int
}

type runnerFunc func(ctx context.Context, em *Emitter) (map[string]any, error)

func (rt *Runtime) runner(agentID string) (runnerFunc, bool) {
	switch agentID {
	case "po_match":
		return rt.runPOMatch, true
	case "ar_followup":
		return rt.runARFollowup, true
	case "financial_reporting":
		return rt.runFinancialReporting, true
	case "vendor_compliance":
		return rt.runVendorCompliance, true
	case "schedule_optimizer":
		return rt.runScheduleOptimizer, true
	case "progress_tracking":
		return rt.runProgressTracking, true
	case "maintenance_scheduler":
		return rt.runMaintenanceScheduler, true
	case "training_compliance":
		return rt.runTrainingCompliance, true
	case "onboarding":
		return rt.runOnboarding, true
	case "cost_estimator":
		return rt.runCostEstimator, true
	case "inquiry_router":
		return rt.runInquiryRouter, true
	}
	return nil, false
}

// Run executes one agent session end to end: status bookkeeping, the agent's
// runner, the terminal complete/error event, and cost roll-up. Exactly one
// terminal event is appended per session.
func (rt *Runtime) Run(ctx context.Context, agentID string, sessionID uuid.UUID) (RunResult, error) {
	runner, ok := rt.runner(agentID)
	if !ok {
		return RunResult{}, fmt.Errorf("agent.Runtime.Run: unknown agent id %q", agentID)
	}
	return rt.execute(ctx, agentID, sessionID, runner)
}

// execute drives one runner through the full session lifecycle.
func (rt *Runtime) execute(ctx context.Context, agentID string, sessionID uuid.UUID, runner runnerFunc) (RunResult, error) {
	em := rt.emitter(sessionID, agentID)

	if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "working",
		CurrentActivity: "Starting run",
	}); err != nil {
		return RunResult{}, fmt.Errorf("agent.Runtime.execute: %w", err)
	}

	output, err := runner(ctx, em)
	if err != nil {
		rt.failSession(ctx, em, agentID, sessionID, err)
		return RunResult{}, fmt.Errorf("agent.Runtime.execute: %s: %w", agentID, err)
	}

	tasksCompleted := inferCompletedTasks(output)
	costPerUnit := round6(em.TotalCost / float64(max(tasksCompleted, 1)))

	if emitErr := em.Emit(ctx, EventComplete, map[string]any{
		"agent_id": agentID,
		"output":   output,
		"metrics": map[string]any{
			"cost":            round6(em.TotalCost),
			"raw_cost":        round6(em.TotalRawCost),
			"multiplier":      em.multiplier,
			"input_tokens":    em.TotalInputTokens,
			"output_tokens":   em.TotalOutputTokens,
			"units_processed": tasksCompleted,
			"cost_per_unit":   costPerUnit,
		},
	}, agentID+" completed run"); emitErr != nil {
		log.Error().Err(emitErr).Str("agent_id", agentID).Msg("agent.Runtime.execute: terminal event")
	}

	if statusErr := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "idle",
		CurrentActivity: "Ready",
		AdditionalCost:  em.TotalCost,
		AdditionalTasks: tasksCompleted,
		SetLastRun:      true,
	}); statusErr != nil {
		log.Error().Err(statusErr).Str("agent_id", agentID).Msg("agent.Runtime.execute: status update")
	}

	rt.registry.MarkDone(sessionID, output)

	return RunResult{
		Output:       output,
		TotalCost:    round6(em.TotalCost),
		InputTokens:  em.TotalInputTokens,
		OutputTokens: em.TotalOutputTokens,
	}, nil
}

func (rt *Runtime) failSession(ctx context.Context, em *Emitter, agentID string, sessionID uuid.UUID, cause error) {
	if emitErr := em.Emit(ctx, EventError,
		map[string]any{"message": cause.Error()},
		fmt.Sprintf("Run failed for %s: %v", agentID, cause)); emitErr != nil {
		log.Error().Err(emitErr).Str("agent_id", agentID).Msg("agent.Runtime.failSession: error event")
	}

	activity := cause.Error()
	if len(activity) > 120 {
		activity = activity[:120]
	}
	if statusErr := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "error",
		CurrentActivity: activity,
	}); statusErr != nil {
		log.Error().Err(statusErr).Str("agent_id", agentID).Msg("agent.Runtime.failSession: status update")
	}

	rt.registry.MarkDone(sessionID, map[string]any{"error": cause.Error()})
}

func (rt *Runtime) emitter(sessionID uuid.UUID, agentID string) *Emitter {
	return NewEmitter(rt.registry, rt.stores.Activity, rt.publisher, sessionID, agentID, rt.multiplierFor(agentID))
}

// pause sleeps for demo pacing when enabled; no-op otherwise. Cancellation
// cuts the wait short.
func (rt *Runtime) pause(ctx context.Context, d time.Duration) {
	if !rt.paced {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (rt *Runtime) escalate(ctx context.Context, text string) {
	if rt.escalator == nil {
		return
	}
	rt.escalator.Escalate(ctx, text)
}

// trainingRuleActive asks the model whether the agent's current skills
// activate the PM variance-notification rule.
func (rt *Runtime) trainingRuleActive(ctx context.Context, agentID string) (bool, error) {
	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: agentID,
		Objective: "Inspect the skills text provided and decide whether it activates the " +
			"project-manager price-variance notification rule (a Training Update instructing the agent " +
			"to notify the PM about price variance exceptions over $1,000). " +
			"Return JSON with a single key training_rule_active (boolean).",
		MaxTokens: 200,
		Validator: validateTrainingRuleFlag,
	})
	if err != nil {
		return false, fmt.Errorf("trainingRuleActive: %w", err)
	}
	active, _ := result.Data["training_rule_active"].(bool)
	return active, nil
}

// inferCompletedTasks derives the unit count for cost-per-unit metrics from
// whichever list the runner's output carries.
func inferCompletedTasks(output map[string]any) int {
	for _, key := range []string{"processed", "results", "findings", "issues", "routes", "conversation"} {
		value, ok := output[key]
		if !ok {
			continue
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice {
			return rv.Len()
		}
	}
	return 1
}

package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/fixtures"
	"github.com/sitedesk/foreman/internal/llm"
)

func (rt *Runtime) runMaintenanceScheduler(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "maintenance_scheduler"

	payload, err := fixtures.Load("equipment_maintenance.json")
	if err != nil {
		return nil, err
	}
	equipment, _ := payload["equipment"].([]any)

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Loading equipment maintenance records. Scanning %d units including "+
			"excavators, loaders, trucks, and generators for overdue service, wear indicators, and safety issues.",
		len(equipment))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "scan_maintenance_records",
		map[string]any{"equipment_count": len(equipment)}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.Reasoning(ctx,
		"Checking each unit's service history, hour meter readings, and last inspection dates "+
			"against manufacturer-recommended maintenance intervals."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: agentID,
		Objective: "Analyze equipment maintenance records and return JSON with key issues (array). " +
			"Each issue must include unit, issue, action, severity, create_task (true/false), task_priority (optional).",
		Context:     payload,
		MaxTokens:   1600,
		Temperature: 0.1,
		Validator:   validateMaintenanceIssues,
	})
	if err != nil {
		return nil, err
	}
	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "LLM analysis complete"},
		"LLM analysis", result.PromptTokens, result.CompletionTokens); err != nil {
		return nil, err
	}

	issues, ok := result.Data["issues"].([]any)
	if !ok {
		return nil, fmt.Errorf("runMaintenanceScheduler: model output missing issues[]")
	}

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Scan complete. Found %d maintenance issue(s). Processing each and creating work orders as needed.",
		len(issues))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	for _, raw := range issues {
		issue, issueOK := raw.(map[string]any)
		if !issueOK {
			continue
		}
		unit := defaultString(stringField(issue, "unit"), "Equipment")
		severity := stringField(issue, "severity")

		if err := em.ToolCall(ctx, "inspect_unit",
			map[string]any{"unit": unit, "severity": severity}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 100*time.Millisecond)

		if createTask, _ := issue["create_task"].(bool); createTask {
			priority := stringField(issue, "task_priority")
			if priority == "" {
				if severity == "critical" {
					priority = "critical"
				} else {
					priority = "medium"
				}
			}
			if err := rt.stores.Tasks.Insert(ctx, &domain.InternalTask{
				AgentID:     agentID,
				Title:       "Maintenance: " + unit,
				Description: defaultString(stringField(issue, "action"), "Model generated maintenance action."),
				Priority:    priority,
				Status:      "open",
			}); err != nil {
				return nil, err
			}
		}

		if err := em.ToolResult(ctx, "inspect_unit",
			map[string]any{"unit": unit, "issue": issue["issue"], "severity": severity, "action": issue["action"]},
			fmt.Sprintf("%s: %s [%s] — %s",
				unit, defaultString(stringField(issue, "issue"), "issue detected"),
				severity, stringField(issue, "action"))); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)
	}

	severityCounts := map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0}
	for _, raw := range issues {
		issue, issueOK := raw.(map[string]any)
		if !issueOK {
			continue
		}
		severity := strings.ToLower(defaultString(stringField(issue, "severity"), "medium"))
		if _, tracked := severityCounts[severity]; tracked {
			severityCounts[severity]++
		}
	}
	fleetSummary := map[string]any{
		"total_units":     len(equipment),
		"issues_found":    len(issues),
		"all_clear":       len(equipment) - len(issues),
		"severity_counts": severityCounts,
	}

	if err := em.StatusChange(ctx, "complete", fmt.Sprintf(
		"Equipment audit finished: %d issue(s) across %d units.", len(issues), len(equipment))); err != nil {
		return nil, err
	}

	return map[string]any{"issues": issues, "fleet_summary": fleetSummary}, nil
}

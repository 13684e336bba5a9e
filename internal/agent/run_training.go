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

func (rt *Runtime) runTrainingCompliance(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "training_compliance"

	payload, err := fixtures.Load("hr_certifications.json")
	if err != nil {
		return nil, err
	}
	employees, _ := payload["employees"].([]any)

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Loading HR certification records. Auditing %d employees for OSHA, "+
			"first aid, equipment operator, and safety certification compliance.", len(employees))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "audit_employee_certifications",
		map[string]any{"employee_count": len(employees)}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.Reasoning(ctx,
		"Checking each employee's certification expiration dates, required training completions, "+
			"and cross-referencing with job role requirements."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: agentID,
		Objective: "Review employee certification compliance. Return JSON with key issues (array). " +
			"Each issue must include name, issue_type, detail, create_task (true/false), task_priority (optional).",
		Context:     payload,
		MaxTokens:   1600,
		Temperature: 0.1,
		Validator:   validateTrainingIssues,
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
		return nil, fmt.Errorf("runTrainingCompliance: model output missing issues[]")
	}

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Compliance audit complete. Found %d issue(s). Reviewing each employee and creating remediation tasks.",
		len(issues))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	for _, raw := range issues {
		issue, issueOK := raw.(map[string]any)
		if !issueOK {
			continue
		}
		name := defaultString(stringField(issue, "name"), "Employee")
		issueType := stringField(issue, "issue_type")

		if err := em.ToolCall(ctx, "check_employee",
			map[string]any{"employee": name, "issue_type": issueType}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 100*time.Millisecond)

		createTask, _ := issue["create_task"].(bool)
		if createTask {
			if err := rt.stores.Tasks.Insert(ctx, &domain.InternalTask{
				AgentID:     agentID,
				Title:       "Training compliance: " + name,
				Description: defaultString(stringField(issue, "detail"), "Model-generated compliance issue."),
				Priority:    defaultString(stringField(issue, "task_priority"), "high"),
				Status:      "open",
			}); err != nil {
				return nil, err
			}
		}

		if err := em.ToolResult(ctx, "check_employee",
			map[string]any{"employee": name, "issue_type": issueType, "detail": issue["detail"], "task_created": createTask},
			fmt.Sprintf("%s: %s — %s",
				name, strings.ReplaceAll(issueType, "_", " "), stringField(issue, "detail"))); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)
	}

	typeCounts := make(map[string]int)
	nonCompliant := make(map[string]bool)
	for _, raw := range issues {
		issue, issueOK := raw.(map[string]any)
		if !issueOK {
			continue
		}
		issueType := strings.ReplaceAll(strings.ToLower(defaultString(stringField(issue, "issue_type"), "expired")), " ", "_")
		typeCounts[issueType]++
		nonCompliant[stringField(issue, "name")] = true
	}
	trainingSummary := map[string]any{
		"total_employees": len(employees),
		"non_compliant":   len(nonCompliant),
		"compliant":       len(employees) - len(nonCompliant),
		"issues_found":    len(issues),
		"type_counts":     typeCounts,
	}

	if err := em.StatusChange(ctx, "complete", fmt.Sprintf(
		"Training audit finished: %d issue(s) across %d employees.", len(issues), len(employees))); err != nil {
		return nil, err
	}

	return map[string]any{"issues": issues, "training_summary": trainingSummary}, nil
}

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

// Per-project thinking lines, keyed by the project's expected finding.
var projectThinking = map[string][]string{
	"behind_schedule": {
		"Reviewing earned value metrics — CPI below 1.0 indicates cost overrun...",
		"Checking which cost codes are driving the variance...",
		"Analyzing labor productivity against original bid assumptions...",
		"Cross-referencing schedule milestones with critical path delays...",
		"Evaluating proposal assumptions that may have been broken...",
		"Assessing change order impacts on contract value and timeline...",
		"Calculating projected margin erosion based on current burn rate...",
		"Reviewing risk flags and their connection to field conditions...",
		"Determining root cause — is this a labor, material, or scope issue?...",
		"Formulating corrective action recommendations for the PM...",
	},
	"at_risk": {
		"Earned value shows potential overrun — investigating cost drivers...",
		"Examining cost code actuals vs budget at current percent complete...",
		"Checking if labor rate variance is structural or temporary...",
		"Reviewing overtime hours as percentage of total — watching for burnout signals...",
		"Analyzing whether proposal assumptions still hold in the field...",
		"Looking at milestone completion dates vs baseline schedule...",
		"Evaluating pending change orders and their financial impact...",
		"Assessing productivity index against original bid estimates...",
		"Determining if risk level warrants escalation to senior leadership...",
		"Building recommendations based on leading indicator trends...",
	},
	"on_track": {
		"Verifying earned value metrics align with schedule progress...",
		"Checking cost code performance across all categories...",
		"Confirming labor productivity is meeting or exceeding bid estimates...",
		"Reviewing milestone completions against baseline dates...",
		"Validating that proposal assumptions are holding in the field...",
		"Checking for any early warning signs in recent cost trends...",
		"Assessing change order pipeline for potential scope growth...",
		"Confirming projected margin is within acceptable range of target...",
	},
}

var projectThinkingDefault = []string{
	"Loading project financials and comparing to original proposal...",
	"Analyzing cost performance index and earned value metrics...",
	"Reviewing labor hours, rates, and productivity trends...",
	"Checking schedule milestones and critical path status...",
	"Evaluating proposal assumptions against field reality...",
	"Calculating projected margin and estimate at completion...",
	"Reviewing change orders and risk flags...",
	"Formulating executive assessment and recommendations...",
}

func (rt *Runtime) runProgressTracking(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "progress_tracking"

	data, err := fixtures.Progress()
	if err != nil {
		return nil, err
	}
	projects := data.Projects
	asOf := defaultString(data.AsOfDate, "2026-01-15")

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Loading project data from Vista ERP. Found %d active construction projects. "+
			"Will analyze each project individually — comparing proposal estimates to actuals, "+
			"computing earned value metrics, and assessing labor productivity.", len(projects))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "connect_vista_api",
		map[string]any{"system": "Vista ERP", "module": "Job Cost"}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)
	if err := em.ToolResult(ctx, "connect_vista_api",
		map[string]any{"status": "connected", "modules": []string{"Job Cost", "Payroll", "Project Management"}},
		"Connected to Vista ERP — Job Cost, Payroll & PM modules."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 150*time.Millisecond)

	var computedProjects []projectMetrics
	var findings []map[string]any

	for idx, project := range projects {
		name := defaultString(project.ProjectName, "Unknown")
		id := project.ProjectID

		if err := em.Reasoning(ctx, fmt.Sprintf(
			"Analyzing project %d of %d: %s (%s). "+
				"Loading proposal data, actuals, change orders, and risk flags.",
			idx+1, len(projects), name, id)); err != nil {
			return nil, err
		}
		rt.pause(ctx, 200*time.Millisecond)

		if err := em.ToolCall(ctx, "load_project_data", map[string]any{
			"project":    name,
			"project_id": id,
			"index":      fmt.Sprintf("%d of %d", idx+1, len(projects)),
		}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		metrics := computeProjectMetrics(project)
		computedProjects = append(computedProjects, metrics)

		ev := metrics.EarnedValue
		labor := metrics.LaborAnalysis
		brokenCount := 0
		for _, check := range metrics.BrokenAssumptions {
			if check.Status == "broken" {
				brokenCount++
			}
		}
		overBudgetCount := 0
		for _, cc := range metrics.CostCodeAnalysis {
			if cc.OverBudget {
				overBudgetCount++
			}
		}

		if err := em.ToolResult(ctx, "load_project_data",
			map[string]any{
				"project":          name,
				"contract_value":   metrics.ContractValue,
				"percent_complete": metrics.PercentComplete,
				"cost_to_date":     metrics.TotalCostToDate,
				"cost_codes":       len(metrics.CostCodeAnalysis),
				"change_orders":    metrics.ChangeOrderSummary["total_count"],
				"risk_flags":       len(metrics.RiskFlags),
			},
			fmt.Sprintf("Loaded %s: $%.0f contract, %.0f%% complete, $%.0f spent to date.",
				name, metrics.ContractValue, metrics.PercentComplete, metrics.TotalCostToDate)); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		if err := em.ToolCall(ctx, "compute_earned_value", map[string]any{
			"project":      name,
			"earned_value": ev.EarnedValue,
			"actual_cost":  ev.ActualCost,
		}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 100*time.Millisecond)
		overBudgetNote := ""
		if overBudgetCount > 0 {
			overBudgetNote = fmt.Sprintf(" | %d cost codes over budget", overBudgetCount)
		}
		if err := em.ToolResult(ctx, "compute_earned_value",
			map[string]any{
				"cpi":                  ev.CPI,
				"eac":                  ev.EAC,
				"etc":                  ev.ETC,
				"vac":                  ev.VAC,
				"projected_margin_pct": ev.ProjectedMarginPct,
			},
			fmt.Sprintf("CPI: %.2f | EAC: $%.0f | Projected Margin: %.1f%%%s",
				ev.CPI, ev.EAC, ev.ProjectedMarginPct, overBudgetNote)); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		if err := em.ToolCall(ctx, "analyze_labor_productivity", map[string]any{
			"project":         name,
			"actual_hours":    labor["actual_hours"],
			"estimated_hours": labor["estimated_hours"],
		}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 100*time.Millisecond)
		if err := em.ToolResult(ctx, "analyze_labor_productivity",
			map[string]any{
				"productivity_index": labor["productivity_index"],
				"hours_variance":     labor["hours_variance"],
				"overtime_pct":       labor["overtime_pct"],
				"rate_impact":        labor["rate_impact_dollars"],
			},
			fmt.Sprintf("Productivity: %.2f | Hours variance: %+.0f | Overtime: %.1f%% | Rate impact: $%+.0f",
				asFloat(labor["productivity_index"]), asFloat(labor["hours_variance"]),
				asFloat(labor["overtime_pct"]), asFloat(labor["rate_impact_dollars"]))); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		if err := em.Reasoning(ctx, fmt.Sprintf(
			"Running AI analysis on %s — evaluating cost performance, labor trends, "+
				"schedule risk, and proposal assumptions against field data.", name)); err != nil {
			return nil, err
		}
		rt.pause(ctx, 200*time.Millisecond)

		if err := em.ToolCall(ctx, "reason_about_project", map[string]any{
			"project":              name,
			"cpi":                  ev.CPI,
			"broken_assumptions":   brokenCount,
			"over_budget_codes":    overBudgetCount,
			"schedule_days_behind": metrics.ScheduleAnalysis["days_behind"],
		}); err != nil {
			return nil, err
		}

		thinkingLines, known := projectThinking[metrics.Finding]
		if !known {
			thinkingLines = projectThinkingDefault
		}
		stopThinking := em.StartThinking(ctx, thinkingLines, 1800*time.Millisecond)
		analysisResult, analysisErr := rt.acquirer.Request(ctx, llm.Request{
			AgentID: agentID,
			Objective: fmt.Sprintf("You are a senior construction project analyst reviewing '%s' for a CFO/executive audience.\n", name) +
				"All numbers have been pre-computed — DO NOT recalculate any figures.\n\n" +
				"Analyze this project deeply and return a JSON object with:\n" +
				"- finding: on_track / at_risk / behind_schedule\n" +
				"- status_color: green / amber / red\n" +
				"- reasoning_chain: array of 5-8 strings, each a distinct analytical step you took to reach your conclusion. " +
				"Example: ['CPI of 0.73 indicates $0.73 earned for every $1.00 spent — 27% cost overrun', " +
				"'Earthwork cost code is the primary driver at 42% over earned value', ...]. " +
				"Each step should reference specific numbers from the data.\n" +
				"- executive_summary: 2-3 sentence high-level status for a CFO\n" +
				"- root_cause_analysis: 3-5 sentence paragraph explaining WHY the project is in its current state. " +
				"For at_risk/behind projects, reference specific broken proposal assumptions, cost code overruns, " +
				"labor productivity issues, and schedule delays. For on_track projects, highlight strengths and watch items.\n" +
				"- proposal_vs_actual_insight: 2-3 sentences comparing the original bid assumptions to field reality\n" +
				"- labor_insight: 2-3 sentences about labor productivity, overtime, rate variances\n" +
				"- schedule_insight: 2-3 sentences about schedule performance and milestone trends\n" +
				"- financial_risk_level: high / medium / low\n" +
				"- schedule_risk_level: high / medium / low\n" +
				"- recommendation: 2-3 sentence specific, actionable recommendation for the PM\n" +
				"- create_task: boolean (true for at_risk/behind_schedule)\n" +
				"- task_title: string if create_task\n" +
				"- task_priority: high / medium / low\n\n" +
				"CRITICAL: Reference specific dollar amounts, percentages, cost codes, and metrics from the data below. " +
				"The reasoning_chain is the most important field — it shows HOW you arrived at your assessment.",
			Context:     map[string]any{"project_metrics": metrics},
			MaxTokens:   2000,
			Temperature: 0.2,
			Validator:   validateProjectAnalysis,
		})
		stopThinking()
		if analysisErr != nil {
			return nil, analysisErr
		}

		analysis := analysisResult.Data
		if err := em.EmitLLM(ctx, EventToolResult,
			map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "AI analysis complete for " + name},
			"LLM analysis for "+name, analysisResult.PromptTokens, analysisResult.CompletionTokens); err != nil {
			return nil, err
		}

		analysis["project_id"] = id
		analysis["project_name"] = name

		chain, _ := analysis["reasoning_chain"].([]any)
		for _, step := range chain {
			em.Thinking(ctx, fmt.Sprintf("→ %v", step))
			rt.pause(ctx, 300*time.Millisecond)
		}

		finding := defaultString(stringField(analysis, "finding"), metrics.Finding)
		riskLevel := defaultString(stringField(analysis, "financial_risk_level"), "medium")
		scheduleRisk := defaultString(stringField(analysis, "schedule_risk_level"), "medium")
		statusLabel := titleCase(strings.ReplaceAll(finding, "_", " "))

		if err := em.ToolResult(ctx, "reason_about_project",
			map[string]any{
				"project":         name,
				"finding":         finding,
				"financial_risk":  riskLevel,
				"schedule_risk":   scheduleRisk,
				"reasoning_steps": len(chain),
			},
			fmt.Sprintf("%s: %s — Financial Risk: %s | Reasoning: %d analytical steps",
				name, statusLabel, strings.ToUpper(riskLevel), len(chain))); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		findings = append(findings, analysis)

		if createTask, _ := analysis["create_task"].(bool); createTask {
			title := defaultString(stringField(analysis, "task_title"), "PM follow-up: "+name)
			description := defaultString(stringField(analysis, "executive_summary"), "Flagged project risk.")
			priority := defaultString(stringField(analysis, "task_priority"), "high")
			if err := rt.stores.Tasks.Insert(ctx, &domain.InternalTask{
				AgentID:     agentID,
				Title:       title,
				Description: description,
				Priority:    priority,
				Status:      "open",
			}); err != nil {
				return nil, err
			}
		}
	}

	var totalContract, totalEstimated, totalCostToDate float64
	var totalEAC, totalProjectedRevenue, totalProjectedMargin, weightedPct float64
	for _, p := range computedProjects {
		totalContract += p.ContractValue
		totalEstimated += p.EstimatedCost
		totalCostToDate += p.TotalCostToDate
		totalEAC += p.EarnedValue.EAC
		totalProjectedRevenue += p.EarnedValue.ProjectedRevenue
		totalProjectedMargin += p.EarnedValue.ProjectedMargin
		weightedPct += p.PercentComplete * p.ContractValue
	}
	portfolioMarginPct := 0.0
	if totalProjectedRevenue > 0 {
		portfolioMarginPct = totalProjectedMargin / totalProjectedRevenue * 100
	}
	portfolioPctComplete := 0.0
	if totalContract > 0 {
		portfolioPctComplete = round1(weightedPct / totalContract)
	}

	var onTrack, atRisk, behind, taskCount int
	for _, f := range findings {
		switch stringField(f, "finding") {
		case "on_track":
			onTrack++
		case "at_risk":
			atRisk++
		case "behind_schedule":
			behind++
		}
		if createTask, _ := f["create_task"].(bool); createTask {
			taskCount++
		}
	}

	kpiSummary := map[string]any{
		"as_of_date":              asOf,
		"total_projects":          len(computedProjects),
		"total_contract_value":    totalContract,
		"total_estimated_cost":    totalEstimated,
		"total_cost_to_date":      totalCostToDate,
		"total_eac":               round0(totalEAC),
		"total_projected_revenue": round0(totalProjectedRevenue),
		"total_projected_margin":  round0(totalProjectedMargin),
		"portfolio_margin_pct":    round1(portfolioMarginPct),
		"portfolio_pct_complete":  portfolioPctComplete,
		"on_track_count":          onTrack,
		"at_risk_count":           atRisk,
		"behind_count":            behind,
	}

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Portfolio analysis complete. %d projects assessed: %d on track, %d at risk, %d behind schedule. "+
			"Total portfolio value: $%.0f, weighted %.1f%% complete.",
		len(findings), onTrack, atRisk, behind, totalContract, portfolioPctComplete)); err != nil {
		return nil, err
	}

	if err := em.StatusChange(ctx, "complete",
		fmt.Sprintf("Analyzed %d projects: %d need PM attention.", len(findings), taskCount)); err != nil {
		return nil, err
	}

	return map[string]any{
		"kpi_summary":       kpiSummary,
		"findings":          findings,
		"computed_projects": computedProjects,
	}, nil
}

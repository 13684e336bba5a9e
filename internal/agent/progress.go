package agent

import (
	"math"
	"sort"
	"strings"

	"github.com/sitedesk/foreman/internal/fixtures"
)

// projectMetrics is the deterministic pre-computation handed to the model for
// each project. The model interprets; it never recalculates.
type projectMetrics struct {
	ProjectID          string              `json:"project_id"`
	ProjectName        string              `json:"project_name"`
	Division           string              `json:"division"`
	ProjectManager     string              `json:"project_manager"`
	Client             string              `json:"client"`
	Finding            string              `json:"finding"`
	StartDate          string              `json:"start_date"`
	OriginalEndDate    string              `json:"original_end_date"`
	ProjectedEndDate   string              `json:"projected_end_date"`
	ContractValue      float64             `json:"contract_value"`
	EstimatedCost      float64             `json:"estimated_cost"`
	TargetMarginPct    float64             `json:"target_margin_pct"`
	TotalCostToDate    float64             `json:"total_cost_to_date"`
	PercentComplete    float64             `json:"percent_complete"`
	PercentBilled      float64             `json:"percent_billed"`
	EarnedValue        earnedValueAnalysis `json:"earned_value_analysis"`
	CostCodeAnalysis   []costCodeLine      `json:"cost_code_analysis"`
	LaborAnalysis      map[string]any      `json:"labor_analysis"`
	ScheduleAnalysis   map[string]any      `json:"schedule_analysis"`
	ChangeOrderSummary map[string]any      `json:"change_order_summary"`
	BrokenAssumptions  []assumptionCheck   `json:"broken_assumptions"`
	RiskFlags          []string            `json:"risk_flags"`
}

type earnedValueAnalysis struct {
	EarnedValue        float64 `json:"earned_value"`
	ActualCost         float64 `json:"actual_cost"`
	CPI                float64 `json:"cpi"`
	EAC                float64 `json:"eac"`
	ETC                float64 `json:"etc"`
	VAC                float64 `json:"vac"`
	ProjectedRevenue   float64 `json:"projected_revenue"`
	ProjectedMargin    float64 `json:"projected_margin"`
	ProjectedMarginPct float64 `json:"projected_margin_pct"`
}

type costCodeLine struct {
	Code           string  `json:"code"`
	Budgeted       float64 `json:"budgeted"`
	Actual         float64 `json:"actual"`
	PctComplete    float64 `json:"pct_complete"`
	EarnedValue    float64 `json:"earned_value"`
	Variance       float64 `json:"variance"`
	VariancePct    float64 `json:"variance_pct"`
	ProjectedFinal float64 `json:"projected_final"`
	OverBudget     bool    `json:"over_budget"`
}

type assumptionCheck struct {
	Assumption string `json:"assumption"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

func round0(x float64) float64 { return math.Round(x) }

// computeProjectMetrics derives earned value, cost code variance, labor and
// schedule analysis, and proposal assumption checks for one project.
func computeProjectMetrics(project fixtures.ProgressProject) projectMetrics {
	proposal := project.Proposal
	actuals := project.Actuals

	pctComplete := actuals.PercentComplete
	acwp := actuals.TotalCostToDate

	// Earned value: BCWS and BCWP collapse to the same figure because the
	// demo snapshot has no separate schedule baseline.
	earnedValue := 0.0
	if proposal.EstimatedCost != 0 {
		earnedValue = proposal.EstimatedCost * pctComplete / 100
	}
	cpi := 1.0
	if acwp > 0 {
		cpi = earnedValue / acwp
	}
	eac := proposal.EstimatedCost
	if cpi > 0 {
		eac = proposal.EstimatedCost / cpi
	}
	etc := eac - acwp
	if etc < 0 {
		etc = 0
	}
	vac := proposal.EstimatedCost - eac

	projectedRevenue := proposal.ContractValue
	for _, co := range project.ChangeOrders {
		if co.Status == "approved" {
			projectedRevenue += co.Amount
		}
	}
	projectedMargin := projectedRevenue - proposal.EstimatedCost
	if eac > 0 {
		projectedMargin = projectedRevenue - eac
	}
	projectedMarginPct := 0.0
	if projectedRevenue > 0 {
		projectedMarginPct = projectedMargin / projectedRevenue * 100
	}

	codes := make([]string, 0, len(proposal.CostEstimateByCode))
	for code := range proposal.CostEstimateByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var costCodes []costCodeLine
	for _, code := range codes {
		budgeted := proposal.CostEstimateByCode[code]
		spend := actuals.CostByCode[code]
		budgetedForPct := 0.0
		if budgeted != 0 {
			budgetedForPct = budgeted * spend.PctComplete / 100
		}
		variance := budgetedForPct - spend.Actual
		variancePct := 0.0
		if budgetedForPct > 0 {
			variancePct = variance / budgetedForPct * 100
		}
		projectedFinal := spend.Actual
		if spend.PctComplete > 0 {
			projectedFinal = spend.Actual / (spend.PctComplete / 100)
		}
		costCodes = append(costCodes, costCodeLine{
			Code:           code,
			Budgeted:       budgeted,
			Actual:         spend.Actual,
			PctComplete:    spend.PctComplete,
			EarnedValue:    round0(budgetedForPct),
			Variance:       round0(variance),
			VariancePct:    round1(variancePct),
			ProjectedFinal: round0(projectedFinal),
			OverBudget:     spend.Actual > budgetedForPct*1.05 && spend.PctComplete > 0,
		})
	}

	laborEst := proposal.LaborEstimate
	laborAct := actuals.Labor
	expectedHoursAtPct := 0.0
	if laborEst.TotalLaborHours != 0 {
		expectedHoursAtPct = laborEst.TotalLaborHours * pctComplete / 100
	}
	hoursVariance := expectedHoursAtPct - laborAct.TotalHoursToDate
	hoursVariancePct := 0.0
	if expectedHoursAtPct > 0 {
		hoursVariancePct = hoursVariance / expectedHoursAtPct * 100
	}
	rateVariance := laborAct.AvgActualLoadedRate - laborEst.AvgLoadedRate
	rateImpact := 0.0
	if laborAct.TotalHoursToDate > 0 {
		rateImpact = rateVariance * laborAct.TotalHoursToDate
	}
	overtimePct := 0.0
	if laborAct.TotalHoursToDate > 0 {
		overtimePct = laborAct.OvertimeHours / laborAct.TotalHoursToDate * 100
	}
	projectedLabor := laborAct.LaborCostToDate
	if pctComplete > 0 {
		projectedLabor = laborAct.LaborCostToDate / (pctComplete / 100)
	}

	laborAnalysis := map[string]any{
		"estimated_hours":       laborEst.TotalLaborHours,
		"actual_hours":          laborAct.TotalHoursToDate,
		"expected_hours_at_pct": round0(expectedHoursAtPct),
		"hours_variance":        round0(hoursVariance),
		"hours_variance_pct":    round1(hoursVariancePct),
		"estimated_rate":        laborEst.AvgLoadedRate,
		"actual_rate":           laborAct.AvgActualLoadedRate,
		"rate_variance":         round2(rateVariance),
		"rate_impact_dollars":   round0(rateImpact),
		"overtime_hours":        laborAct.OvertimeHours,
		"overtime_cost":         laborAct.OvertimeCost,
		"overtime_pct":          round1(overtimePct),
		"productivity_index":    laborAct.ProductivityIndex,
		"estimated_labor_cost":  laborEst.EstimatedLaborCost,
		"actual_labor_cost":     laborAct.LaborCostToDate,
		"projected_labor_cost":  round0(projectedLabor),
		"labor_budget_variance": round0(laborEst.EstimatedLaborCost - projectedLabor),
		"monthly_labor":         laborAct.MonthlyLabor,
	}

	schedule := actuals.Schedule
	var completed, inProgress int
	var delaySum float64
	for _, m := range schedule.Milestones {
		switch m.Status {
		case "complete":
			completed++
			delaySum += m.DaysDelta
		case "in_progress":
			inProgress++
		}
	}
	avgDelay := 0.0
	if completed > 0 {
		avgDelay = delaySum / float64(completed)
	}
	scheduleAnalysis := map[string]any{
		"days_elapsed":              schedule.DaysElapsed,
		"days_behind":               schedule.DaysBehind,
		"days_ahead":                schedule.DaysAhead,
		"critical_path_delay_cause": schedule.CriticalPathDelayCause,
		"total_milestones":          len(schedule.Milestones),
		"completed_milestones":      completed,
		"in_progress_milestones":    inProgress,
		"avg_milestone_delay_days":  round1(avgDelay),
		"milestones":                schedule.Milestones,
	}

	var approvedCount, pendingCount int
	var approvedValue, pendingValue, totalImpactDays float64
	for _, co := range project.ChangeOrders {
		totalImpactDays += co.ImpactDays
		switch co.Status {
		case "approved":
			approvedCount++
			approvedValue += co.Amount
		case "pending":
			pendingCount++
			pendingValue += co.Amount
		}
	}
	coSummary := map[string]any{
		"total_count":                len(project.ChangeOrders),
		"approved_count":             approvedCount,
		"pending_count":              pendingCount,
		"approved_value":             approvedValue,
		"pending_value":              pendingValue,
		"total_schedule_impact_days": totalImpactDays,
		"items":                      project.ChangeOrders,
	}

	return projectMetrics{
		ProjectID:        project.ProjectID,
		ProjectName:      project.ProjectName,
		Division:         project.Division,
		ProjectManager:   project.ProjectManager,
		Client:           project.Client,
		Finding:          defaultString(project.Finding, "on_track"),
		StartDate:        project.StartDate,
		OriginalEndDate:  project.OriginalEndDate,
		ProjectedEndDate: project.CurrentProjectedEndDate,
		ContractValue:    proposal.ContractValue,
		EstimatedCost:    proposal.EstimatedCost,
		TargetMarginPct:  proposal.TargetMarginPct,
		TotalCostToDate:  acwp,
		PercentComplete:  pctComplete,
		PercentBilled:    actuals.PercentBilled,
		EarnedValue: earnedValueAnalysis{
			EarnedValue:        round0(earnedValue),
			ActualCost:         acwp,
			CPI:                round3(cpi),
			EAC:                round0(eac),
			ETC:                round0(etc),
			VAC:                round0(vac),
			ProjectedRevenue:   round0(projectedRevenue),
			ProjectedMargin:    round0(projectedMargin),
			ProjectedMarginPct: round1(projectedMarginPct),
		},
		CostCodeAnalysis:   costCodes,
		LaborAnalysis:      laborAnalysis,
		ScheduleAnalysis:   scheduleAnalysis,
		ChangeOrderSummary: coSummary,
		BrokenAssumptions:  checkAssumptions(proposal.KeyAssumptions, project.RiskFlags, schedule),
		RiskFlags:          project.RiskFlags,
	}
}

// checkAssumptions cross-references each proposal assumption with the field
// risk flags and schedule data.
func checkAssumptions(assumptions, riskFlags []string, schedule fixtures.ScheduleActuals) []assumptionCheck {
	flagContains := func(sub string) bool {
		for _, rf := range riskFlags {
			if strings.Contains(strings.ToLower(rf), sub) {
				return true
			}
		}
		return false
	}

	checks := make([]assumptionCheck, 0, len(assumptions))
	for _, assumption := range assumptions {
		lower := strings.ToLower(assumption)
		broken := false
		reason := ""
		switch {
		case strings.Contains(lower, "rock") && flagContains("rock"):
			broken = true
			reason = "Rock excavation encountered — contradicts assumption"
		case strings.Contains(lower, "fuel"):
			if flagContains("fuel") {
				broken = true
				reason = "Fuel costs exceeded assumed rate"
			}
		case strings.Contains(lower, "winter") || strings.Contains(lower, "weather"):
			if schedule.DaysBehind > 30 {
				broken = true
				reason = "Schedule delays pushed work into winter season"
			}
		case strings.Contains(lower, "subcontractor"):
			if flagContains("subcontractor") || flagContains("sub") {
				broken = true
				reason = "Subcontractor availability issues encountered"
			} else if strings.Contains(strings.ToLower(schedule.CriticalPathDelayCause), "subcontractor") {
				broken = true
				reason = "Subcontractor delay impacted critical path"
			}
		case strings.Contains(lower, "blasting"):
			if flagContains("blast") {
				broken = true
				reason = "Blasting volumes exceeded geological survey predictions"
			}
		case strings.Contains(lower, "retaining wall") || strings.Contains(lower, "redesign"):
			if flagContains("redesign") || flagContains("retaining") {
				broken = true
				reason = "Retaining wall required redesign due to field conditions"
			}
		case strings.Contains(lower, "endangered") || strings.Contains(lower, "environmental"):
			if flagContains("raptor") || flagContains("environmental") {
				broken = true
				reason = "Environmental mitigation required for raptor nesting"
			}
		}
		status := "holding"
		if broken {
			status = "broken"
		}
		checks = append(checks, assumptionCheck{Assumption: assumption, Status: status, Reason: reason})
	}
	return checks
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

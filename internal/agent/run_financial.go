package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitedesk/foreman/internal/fixtures"
	"github.com/sitedesk/foreman/internal/llm"
)

// runFinancialReporting is the batch mode: a Q4 2025 executive dashboard.
func (rt *Runtime) runFinancialReporting(ctx context.Context, em *Emitter) (map[string]any, error) {
	data, err := fixtures.Financial()
	if err != nil {
		return nil, err
	}
	glRecords := data.MonthlyGL

	if err := em.Reasoning(ctx,
		"Loading financial data for RPMX Construction Group ($850M annual revenue). "+
			"Generating executive dashboard with KPIs, P&L summary, and division performance."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	divisions := sortedDivisionCodes()
	if err := em.ToolCall(ctx, "load_financial_data", map[string]any{"divisions": divisions}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)
	if err := em.ToolResult(ctx, "load_financial_data",
		map[string]any{"status": "loaded", "gl_records": len(glRecords)},
		fmt.Sprintf("Loaded %d GL records across %d divisions.", len(glRecords), len(divisions))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	q4Records := filterGL(glRecords, "", "2025-10", "2025-12", nil)
	companyPnL := computePnL(q4Records)

	divPerformance := make(map[string]any, len(divisionNames))
	for _, code := range divisions {
		divPnL := computePnL(filterGL(glRecords, code, "2025-10", "2025-12", nil))
		divPerformance[divisionNames[code]] = map[string]any{
			"revenue":          divPnL.Revenue,
			"gross_margin_pct": divPnL.GrossMarginPct,
			"net_margin_pct":   divPnL.NetMarginPct,
		}
	}

	var totalBacklog float64
	for _, b := range data.Backlog {
		totalBacklog += b.ContractedBacklog
	}
	cashBalance := 0.0
	if n := len(data.CashFlow); n > 0 {
		cashBalance = data.CashFlow[n-1].EndingCashBalance
	}
	monthlyRev := companyPnL.Revenue / 3

	computedData := map[string]any{
		"company_pnl":             companyPnL,
		"division_performance":    divPerformance,
		"quarterly_margin_trend":  quarterlyTrend(glRecords, "gross_margin"),
		"quarterly_revenue_trend": quarterlyTrend(glRecords, "revenue"),
		"kpis": map[string]any{
			"q4_revenue":       companyPnL.Revenue,
			"gross_margin_pct": companyPnL.GrossMarginPct,
			"net_margin_pct":   companyPnL.NetMarginPct,
			"overhead_ratio":   computeOverheadRatio(q4Records),
			"dso":              computeDSO(data.ARAgingSnapshot, monthlyRev),
			"total_backlog":    totalBacklog,
			"cash_balance":     cashBalance,
		},
		"targets": data.KPITargets,
	}

	if err := em.Reasoning(ctx,
		"Computing Q4 2025 P&L, division performance, margin trends, "+
			"and key performance indicators."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "generate_report",
		map[string]any{"type": "executive_dashboard", "period": "Q4 2025"}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 100*time.Millisecond)

	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: "financial_reporting",
		Objective: "Generate an Executive Dashboard report for RPMX Construction Group, Q4 2025.\n" +
			"You have been given pre-computed financial data. Numbers MUST exactly match.\n\n" +
			"Return strict JSON with these keys:\n" +
			"- report_title: 'Executive Dashboard — Q4 2025'\n" +
			"- report_type: 'kpi_dashboard'\n" +
			"- sections: array of 4 sections:\n" +
			"  1. kpi_grid: 6-8 key metrics (revenue, gross margin, net margin, overhead ratio, DSO, backlog, cash balance)\n" +
			"  2. table: Division Performance table with columns: Division, Revenue, Gross Margin %, Net Margin %\n" +
			"  3. chart: line chart of quarterly gross margin trend\n" +
			"  4. narrative: Executive summary paragraph highlighting performance, trends, and concerns\n" +
			"- division_name: 'Company-Wide'\n" +
			"- period_label: 'Q4 2025'\n\n" +
			"Currency values should be raw numbers. Percent values like 18.5 (not 0.185).\n" +
			"The narrative should sound like a CFO briefing — professional, insightful, action-oriented.",
		Context:     computedData,
		MaxTokens:   3000,
		Temperature: 0.1,
		Validator:   validateFinancialReport,
	})
	if err != nil {
		return nil, err
	}
	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "Dashboard generated"},
		"Dashboard generated", result.PromptTokens, result.CompletionTokens); err != nil {
		return nil, err
	}

	if err := em.ToolResult(ctx, "generate_report",
		map[string]any{"report_type": "kpi_dashboard"},
		"Executive Dashboard generated."); err != nil {
		return nil, err
	}

	return result.Data, nil
}

// RunFinancialQuery handles one chat turn against the financial reporting
// agent inside a full session lifecycle: classify the question, compute the
// data deterministically, then have the model arrange it into a report.
func (rt *Runtime) RunFinancialQuery(ctx context.Context, sessionID uuid.UUID, conversationID, userMessage string) (RunResult, error) {
	return rt.execute(ctx, "financial_reporting", sessionID, func(ctx context.Context, em *Emitter) (map[string]any, error) {
		return rt.runFinancialQuery(ctx, em, conversationID, userMessage)
	})
}

// queryParams is the parsed intent-classification output.
type queryParams struct {
	Intent             string
	Division           string
	PeriodStart        string
	PeriodEnd          string
	ComparePeriodStart string
	ComparePeriodEnd   string
	GLFilter           string
	GLCategory         string
	JobID              string
	Aggregation        string
	Clarification      string
}

func parseQueryParams(data map[string]any) queryParams {
	p := queryParams{
		Intent:             stringField(data, "intent"),
		Division:           stringField(data, "division"),
		PeriodStart:        stringField(data, "period_start"),
		PeriodEnd:          stringField(data, "period_end"),
		ComparePeriodStart: stringField(data, "compare_period_start"),
		ComparePeriodEnd:   stringField(data, "compare_period_end"),
		GLFilter:           stringField(data, "gl_filter"),
		GLCategory:         stringField(data, "gl_category"),
		JobID:              stringField(data, "job_id"),
		Aggregation:        stringField(data, "aggregation"),
		Clarification:      stringField(data, "clarification_question"),
	}
	if p.Intent == "" {
		p.Intent = "custom_query"
	}
	if p.Aggregation == "" {
		p.Aggregation = "quarterly"
	}
	// Older skill texts steer the model to a single "period" key; accept it.
	if p.PeriodStart == "" && p.PeriodEnd == "" {
		if period := stringField(data, "period"); period != "" {
			p.PeriodStart, p.PeriodEnd = resolvePeriodRange(period)
		}
	}
	if p.ComparePeriodStart == "" && p.ComparePeriodEnd == "" {
		if period := stringField(data, "compare_period"); period != "" {
			p.ComparePeriodStart, p.ComparePeriodEnd = resolvePeriodRange(period)
		}
	}
	return p
}

func (p queryParams) periodDisplay() string {
	if (p.Intent == "ar_analysis" || p.Intent == "backlog" || p.Intent == "job_costing") && p.PeriodStart == "" {
		return "As of January 2026"
	}
	if p.PeriodStart != "" && p.PeriodEnd != "" && p.PeriodStart != p.PeriodEnd {
		return p.PeriodStart + " to " + p.PeriodEnd
	}
	if p.PeriodStart != "" {
		return p.PeriodStart
	}
	return "latest"
}

func (p queryParams) divisionLabel() string {
	if p.Division == "" {
		return "all divisions"
	}
	if name, ok := divisionNames[p.Division]; ok {
		return name
	}
	return p.Division
}

func (rt *Runtime) classifyFinancialIntent(ctx context.Context, userMessage, history string, jobs []fixtures.Job) (*llm.StructuredResult, error) {
	divisionLookup := make([]string, 0, len(divisionNames))
	for _, code := range sortedDivisionCodes() {
		divisionLookup = append(divisionLookup, code+"="+divisionNames[code])
	}
	jobSamples := make([]string, 0, 15)
	for _, j := range jobs {
		if len(jobSamples) == 15 {
			break
		}
		jobSamples = append(jobSamples, j.JobID+"="+j.Name)
	}

	return rt.acquirer.Request(ctx, llm.Request{
		AgentID: "financial_reporting",
		Objective: "Classify the user's financial query and extract parameters.\n" +
			"Return strict JSON with these keys:\n" +
			"- intent: one of p_and_l, comparison, expense_analysis, job_costing, ar_analysis, " +
			"backlog, cash_flow, margin_analysis, budget_variance, kpi_dashboard, custom_query, clarification_needed\n" +
			"- division: one of EX, RC, SD, LM, RW, all, or null\n" +
			"- period_start: YYYY-MM format for the start of the period range, or null\n" +
			"- period_end: YYYY-MM format for the end of the period range, or null\n" +
			"- compare_period_start: YYYY-MM for comparison start, or null\n" +
			"- compare_period_end: YYYY-MM for comparison end, or null\n" +
			"- gl_filter: a GL code like 5500, or null\n" +
			"- gl_category: revenue, cogs, or opex — or null\n" +
			"- job_id: a job ID like J-1001, or null\n" +
			"- aggregation: monthly, quarterly, or annual — default quarterly\n" +
			"- clarification_question: a follow-up question string if intent is clarification_needed, else null\n\n" +
			"IMPORTANT DATE RULES:\n" +
			"- Today is January 2026. The most recent complete quarter is Q4 2025 (2025-10 to 2025-12).\n" +
			"- The most recent complete fiscal year is FY 2025 (2025-01 to 2025-12).\n" +
			"- For 'last N months' → count back N months from 2026-01 (e.g. 'last 6 months' → 2025-08 to 2026-01)\n" +
			"- For 'this year' or 'YTD 2025' → 2025-01 to 2025-12\n" +
			"- For 'Q4 2025' → 2025-10 to 2025-12\n" +
			"- For 'Q3 2025' → 2025-07 to 2025-09\n" +
			"- For a single month like 'October 2025' → 2025-10 to 2025-10\n" +
			"- For year-over-year → set period_start/end to current period AND compare_period_start/end to prior year equivalent\n" +
			"- If no period is specified, use smart defaults based on intent:\n" +
			"  * p_and_l/budget_variance → most recent quarter: 2025-10 to 2025-12\n" +
			"  * comparison → current year vs prior year: period 2025-01..2025-12, compare 2024-01..2024-12\n" +
			"  * cash_flow → last 12 months: 2025-02 to 2026-01\n" +
			"  * margin_analysis → all available (null, let backend handle)\n" +
			"  * expense_analysis → last 12 months: 2025-02 to 2026-01\n" +
			"  * kpi_dashboard → null (backend uses latest)\n" +
			"  * ar_analysis/backlog/job_costing → null (point-in-time data)\n\n" +
			"Division lookup: " + strings.Join(divisionLookup, ", ") + "\n" +
			"Available periods: 2024-01 through 2026-01\n" +
			"Sample jobs: " + strings.Join(jobSamples, ", ") + "\n" +
			"GL codes: 4100=Contract Revenue, 4200=Service Revenue, 4300=Change Orders, " +
			"5100=Materials, 5200=Equipment Rental, 5300=Subcontractor, 5400=Direct Labor, " +
			"5500=Fuel, 5600=Hauling, 5700=Permits, 5800=Equip Maintenance, " +
			"6100=Office/Admin, 6200=Insurance, 6300=Vehicle/Fleet, 6400=IT, 6500=Prof Fees, 6600=Depreciation\n\n" +
			"Intent guide:\n" +
			"- P&L questions → p_and_l\n" +
			"- Year-over-year, compare periods → comparison\n" +
			"- Cost breakdown, specific cost line, comparing cost categories → expense_analysis\n" +
			"  NOTE: For expense_analysis, if the user asks about MULTIPLE cost types (e.g. 'labor vs subcontractor'),\n" +
			"  leave gl_filter null and set gl_category to the broader category (cogs or opex), or leave both null\n" +
			"  to get ALL expenses. The backend will include all relevant GL codes.\n" +
			"- Specific project costs → job_costing\n" +
			"- Receivables, DSO, collections → ar_analysis\n" +
			"- Backlog, pipeline → backlog\n" +
			"- Cash position, cash flow → cash_flow\n" +
			"- Margin trends, profitability → margin_analysis\n" +
			"- Budget vs actual → budget_variance\n" +
			"- Dashboard, KPIs, overview → kpi_dashboard\n" +
			"- Anything else specific → custom_query",
		Context: map[string]any{
			"user_message":         userMessage,
			"conversation_history": history,
		},
		MaxTokens:   500,
		Temperature: 0,
	})
}

func (rt *Runtime) runFinancialQuery(ctx context.Context, em *Emitter, conversationID, userMessage string) (map[string]any, error) {
	data, err := fixtures.Financial()
	if err != nil {
		return nil, err
	}
	glRecords := data.MonthlyGL

	preview := userMessage
	if len(preview) > 100 {
		preview = preview[:100]
	}
	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Analyzing your request: %q — I'll classify your intent, query the relevant financial data, and generate a report.",
		preview)); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	messagePreview := userMessage
	if len(messagePreview) > 80 {
		messagePreview = messagePreview[:80]
	}
	if err := em.ToolCall(ctx, "classify_intent", map[string]any{"message": messagePreview}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	conversation := rt.registry.GetOrCreateConversation(conversationID, "financial_reporting")
	var historyLines []string
	start := 0
	if len(conversation.Messages) > 6 {
		start = len(conversation.Messages) - 6
	}
	for _, m := range conversation.Messages[start:] {
		historyLines = append(historyLines, strings.ToUpper(m.Role)+": "+m.Content)
	}

	classification, err := rt.classifyFinancialIntent(ctx, userMessage, strings.Join(historyLines, "\n"), data.Jobs)
	if err != nil {
		return nil, err
	}
	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "Intent classified"},
		"Intent classified", classification.PromptTokens, classification.CompletionTokens); err != nil {
		return nil, err
	}

	params := parseQueryParams(classification.Data)
	periodDisplay := params.periodDisplay()

	if err := em.ToolResult(ctx, "classify_intent",
		map[string]any{"intent": params.Intent, "division": params.Division, "period": periodDisplay},
		fmt.Sprintf("Classified as %s for %s", params.Intent, params.divisionLabel())); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if params.Intent == "clarification_needed" {
		question := params.Clarification
		if question == "" {
			question = "Could you be more specific? For example, which division, time period, or metric are you interested in?"
		}
		rt.registry.AppendMessage(conversation.ID, "user", userMessage)
		rt.registry.AppendMessage(conversation.ID, "assistant", question)
		if err := em.AgentMessage(ctx, question, "clarification"); err != nil {
			return nil, err
		}
		return map[string]any{"type": "clarification", "question": question, "conversation_id": conversation.ID}, nil
	}

	reasoning := "Connecting to Vista ERP to pull financial data"
	if params.Division != "" {
		reasoning += " for " + params.divisionLabel()
	}
	if params.PeriodStart != "" {
		reasoning += ", period " + periodDisplay
	}
	if err := em.Reasoning(ctx, reasoning+"."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "query_gl_data",
		map[string]any{"intent": params.Intent, "division": params.Division, "period": periodDisplay}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	sqlPeriod := params.PeriodStart
	if sqlPeriod == "" {
		sqlPeriod = "latest"
	}
	if err := em.CodeBlock(ctx, "sql", buildSimulatedSQL(params.Intent, params.Division, sqlPeriod, params.GLFilter)); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	computedData := rt.computeQueryData(params, data)

	rowCount := len(filterGL(glRecords, params.Division, params.PeriodStart, params.PeriodEnd, nil))
	sections := make([]string, 0, len(computedData))
	for key := range computedData {
		sections = append(sections, key)
	}
	sort.Strings(sections)
	if err := em.ToolResult(ctx, "query_gl_data",
		map[string]any{"rows_returned": rowCount, "data_sections": sections},
		fmt.Sprintf("Retrieved %d GL records, computed %s data.", rowCount, params.Intent)); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.Reasoning(ctx, "Generating the report with tables, charts, and executive narrative..."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "generate_report",
		map[string]any{"intent": params.Intent, "sections": "tables+charts+narrative"}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 100*time.Millisecond)

	division := params.Division
	if division == "" {
		division = "all"
	}
	reportResult, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: "financial_reporting",
		Objective: fmt.Sprintf("The user asked: %q\n", userMessage) +
			fmt.Sprintf("Intent: %s, Division: %s, Period: %s\n", params.Intent, division, periodDisplay) +
			fmt.Sprintf("Aggregation: %s\n\n", params.Aggregation) +
			"You have been given pre-computed financial data. Your job is to arrange it into a structured " +
			"report with sections. The numbers in tables and charts MUST exactly match the provided computed data. " +
			"Do NOT recalculate or invent numbers.\n\n" +
			"Return strict JSON with these keys:\n" +
			"- report_title: descriptive title (e.g. 'Excavation P&L — Q4 2025')\n" +
			"- report_type: one of p_and_l, comparison, expense_analysis, job_costing, ar_analysis, " +
			"backlog, cash_flow, margin_analysis, budget_variance, kpi_dashboard, custom_query\n" +
			"- response_text: conversational 2-4 sentence summary answering the user's question\n" +
			"- sections: array of section objects, each with:\n" +
			"  - type: 'kpi_grid' | 'table' | 'chart' | 'narrative'\n" +
			"  - For kpi_grid: { metrics: [{ label, value, format: 'currency'|'percent'|'number'|'days', trend: 'up'|'down'|'flat', target (optional number) }] }\n" +
			"  - For table: { title, columns: [{ key, label, format: 'currency'|'percent'|'number'|'text' }], " +
			"rows: [{ key1: val1, key2: val2, ... }], highlight_rows: [indices], footer: string|null }\n" +
			"  - For chart: { chart_type: 'bar'|'line'|'pie'|'stacked_bar', title, " +
			"data: { labels: [...], datasets: [{ label, values: [...] }] }, format: 'currency'|'percent'|'number' }\n" +
			"  - For narrative: { title, content: paragraph text }\n" +
			"- division_name: full division name or 'Company-Wide'\n" +
			"- period_label: human-readable period like 'Q4 2025' or 'FY 2025'\n\n" +
			"IMPORTANT RULES:\n" +
			"- Include 2-4 sections per report (mix of types for visual richness)\n" +
			"- Always include at least one table section and one narrative section\n" +
			"- For P&L reports: kpi_grid (revenue, margin, net income) + P&L table + narrative\n" +
			"- For comparisons: variance table + bar chart showing key line items + narrative\n" +
			"- For margin analysis: line chart of quarterly trend + division comparison bar chart + narrative\n" +
			"- For job costing: job summary table + narrative\n" +
			"- For AR analysis: aging table + pie chart of aging buckets + narrative\n" +
			"- For backlog: backlog table + bar chart + narrative\n" +
			"- For cash flow: cash flow table + line chart of balance trend + narrative\n" +
			"- For budget variance: variance table + bar chart of over/under + narrative\n" +
			"- For KPI dashboard: kpi_grid + revenue trend chart + margin chart + narrative\n" +
			"- Currency values should be raw numbers (not formatted strings)\n" +
			"- Percent values should be numbers like 18.5 (not 0.185)\n" +
			"- PERIOD LABEL RULES:\n" +
			"  * For ar_analysis, backlog: period_label MUST be 'As of January 2026' (point-in-time snapshot, NOT a date range)\n" +
			"  * For job_costing: period_label MUST be 'As of January 2026' (cumulative to date)\n" +
			"  * For all other intents: use the actual period like 'Q4 2025', 'FY 2025', '2025-08 to 2026-01', etc.\n" +
			"  * NEVER invent or hallucinate a period. Use only what is provided in the Period field above.",
		Context:     computedData,
		MaxTokens:   4000,
		Temperature: 0.1,
		Validator:   validateFinancialQueryReport,
	})
	if err != nil {
		return nil, err
	}
	reportData := reportResult.Data
	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "Report generated"},
		"Report generated", reportResult.PromptTokens, reportResult.CompletionTokens); err != nil {
		return nil, err
	}

	reportTitle := stringField(reportData, "report_title")
	if reportTitle == "" {
		reportTitle = "Financial Report"
	}
	reportType := stringField(reportData, "report_type")
	if reportType == "" {
		reportType = params.Intent
	}
	if err := em.ToolResult(ctx, "generate_report",
		map[string]any{"report_type": reportType},
		"Report generated: "+reportTitle); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	responseText := stringField(reportData, "response_text")
	if responseText == "" {
		responseText = "Here is your report."
	}
	if err := em.AgentMessage(ctx, responseText, "response"); err != nil {
		return nil, err
	}
	rt.pause(ctx, 150*time.Millisecond)

	sectionsData, _ := reportData["sections"].([]any)
	if sectionsData == nil {
		sectionsData = []any{}
	}
	report := map[string]any{
		"report_id":       uuid.NewString(),
		"report_title":    reportTitle,
		"report_type":     reportType,
		"sections":        sectionsData,
		"response_text":   responseText,
		"division_name":   stringField(reportData, "division_name"),
		"period_label":    stringField(reportData, "period_label"),
		"conversation_id": conversation.ID,
	}
	if err := em.ReportGenerated(ctx, report); err != nil {
		return nil, err
	}

	rt.registry.AppendMessage(conversation.ID, "user", userMessage)
	rt.registry.AppendMessage(conversation.ID, "assistant", responseText)
	rt.registry.AppendReport(conversation.ID, report)

	return report, nil
}

// computeQueryData builds the per-intent deterministic dataset the report
// model arranges. The model never does arithmetic.
func (rt *Runtime) computeQueryData(params queryParams, data fixtures.FinancialData) map[string]any {
	glRecords := data.MonthlyGL
	computed := map[string]any{"intent": params.Intent}

	switch params.Intent {
	case "p_and_l", "custom_query":
		filtered := filterGL(glRecords, params.Division, params.PeriodStart, params.PeriodEnd, nil)
		computed["pnl"] = computePnL(filtered)
		computed["record_count"] = len(filtered)
		if params.Division == "" || params.Division == "all" {
			divPnLs := make(map[string]any, len(divisionNames))
			for code, name := range divisionNames {
				pnl := computePnL(filterGL(glRecords, code, params.PeriodStart, params.PeriodEnd, nil))
				divPnLs[name] = map[string]any{
					"revenue":          pnl.Revenue,
					"gross_profit":     pnl.GrossProfit,
					"gross_margin_pct": pnl.GrossMarginPct,
					"net_income":       pnl.NetIncome,
				}
			}
			computed["division_breakdown"] = divPnLs
		}

	case "comparison":
		currentPnL := computePnL(filterGL(glRecords, params.Division, params.PeriodStart, params.PeriodEnd, nil))
		compareStart, compareEnd := params.ComparePeriodStart, params.ComparePeriodEnd
		if compareStart == "" && len(params.PeriodStart) >= 4 {
			if year, err := strconv.Atoi(params.PeriodStart[:4]); err == nil {
				compareStart = strconv.Itoa(year-1) + params.PeriodStart[4:]
				if len(params.PeriodEnd) >= 4 {
					compareEnd = strconv.Itoa(year-1) + params.PeriodEnd[4:]
				}
			}
		}
		priorPnL := computePnL(filterGL(glRecords, params.Division, compareStart, compareEnd, nil))
		computed["current_pnl"] = currentPnL
		computed["prior_pnl"] = priorPnL
		computed["variance"] = computeVariance(currentPnL, priorPnL)
		computed["current_period_label"] = "current"
		if params.PeriodStart != "" {
			computed["current_period_label"] = params.PeriodStart + " to " + params.PeriodEnd
		}
		computed["prior_period_label"] = "prior year"
		if compareStart != "" {
			computed["prior_period_label"] = compareStart + " to " + compareEnd
		}

	case "expense_analysis":
		var glList []string
		switch {
		case params.GLFilter != "":
			glList = []string{params.GLFilter}
		case params.GLCategory != "":
			glList = glCategories[params.GLCategory]
		default:
			glList = append(append([]string{}, glCategories["cogs"]...), glCategories["opex"]...)
		}
		filtered := filterGL(glRecords, params.Division, params.PeriodStart, params.PeriodEnd, glList)
		byGL := sumByGL(filtered)
		expenseByGL := make(map[string]float64, len(byGL))
		var total float64
		for code, amount := range byGL {
			expenseByGL[glDescription(code)] = amount
			total += amount
		}
		expenseByDivision := make(map[string]float64)
		for code, amount := range sumByDivision(filtered) {
			expenseByDivision[divisionName(code)] = amount
		}
		computed["expense_by_gl"] = expenseByGL
		computed["expense_by_division"] = expenseByDivision
		computed["total"] = round2(total)
		computed["monthly_trend"] = sumByPeriod(filtered)

	case "job_costing":
		jobs := data.Jobs
		if params.JobID != "" {
			var matched []fixtures.Job
			for _, j := range jobs {
				if j.JobID == params.JobID {
					matched = append(matched, j)
				}
			}
			jobs = matched
		} else if params.Division != "" && params.Division != "all" {
			var matched []fixtures.Job
			for _, j := range jobs {
				if j.DivisionID == params.Division {
					matched = append(matched, j)
				}
			}
			jobs = matched
		}
		computed["jobs"] = jobs

	case "ar_analysis":
		ar := data.ARAgingSnapshot
		if params.Division != "" && params.Division != "all" {
			var matched []fixtures.ARSnapshot
			for _, a := range ar {
				if a.DivisionID == params.Division {
					matched = append(matched, a)
				}
			}
			ar = matched
		}
		var totalAR float64
		for _, a := range ar {
			totalAR += a.TotalOutstanding
		}
		periodSet := make(map[string]bool)
		for _, r := range glRecords {
			periodSet[r.Period] = true
		}
		allPeriods := make([]string, 0, len(periodSet))
		for p := range periodSet {
			allPeriods = append(allPeriods, p)
		}
		sort.Strings(allPeriods)
		recent := allPeriods
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		monthlyRev := 1.0
		if len(recent) > 0 {
			recentRevenue := filterGL(glRecords, params.Division, recent[0], recent[len(recent)-1], glCategories["revenue"])
			var sum float64
			for _, r := range recentRevenue {
				sum += r.Amount
			}
			if sum != 0 {
				monthlyRev = sum / float64(len(recent))
			}
		}
		aging := map[string]float64{}
		for _, a := range ar {
			aging["Current"] += a.Current
			aging["1-30 Days"] += a.Days1To30
			aging["31-60 Days"] += a.Days31To60
			aging["61-90 Days"] += a.Days61To90
			aging["Over 90 Days"] += a.DaysOver90
		}
		for k, v := range aging {
			aging[k] = round2(v)
		}
		computed["ar_accounts"] = ar
		computed["total_ar"] = round2(totalAR)
		computed["dso"] = computeDSO(ar, monthlyRev)
		computed["aging_summary"] = aging

	case "backlog":
		backlog := data.Backlog
		if params.Division != "" && params.Division != "all" {
			var matched []fixtures.BacklogEntry
			for _, b := range backlog {
				if b.DivisionID == params.Division {
					matched = append(matched, b)
				}
			}
			backlog = matched
		}
		var totalBacklog, totalPipeline float64
		named := make([]fixtures.BacklogEntry, len(backlog))
		for i, b := range backlog {
			b.DivisionName = divisionName(b.DivisionID)
			named[i] = b
			totalBacklog += b.ContractedBacklog
			totalPipeline += b.ProposalPipeline
		}
		computed["backlog"] = named
		computed["total_backlog"] = round2(totalBacklog)
		computed["total_pipeline"] = round2(totalPipeline)

	case "cash_flow":
		var cf []fixtures.CashFlowEntry
		for _, c := range data.CashFlow {
			if params.PeriodStart != "" && c.Period < params.PeriodStart {
				continue
			}
			if params.PeriodEnd != "" && c.Period > params.PeriodEnd {
				continue
			}
			cf = append(cf, c)
		}
		computed["cash_flow"] = cf
		if len(cf) > 0 {
			var net float64
			for _, c := range cf {
				net += c.NetCashFlow
			}
			computed["total_net_cash_flow"] = round2(net)
			computed["ending_balance"] = cf[len(cf)-1].EndingCashBalance
			computed["starting_balance"] = round2(cf[0].EndingCashBalance - cf[0].NetCashFlow)
		}

	case "margin_analysis":
		computed["quarterly_gross_margin"] = quarterlyTrend(glRecords, "gross_margin")
		computed["quarterly_net_margin"] = quarterlyTrend(glRecords, "net_margin")
		computed["quarterly_revenue"] = quarterlyTrend(glRecords, "revenue")
		if params.Division != "" && params.Division != "all" {
			divRecords := filterGL(glRecords, params.Division, "", "", nil)
			computed["division_gross_margin"] = quarterlyTrend(divRecords, "gross_margin")
		}
		divMargins := make(map[string]any, len(divisionNames))
		for code, name := range divisionNames {
			pnl := computePnL(filterGL(glRecords, code, params.PeriodStart, params.PeriodEnd, nil))
			divMargins[name] = map[string]any{
				"gross_margin": pnl.GrossMarginPct,
				"net_margin":   pnl.NetMarginPct,
				"revenue":      pnl.Revenue,
			}
		}
		computed["division_margins"] = divMargins

	case "budget_variance":
		actualByGL := sumByGL(filterGL(glRecords, params.Division, params.PeriodStart, params.PeriodEnd, nil))
		budgetByGL := make(map[string]float64)
		for _, r := range data.MonthlyBudget {
			if params.Division != "" && params.Division != "all" && r.DivisionID != params.Division {
				continue
			}
			if params.PeriodStart != "" && r.Period < params.PeriodStart {
				continue
			}
			if params.PeriodEnd != "" && r.Period > params.PeriodEnd {
				continue
			}
			budgetByGL[r.GLCode] += r.BudgetAmount
		}
		codeSet := make(map[string]bool, len(actualByGL)+len(budgetByGL))
		for code := range actualByGL {
			codeSet[code] = true
		}
		for code := range budgetByGL {
			codeSet[code] = true
		}
		codes := make([]string, 0, len(codeSet))
		for code := range codeSet {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		var lines []map[string]any
		var totalActual, totalBudget float64
		for _, code := range codes {
			actual := actualByGL[code]
			budget := budgetByGL[code]
			variance := round2(actual - budget)
			variancePct := 0.0
			if budget != 0 {
				variancePct = round1(variance / budget * 100)
			}
			lines = append(lines, map[string]any{
				"gl_code":      code,
				"description":  glDescription(code),
				"actual":       round2(actual),
				"budget":       round2(budget),
				"variance":     variance,
				"variance_pct": variancePct,
			})
			totalActual += actual
			totalBudget += budget
		}
		computed["budget_variance_lines"] = lines
		computed["total_actual"] = round2(totalActual)
		computed["total_budget"] = round2(totalBudget)

	case "kpi_dashboard":
		recentQ := filterGL(glRecords, "", "2025-10", "2025-12", nil)
		pnl := computePnL(recentQ)
		monthlyRev := 1.0
		if pnl.Revenue != 0 {
			monthlyRev = pnl.Revenue / 3
		}
		var totalBacklog float64
		for _, b := range data.Backlog {
			totalBacklog += b.ContractedBacklog
		}
		cashBalance := 0.0
		if n := len(data.CashFlow); n > 0 {
			cashBalance = data.CashFlow[n-1].EndingCashBalance
		}
		computed["kpis"] = map[string]any{
			"quarterly_revenue":    pnl.Revenue,
			"gross_margin_pct":     pnl.GrossMarginPct,
			"net_margin_pct":       pnl.NetMarginPct,
			"overhead_ratio":       computeOverheadRatio(recentQ),
			"dso":                  computeDSO(data.ARAgingSnapshot, monthlyRev),
			"total_backlog":        round2(totalBacklog),
			"cash_balance":         cashBalance,
			"revenue_per_employee": round2(pnl.Revenue * 4 / 1200),
		}
		computed["targets"] = data.KPITargets
		computed["pnl"] = pnl
		computed["quarterly_revenue"] = quarterlyTrend(glRecords, "revenue")

	default:
		computed["pnl"] = computePnL(filterGL(glRecords, params.Division, params.PeriodStart, params.PeriodEnd, nil))
	}

	return computed
}

func sortedDivisionCodes() []string {
	codes := make([]string, 0, len(divisionNames))
	for code := range divisionNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

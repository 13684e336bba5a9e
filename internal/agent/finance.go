package agent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sitedesk/foreman/internal/fixtures"
)

// Division and GL chart-of-accounts reference data. The demo ledger is keyed
// on these codes; report helpers translate them to display names.
var divisionNames = map[string]string{
	"EX": "Excavation & Earthwork",
	"RC": "Road & Highway Construction",
	"SD": "Site Development",
	"LM": "Landscape & Maintenance",
	"RW": "Retaining Walls & Structures",
}

var divisionShort = map[string]string{
	"EX": "Excavation",
	"RC": "Roads",
	"SD": "Site Dev",
	"LM": "Landscape",
	"RW": "Walls",
}

var glCategories = map[string][]string{
	"revenue": {"4100", "4200", "4300"},
	"cogs":    {"5100", "5200", "5300", "5400", "5500", "5600", "5700", "5800"},
	"opex":    {"6100", "6200", "6300", "6400", "6500", "6600"},
}

var glDescriptions = map[string]string{
	"4100": "Contract Revenue", "4200": "Service Revenue", "4300": "Change Order Revenue",
	"5100": "Materials", "5200": "Equipment Rental", "5300": "Subcontractor Costs",
	"5400": "Direct Labor", "5500": "Fuel & Lubricants", "5600": "Hauling & Freight",
	"5700": "Permits & Fees", "5800": "Equipment Maintenance",
	"6100": "Office & Admin", "6200": "Insurance", "6300": "Vehicle & Fleet",
	"6400": "IT & Software", "6500": "Professional Fees", "6600": "Depreciation",
}

func glDescription(code string) string {
	if name, ok := glDescriptions[code]; ok {
		return name
	}
	return code
}

func divisionName(code string) string {
	if name, ok := divisionNames[code]; ok {
		return name
	}
	return code
}

// filterGL narrows GL records by division, period range, and GL code list.
// Empty or "all" arguments leave that dimension unfiltered.
func filterGL(records []fixtures.GLRecord, division, periodStart, periodEnd string, glCodes []string) []fixtures.GLRecord {
	var codeSet map[string]bool
	if len(glCodes) > 0 {
		codeSet = make(map[string]bool, len(glCodes))
		for _, c := range glCodes {
			codeSet[c] = true
		}
	}
	var out []fixtures.GLRecord
	for _, r := range records {
		if division != "" && division != "all" && r.DivisionID != division {
			continue
		}
		if periodStart != "" && r.Period < periodStart {
			continue
		}
		if periodEnd != "" && r.Period > periodEnd {
			continue
		}
		if codeSet != nil && !codeSet[r.GLCode] {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sumByGL(records []fixtures.GLRecord) map[string]float64 {
	totals := make(map[string]float64)
	for _, r := range records {
		totals[r.GLCode] += r.Amount
	}
	for k, v := range totals {
		totals[k] = round2(v)
	}
	return totals
}

func sumByDivision(records []fixtures.GLRecord) map[string]float64 {
	totals := make(map[string]float64)
	for _, r := range records {
		totals[r.DivisionID] += r.Amount
	}
	for k, v := range totals {
		totals[k] = round2(v)
	}
	return totals
}

func sumByPeriod(records []fixtures.GLRecord) map[string]float64 {
	totals := make(map[string]float64)
	for _, r := range records {
		totals[r.Period] += r.Amount
	}
	for k, v := range totals {
		totals[k] = round2(v)
	}
	return totals
}

// pnlStatement is a computed profit-and-loss rollup for a record slice.
type pnlStatement struct {
	Revenue        float64            `json:"revenue"`
	COGSBreakdown  map[string]float64 `json:"cogs_breakdown"`
	COGSTotal      float64            `json:"cogs_total"`
	GrossProfit    float64            `json:"gross_profit"`
	GrossMarginPct float64            `json:"gross_margin_pct"`
	OpexBreakdown  map[string]float64 `json:"opex_breakdown"`
	OpexTotal      float64            `json:"opex_total"`
	NetIncome      float64            `json:"net_income"`
	NetMarginPct   float64            `json:"net_margin_pct"`
}

func computePnL(records []fixtures.GLRecord) pnlStatement {
	byGL := sumByGL(records)

	var revenue float64
	for _, c := range glCategories["revenue"] {
		revenue += byGL[c]
	}
	cogsItems := make(map[string]float64)
	var cogsTotal float64
	for _, c := range glCategories["cogs"] {
		if v := byGL[c]; v != 0 {
			cogsItems[glDescription(c)] = round2(v)
			cogsTotal += v
		}
	}
	opexItems := make(map[string]float64)
	var opexTotal float64
	for _, c := range glCategories["opex"] {
		if v := byGL[c]; v != 0 {
			opexItems[glDescription(c)] = round2(v)
			opexTotal += v
		}
	}

	grossProfit := revenue - cogsTotal
	netIncome := grossProfit - opexTotal
	grossMargin, netMargin := 0.0, 0.0
	if revenue != 0 {
		grossMargin = round1(grossProfit / revenue * 100)
		netMargin = round1(netIncome / revenue * 100)
	}

	return pnlStatement{
		Revenue:        round2(revenue),
		COGSBreakdown:  cogsItems,
		COGSTotal:      round2(cogsTotal),
		GrossProfit:    round2(grossProfit),
		GrossMarginPct: grossMargin,
		OpexBreakdown:  opexItems,
		OpexTotal:      round2(opexTotal),
		NetIncome:      round2(netIncome),
		NetMarginPct:   netMargin,
	}
}

// computeVariance compares two P&L statements line by line. Dollar lines get
// dollar and percent variance; margin lines get a basis-point change.
func computeVariance(current, prior pnlStatement) map[string]map[string]float64 {
	dollarLines := map[string][2]float64{
		"revenue":      {current.Revenue, prior.Revenue},
		"cogs_total":   {current.COGSTotal, prior.COGSTotal},
		"gross_profit": {current.GrossProfit, prior.GrossProfit},
		"opex_total":   {current.OpexTotal, prior.OpexTotal},
		"net_income":   {current.NetIncome, prior.NetIncome},
	}
	result := make(map[string]map[string]float64, len(dollarLines)+2)
	for key, pair := range dollarLines {
		diff := round2(pair[0] - pair[1])
		pct := 0.0
		if pair[1] != 0 {
			pct = round1(diff / pair[1] * 100)
		}
		result[key] = map[string]float64{
			"current": pair[0], "prior": pair[1], "variance": diff, "variance_pct": pct,
		}
	}
	marginLines := map[string][2]float64{
		"gross_margin_pct": {current.GrossMarginPct, prior.GrossMarginPct},
		"net_margin_pct":   {current.NetMarginPct, prior.NetMarginPct},
	}
	for key, pair := range marginLines {
		result[key] = map[string]float64{
			"current": pair[0], "prior": pair[1], "change_bps": round2((pair[0] - pair[1]) * 100),
		}
	}
	return result
}

// resolvePeriodRange turns "2025-Q4", "2025", or "2025-10" into an inclusive
// YYYY-MM range. An empty period yields an open range.
func resolvePeriodRange(period string) (start, end string) {
	if period == "" {
		return "", ""
	}
	if idx := strings.Index(period, "-Q"); idx > 0 {
		year := period[:idx]
		q, err := strconv.Atoi(period[idx+2:])
		if err != nil || q < 1 || q > 4 {
			return period, period
		}
		return fmt.Sprintf("%s-%02d", year, (q-1)*3+1), fmt.Sprintf("%s-%02d", year, q*3)
	}
	if len(period) == 4 {
		return period + "-01", period + "-12"
	}
	return period, period
}

// computeDSO is days sales outstanding: total AR over average daily revenue.
func computeDSO(ar []fixtures.ARSnapshot, monthlyRevenue float64) float64 {
	var totalAR float64
	for _, a := range ar {
		totalAR += a.TotalOutstanding
	}
	dailyRevenue := 1.0
	if monthlyRevenue != 0 {
		dailyRevenue = monthlyRevenue / 30
	}
	return round1(totalAR / dailyRevenue)
}

// computeOverheadRatio is operating expense as a percent of revenue.
func computeOverheadRatio(records []fixtures.GLRecord) float64 {
	byGL := sumByGL(records)
	var revenue, opex float64
	for _, c := range glCategories["revenue"] {
		revenue += byGL[c]
	}
	for _, c := range glCategories["opex"] {
		opex += byGL[c]
	}
	if revenue == 0 {
		return 0
	}
	return round1(opex / revenue * 100)
}

type trendPoint struct {
	Quarter string  `json:"quarter"`
	Value   float64 `json:"value"`
}

// quarterlyTrend buckets records into calendar quarters and reports one
// metric per quarter: gross_margin, net_margin, revenue, or overhead.
func quarterlyTrend(records []fixtures.GLRecord, metric string) []trendPoint {
	byQuarter := make(map[string][]fixtures.GLRecord)
	for _, r := range records {
		if len(r.Period) < 7 {
			continue
		}
		month, err := strconv.Atoi(r.Period[5:7])
		if err != nil {
			continue
		}
		label := fmt.Sprintf("%s-Q%d", r.Period[:4], (month-1)/3+1)
		byQuarter[label] = append(byQuarter[label], r)
	}

	labels := make([]string, 0, len(byQuarter))
	for label := range byQuarter {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	points := make([]trendPoint, 0, len(labels))
	for _, label := range labels {
		pnl := computePnL(byQuarter[label])
		var value float64
		switch metric {
		case "net_margin":
			value = pnl.NetMarginPct
		case "revenue":
			value = pnl.Revenue
		case "overhead":
			if pnl.Revenue != 0 {
				value = round1(pnl.OpexTotal / pnl.Revenue * 100)
			}
		default:
			value = pnl.GrossMarginPct
		}
		points = append(points, trendPoint{Quarter: label, Value: value})
	}
	return points
}

// buildSimulatedSQL renders the query that the code-block visualization shows
// alongside report generation. The queries mirror the ERP views the platform
// would hit in production.
func buildSimulatedSQL(intent, division, period, glFilter string) string {
	divName := "All Divisions"
	if division != "" && division != "all" {
		divName = divisionName(division)
	}

	var clauses []string
	if division != "" && division != "all" {
		clauses = append(clauses, fmt.Sprintf("division_id = '%s'", division))
	}
	if period != "" && period != "latest" {
		clauses = append(clauses, fmt.Sprintf("period >= '%s'", period))
	}
	if glFilter != "" {
		clauses = append(clauses, fmt.Sprintf("gl_code = '%s'", glFilter))
	}
	whereSQL := "1=1"
	if len(clauses) > 0 {
		whereSQL = strings.Join(clauses, " AND ")
	}

	switch intent {
	case "comparison", "margin_analysis":
		return fmt.Sprintf(
			"-- Year-over-year comparison for %s\n"+
				"SELECT period, gl_code,\n"+
				"       SUM(amount) AS total,\n"+
				"       LAG(SUM(amount)) OVER (ORDER BY period) AS prior_period\n"+
				"FROM vista_gl_transactions\n"+
				"WHERE %s\n"+
				"GROUP BY period, gl_code\n"+
				"ORDER BY period, gl_code;", divName, whereSQL)
	case "job_costing":
		jobDivision := division
		if jobDivision == "" {
			jobDivision = "ALL"
		}
		return fmt.Sprintf(
			"-- Job cost detail for %s\n"+
				"SELECT j.job_id, j.name, j.contract_value,\n"+
				"       j.percent_complete, j.costs_total\n"+
				"FROM vista_jobs j\n"+
				"WHERE j.division_id = '%s'\n"+
				"ORDER BY j.contract_value DESC;", divName, jobDivision)
	case "ar_analysis":
		return fmt.Sprintf(
			"-- AR aging analysis\n"+
				"SELECT customer, division_id,\n"+
				"       current_amt, days_1_30, days_31_60, days_61_90, days_over_90\n"+
				"FROM vista_ar_aging\n"+
				"WHERE %s\n"+
				"ORDER BY total_outstanding DESC;", whereSQL)
	case "cash_flow":
		return fmt.Sprintf(
			"-- Cash flow analysis\n"+
				"SELECT period, operating_cash_in, operating_cash_out,\n"+
				"       capital_expenditures, net_cash_flow, ending_cash_balance\n"+
				"FROM vista_cash_flow\n"+
				"WHERE %s\n"+
				"ORDER BY period;", whereSQL)
	}
	return fmt.Sprintf(
		"-- P&L query for %s\n"+
			"SELECT gl_code, gl_description,\n"+
			"       SUM(amount) AS total_amount\n"+
			"FROM vista_gl_transactions\n"+
			"WHERE %s\n"+
			"GROUP BY gl_code, gl_description\n"+
			"ORDER BY gl_code;", divName, whereSQL)
}

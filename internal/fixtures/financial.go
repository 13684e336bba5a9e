package fixtures

import "fmt"

// GLRecord is one monthly general-ledger posting.
type GLRecord struct {
	Period     string  `json:"period"`
	DivisionID string  `json:"division_id"`
	GLCode     string  `json:"gl_code"`
	Amount     float64 `json:"amount"`
}

// BudgetRecord mirrors GLRecord for the budgeted amount.
type BudgetRecord struct {
	Period       string  `json:"period"`
	DivisionID   string  `json:"division_id"`
	GLCode       string  `json:"gl_code"`
	BudgetAmount float64 `json:"budget_amount"`
}

type ARSnapshot struct {
	Customer         string  `json:"customer"`
	DivisionID       string  `json:"division_id"`
	Current          float64 `json:"current"`
	Days1To30        float64 `json:"days_1_30"`
	Days31To60       float64 `json:"days_31_60"`
	Days61To90       float64 `json:"days_61_90"`
	DaysOver90       float64 `json:"days_over_90"`
	TotalOutstanding float64 `json:"total_outstanding"`
}

type BacklogEntry struct {
	DivisionID        string  `json:"division_id"`
	DivisionName      string  `json:"division_name,omitempty"`
	ContractedBacklog float64 `json:"contracted_backlog"`
	ProposalPipeline  float64 `json:"proposal_pipeline"`
}

type CashFlowEntry struct {
	Period              string  `json:"period"`
	OperatingCashIn     float64 `json:"operating_cash_in"`
	OperatingCashOut    float64 `json:"operating_cash_out"`
	CapitalExpenditures float64 `json:"capital_expenditures"`
	NetCashFlow         float64 `json:"net_cash_flow"`
	EndingCashBalance   float64 `json:"ending_cash_balance"`
}

type Job struct {
	JobID           string  `json:"job_id"`
	Name            string  `json:"name"`
	DivisionID      string  `json:"division_id"`
	ContractValue   float64 `json:"contract_value"`
	PercentComplete float64 `json:"percent_complete"`
	CostsTotal      float64 `json:"costs_total"`
}

// FinancialData is everything the financial reporting agent works from.
type FinancialData struct {
	MonthlyGL       []GLRecord         `json:"monthly_gl"`
	MonthlyBudget   []BudgetRecord     `json:"monthly_budget"`
	ARAgingSnapshot []ARSnapshot       `json:"ar_aging_snapshot"`
	Backlog         []BacklogEntry     `json:"backlog"`
	CashFlow        []CashFlowEntry    `json:"cash_flow"`
	KPITargets      map[string]float64 `json:"kpi_targets"`
	Jobs            []Job              `json:"jobs"`
}

type financialDoc struct {
	ARAgingSnapshot []ARSnapshot       `json:"ar_aging_snapshot"`
	Backlog         []BacklogEntry     `json:"backlog"`
	CashFlow        []CashFlowEntry    `json:"cash_flow"`
	KPITargets      map[string]float64 `json:"kpi_targets"`
	Jobs            []Job              `json:"jobs"`
}

// Division revenue scale per month, in dollars. The per-GL splits below are
// fractions of revenue so margins stay realistic across every period.
var divisionMonthlyRevenue = map[string]float64{
	"EX": 7800000,
	"RC": 6200000,
	"SD": 4100000,
	"LM": 1500000,
	"RW": 2300000,
}

var revenueSplit = map[string]float64{
	"4100": 0.82, // Contract Revenue
	"4200": 0.11, // Service Revenue
	"4300": 0.07, // Change Order Revenue
}

var cogsSplit = map[string]float64{
	"5100": 0.215, // Materials
	"5200": 0.082, // Equipment Rental
	"5300": 0.168, // Subcontractor Costs
	"5400": 0.224, // Direct Labor
	"5500": 0.036, // Fuel & Lubricants
	"5600": 0.028, // Hauling & Freight
	"5700": 0.011, // Permits & Fees
	"5800": 0.042, // Equipment Maintenance
}

var opexSplit = map[string]float64{
	"6100": 0.028, // Office & Admin
	"6200": 0.021, // Insurance
	"6300": 0.016, // Vehicle & Fleet
	"6400": 0.009, // IT & Software
	"6500": 0.007, // Professional Fees
	"6600": 0.019, // Depreciation
}

// seasonal adjusts revenue by month: construction slows in deep winter and
// peaks late summer. cycle yields margin drift so quarterly trends move.
func seasonal(month int) float64 {
	factors := [12]float64{0.86, 0.88, 0.95, 1.02, 1.07, 1.10, 1.12, 1.13, 1.09, 1.04, 0.94, 0.80}
	return factors[month-1]
}

func costDrift(year, month int) float64 {
	// Input costs creep up over the window, squeezing gross margin slightly.
	steps := (year-2024)*12 + (month - 1)
	return 1.0 + 0.0035*float64(steps)
}

// Financial loads the embedded financial snapshot and synthesizes the monthly
// GL and budget ledgers covering 2024-01 through 2026-01.
func Financial() (FinancialData, error) {
	var doc financialDoc
	if err := load("financial_reporting.json", &doc); err != nil {
		return FinancialData{}, err
	}

	var gl []GLRecord
	var budget []BudgetRecord
	forEachPeriod(func(year, month int) {
		period := fmt.Sprintf("%04d-%02d", year, month)
		for div, base := range divisionMonthlyRevenue {
			revenue := base * seasonal(month)
			drift := costDrift(year, month)
			for code, frac := range revenueSplit {
				gl = append(gl, GLRecord{Period: period, DivisionID: div, GLCode: code, Amount: round2(revenue * frac)})
				budget = append(budget, BudgetRecord{Period: period, DivisionID: div, GLCode: code, BudgetAmount: round2(base * frac)})
			}
			for code, frac := range cogsSplit {
				gl = append(gl, GLRecord{Period: period, DivisionID: div, GLCode: code, Amount: round2(revenue * frac * drift)})
				budget = append(budget, BudgetRecord{Period: period, DivisionID: div, GLCode: code, BudgetAmount: round2(base * frac)})
			}
			for code, frac := range opexSplit {
				gl = append(gl, GLRecord{Period: period, DivisionID: div, GLCode: code, Amount: round2(revenue * frac)})
				budget = append(budget, BudgetRecord{Period: period, DivisionID: div, GLCode: code, BudgetAmount: round2(base * frac)})
			}
		}
	})

	return FinancialData{
		MonthlyGL:       gl,
		MonthlyBudget:   budget,
		ARAgingSnapshot: doc.ARAgingSnapshot,
		Backlog:         doc.Backlog,
		CashFlow:        doc.CashFlow,
		KPITargets:      doc.KPITargets,
		Jobs:            doc.Jobs,
	}, nil
}

func forEachPeriod(fn func(year, month int)) {
	for month := 1; month <= 12; month++ {
		fn(2024, month)
	}
	for month := 1; month <= 12; month++ {
		fn(2025, month)
	}
	fn(2026, 1)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

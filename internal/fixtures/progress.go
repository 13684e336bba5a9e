package fixtures

// ProgressData is the portfolio snapshot the progress tracking agent reviews.
type ProgressData struct {
	AsOfDate string            `json:"as_of_date"`
	Projects []ProgressProject `json:"projects"`
}

type ProgressProject struct {
	ProjectID               string        `json:"project_id"`
	ProjectName             string        `json:"project_name"`
	Division                string        `json:"division"`
	ProjectManager          string        `json:"project_manager"`
	Client                  string        `json:"client"`
	Finding                 string        `json:"finding"`
	StartDate               string        `json:"start_date"`
	OriginalEndDate         string        `json:"original_end_date"`
	CurrentProjectedEndDate string        `json:"current_projected_end_date"`
	Proposal                Proposal      `json:"proposal"`
	Actuals                 Actuals       `json:"actuals"`
	ChangeOrders            []ChangeOrder `json:"change_orders"`
	RiskFlags               []string      `json:"risk_flags"`
}

type Proposal struct {
	ContractValue      float64            `json:"contract_value"`
	EstimatedCost      float64            `json:"estimated_cost"`
	TargetMarginPct    float64            `json:"target_margin_pct"`
	CostEstimateByCode map[string]float64 `json:"cost_estimate_by_code"`
	LaborEstimate      LaborEstimate      `json:"labor_estimate"`
	KeyAssumptions     []string           `json:"key_assumptions"`
}

type LaborEstimate struct {
	TotalLaborHours    float64 `json:"total_labor_hours"`
	AvgLoadedRate      float64 `json:"avg_loaded_rate"`
	EstimatedLaborCost float64 `json:"estimated_labor_cost"`
}

type Actuals struct {
	PercentComplete float64                  `json:"percent_complete"`
	PercentBilled   float64                  `json:"percent_billed"`
	TotalCostToDate float64                  `json:"total_cost_to_date"`
	CostByCode      map[string]CostCodeSpend `json:"cost_by_code"`
	Labor           LaborActuals             `json:"labor"`
	Schedule        ScheduleActuals          `json:"schedule"`
}

type CostCodeSpend struct {
	Actual      float64 `json:"actual"`
	PctComplete float64 `json:"pct_complete"`
}

type LaborActuals struct {
	TotalHoursToDate    float64        `json:"total_hours_to_date"`
	AvgActualLoadedRate float64        `json:"avg_actual_loaded_rate"`
	LaborCostToDate     float64        `json:"labor_cost_to_date"`
	OvertimeHours       float64        `json:"overtime_hours"`
	OvertimeCost        float64        `json:"overtime_cost"`
	ProductivityIndex   float64        `json:"productivity_index"`
	MonthlyLabor        []MonthlyHours `json:"monthly_labor"`
}

type MonthlyHours struct {
	Month string  `json:"month"`
	Hours float64 `json:"hours"`
}

type ScheduleActuals struct {
	DaysElapsed            float64     `json:"days_elapsed"`
	DaysBehind             float64     `json:"days_behind"`
	DaysAhead              float64     `json:"days_ahead"`
	CriticalPathDelayCause string      `json:"critical_path_delay_cause"`
	Milestones             []Milestone `json:"milestones"`
}

type Milestone struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	DaysDelta float64 `json:"days_delta"`
}

type ChangeOrder struct {
	COID        string  `json:"co_id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	ImpactDays  float64 `json:"impact_days"`
}

// Progress loads the embedded project progress snapshot.
func Progress() (ProgressData, error) {
	var data ProgressData
	if err := load("project_progress.json", &data); err != nil {
		return ProgressData{}, err
	}
	return data, nil
}

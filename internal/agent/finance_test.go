package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/fixtures"
)

func glRec(period, division, code string, amount float64) fixtures.GLRecord {
	return fixtures.GLRecord{Period: period, DivisionID: division, GLCode: code, Amount: amount}
}

func TestResolvePeriodRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		period    string
		wantStart string
		wantEnd   string
	}{
		{"", "", ""},
		{"2025-Q1", "2025-01", "2025-03"},
		{"2025-Q4", "2025-10", "2025-12"},
		{"2025", "2025-01", "2025-12"},
		{"2025-10", "2025-10", "2025-10"},
		{"2025-Q9", "2025-Q9", "2025-Q9"},
	}
	for _, tc := range tests {
		t.Run("period "+tc.period, func(t *testing.T) {
			t.Parallel()

			start, end := resolvePeriodRange(tc.period)
			assert.Equal(t, tc.wantStart, start)
			assert.Equal(t, tc.wantEnd, end)
		})
	}
}

func TestFilterGL(t *testing.T) {
	t.Parallel()

	records := []fixtures.GLRecord{
		glRec("2025-09", "EX", "4100", 100000),
		glRec("2025-10", "EX", "5100", -40000),
		glRec("2025-10", "SD", "4100", 80000),
		glRec("2025-11", "SD", "6200", -5000),
	}

	t.Run("division filter", func(t *testing.T) {
		t.Parallel()

		out := filterGL(records, "EX", "", "", nil)
		require.Len(t, out, 2)
		for _, r := range out {
			assert.Equal(t, "EX", r.DivisionID)
		}
	})

	t.Run("all keeps every division", func(t *testing.T) {
		t.Parallel()

		assert.Len(t, filterGL(records, "all", "", "", nil), 4)
	})

	t.Run("period range is inclusive", func(t *testing.T) {
		t.Parallel()

		out := filterGL(records, "", "2025-10", "2025-10", nil)
		require.Len(t, out, 2)
		assert.Equal(t, "2025-10", out[0].Period)
	})

	t.Run("gl code set", func(t *testing.T) {
		t.Parallel()

		out := filterGL(records, "", "", "", []string{"4100"})
		assert.Len(t, out, 2)
	})
}

func TestComputePnL(t *testing.T) {
	t.Parallel()

	records := []fixtures.GLRecord{
		glRec("2025-10", "EX", "4100", 500000),
		glRec("2025-10", "EX", "4300", 20000),
		glRec("2025-10", "EX", "5100", 150000),
		glRec("2025-10", "EX", "5400", 110000),
		glRec("2025-10", "EX", "6200", 26000),
	}

	pnl := computePnL(records)

	assert.InDelta(t, 520000, pnl.Revenue, 0.001)
	assert.InDelta(t, 260000, pnl.COGSTotal, 0.001)
	assert.InDelta(t, 260000, pnl.GrossProfit, 0.001)
	assert.InDelta(t, 50.0, pnl.GrossMarginPct, 0.001)
	assert.InDelta(t, 26000, pnl.OpexTotal, 0.001)
	assert.InDelta(t, 234000, pnl.NetIncome, 0.001)
	assert.InDelta(t, 45.0, pnl.NetMarginPct, 0.001)

	assert.InDelta(t, 150000, pnl.COGSBreakdown["Materials"], 0.001)
	assert.InDelta(t, 110000, pnl.COGSBreakdown["Direct Labor"], 0.001)
	assert.InDelta(t, 26000, pnl.OpexBreakdown["Insurance"], 0.001)
	assert.NotContains(t, pnl.COGSBreakdown, "Equipment Rental")
}

func TestComputePnLZeroRevenue(t *testing.T) {
	t.Parallel()

	pnl := computePnL([]fixtures.GLRecord{glRec("2025-10", "EX", "5100", 1000)})
	assert.Zero(t, pnl.GrossMarginPct)
	assert.Zero(t, pnl.NetMarginPct)
}

func TestComputeVariance(t *testing.T) {
	t.Parallel()

	current := pnlStatement{Revenue: 550000, COGSTotal: 330000, GrossProfit: 220000, GrossMarginPct: 40.0, OpexTotal: 55000, NetIncome: 165000, NetMarginPct: 30.0}
	prior := pnlStatement{Revenue: 500000, COGSTotal: 290000, GrossProfit: 210000, GrossMarginPct: 42.0, OpexTotal: 50000, NetIncome: 160000, NetMarginPct: 32.0}

	result := computeVariance(current, prior)

	rev := result["revenue"]
	require.NotNil(t, rev)
	assert.InDelta(t, 50000, rev["variance"], 0.001)
	assert.InDelta(t, 10.0, rev["variance_pct"], 0.001)

	gm := result["gross_margin_pct"]
	require.NotNil(t, gm)
	assert.InDelta(t, -200, gm["change_bps"], 0.001)

	t.Run("zero prior skips percent", func(t *testing.T) {
		t.Parallel()

		out := computeVariance(pnlStatement{Revenue: 100}, pnlStatement{})
		assert.Zero(t, out["revenue"]["variance_pct"])
		assert.InDelta(t, 100, out["revenue"]["variance"], 0.001)
	})
}

func TestQuarterlyTrend(t *testing.T) {
	t.Parallel()

	records := []fixtures.GLRecord{
		glRec("2025-07", "EX", "4100", 100000),
		glRec("2025-08", "EX", "5100", 60000),
		glRec("2025-10", "EX", "4100", 200000),
		glRec("2025-11", "EX", "5100", 80000),
	}

	points := quarterlyTrend(records, "gross_margin")
	require.Len(t, points, 2)
	assert.Equal(t, "2025-Q3", points[0].Quarter)
	assert.Equal(t, "2025-Q4", points[1].Quarter)
	assert.InDelta(t, 40.0, points[0].Value, 0.001)
	assert.InDelta(t, 60.0, points[1].Value, 0.001)

	t.Run("revenue metric", func(t *testing.T) {
		t.Parallel()

		out := quarterlyTrend(records, "revenue")
		require.Len(t, out, 2)
		assert.InDelta(t, 200000, out[1].Value, 0.001)
	})
}

func TestComputeDSO(t *testing.T) {
	t.Parallel()

	ar := []fixtures.ARSnapshot{
		{Customer: "Mesa Ridge Partners", TotalOutstanding: 120000},
		{Customer: "Foothill Logistics", TotalOutstanding: 30000},
	}
	assert.InDelta(t, 15.0, computeDSO(ar, 300000), 0.001)
	assert.InDelta(t, 150000, computeDSO(ar, 0), 0.001)
}

func TestComputeOverheadRatio(t *testing.T) {
	t.Parallel()

	records := []fixtures.GLRecord{
		glRec("2025-10", "EX", "4100", 400000),
		glRec("2025-10", "EX", "6100", 30000),
		glRec("2025-10", "EX", "6400", 10000),
	}
	assert.InDelta(t, 10.0, computeOverheadRatio(records), 0.001)
	assert.Zero(t, computeOverheadRatio(nil))
}

func TestBuildSimulatedSQL(t *testing.T) {
	t.Parallel()

	sql := buildSimulatedSQL("comparison", "EX", "2025-01", "")
	assert.Contains(t, sql, "Excavation & Earthwork")
	assert.Contains(t, sql, "division_id = 'EX'")
	assert.Contains(t, sql, "period >= '2025-01'")

	sql = buildSimulatedSQL("pnl", "", "", "")
	assert.Contains(t, sql, "All Divisions")
	assert.Contains(t, sql, "WHERE 1=1")
}

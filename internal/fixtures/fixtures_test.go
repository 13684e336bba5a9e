package fixtures_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/fixtures"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	doc, err := fixtures.Load("financial_reporting.json")
	require.NoError(t, err)
	assert.NotEmpty(t, doc)

	_, err = fixtures.Load("does_not_exist.json")
	assert.Error(t, err)
}

func TestDocument(t *testing.T) {
	t.Parallel()

	text, err := fixtures.Document("invoices/INV-9001.txt")
	require.NoError(t, err)
	assert.Contains(t, text, "INV-9001")
	assert.Contains(t, text, "PO-2024-0892")

	_, err = fixtures.Document("invoices/INV-0000.txt")
	assert.Error(t, err)
}

func TestFinancial(t *testing.T) {
	t.Parallel()

	data, err := fixtures.Financial()
	require.NoError(t, err)

	// 25 periods (2024-01 through 2026-01), 5 divisions, 17 GL codes each.
	assert.Len(t, data.MonthlyGL, 25*5*17)
	assert.Len(t, data.MonthlyBudget, 25*5*17)

	periods := map[string]bool{}
	for _, rec := range data.MonthlyGL {
		periods[rec.Period] = true
		assert.Positive(t, rec.Amount)
	}
	assert.True(t, periods["2024-01"])
	assert.True(t, periods["2025-12"])
	assert.True(t, periods["2026-01"])
	assert.False(t, periods["2026-02"])

	assert.NotEmpty(t, data.ARAgingSnapshot)
	assert.NotEmpty(t, data.Backlog)
	assert.NotEmpty(t, data.CashFlow)
	assert.NotEmpty(t, data.KPITargets)
	assert.NotEmpty(t, data.Jobs)
}

func TestProgress(t *testing.T) {
	t.Parallel()

	data, err := fixtures.Progress()
	require.NoError(t, err)
	assert.NotEmpty(t, data.AsOfDate)
	require.NotEmpty(t, data.Projects)
	for _, p := range data.Projects {
		assert.NotEmpty(t, p.ProjectID)
		assert.NotEmpty(t, p.ProjectName)
	}
}

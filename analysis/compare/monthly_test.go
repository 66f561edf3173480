package compare

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azure-cost/analysis/usage"
)

func monthlyRecord(name, category, day string, qty, price float64) usage.Record {
	return usage.Record{
		InstanceName:   "/subscriptions/s/x/" + name,
		MeterCategory:  category,
		Date:           day,
		Quantity:       qty,
		EffectivePrice: decimal.NewFromFloat(price),
	}
}

func TestAggregateMonthly(t *testing.T) {
	records := []usage.Record{
		monthlyRecord("vm-1", "Virtual Machines", "2026-06-01", 100, 0.5),
		monthlyRecord("vm-1", "Virtual Machines", "2026-06-15", 100, 0.5),
		monthlyRecord("acct-1", "Storage", "2026-06-10", 200, 0.1),
		monthlyRecord("acct-2", "Storage", "2026-06-10", 100, 0.1),
		monthlyRecord("vm-1", "Virtual Machines", "2026-07-01", 100, 0.5),
		{InstanceName: "no-date", MeterCategory: "Bandwidth", Quantity: 1},
	}

	table, dropped := AggregateMonthly(records)

	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"2026-06", "2026-07"}, table.Months)

	// Storage columns break out per account; roll-ups come last.
	require.NotEmpty(t, table.Columns)
	assert.Contains(t, table.Columns, "Storage (acct-1)")
	assert.Contains(t, table.Columns, "Storage (acct-2)")
	assert.Equal(t, "Storage Total", table.Columns[len(table.Columns)-2])
	assert.Equal(t, "Total", table.Columns[len(table.Columns)-1])

	assert.Equal(t, "100", table.Cell("2026-06", "Virtual Machines").String())
	assert.Equal(t, "20", table.Cell("2026-06", "Storage (acct-1)").String())
	assert.Equal(t, "30", table.Cell("2026-06", "Storage Total").String())
	assert.Equal(t, "130", table.Cell("2026-06", "Total").String())

	assert.Equal(t, "50", table.Cell("2026-07", "Virtual Machines").String())
	assert.True(t, table.Cell("2026-07", "Storage Total").IsZero())
	assert.Equal(t, "50", table.Cell("2026-07", "Total").String())
}

func TestAggregateMonthlyUsesCalculatedCost(t *testing.T) {
	// quantity * effectivePrice, not the billed cost column.
	r := monthlyRecord("vm-1", "Virtual Machines", "2026-06-01", 10, 0.3)
	r.Cost = decimal.NewFromInt(999)

	table, _ := AggregateMonthly([]usage.Record{r})
	assert.Equal(t, "3", table.Cell("2026-06", "Virtual Machines").String())
}

func TestAggregateMonthlySentinelDateFallsBack(t *testing.T) {
	r := monthlyRecord("vm-1", "Virtual Machines", "0001-01-01T00:00:00Z", 10, 1)
	r.UsageStart = "2026-06-05"

	table, dropped := AggregateMonthly([]usage.Record{r})
	assert.Zero(t, dropped)
	assert.Equal(t, "10", table.Cell("2026-06", "Virtual Machines").String())
}

func TestAggregateMonthlyEmpty(t *testing.T) {
	table, dropped := AggregateMonthly(nil)
	assert.Zero(t, dropped)
	assert.Empty(t, table.Months)
	assert.Equal(t, []string{"Storage Total", "Total"}, table.Columns)
}

func TestCellMissingMonth(t *testing.T) {
	table, _ := AggregateMonthly(nil)
	assert.True(t, table.Cell("2026-01", "Total").IsZero())
}
